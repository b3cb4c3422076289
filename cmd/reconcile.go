package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/model"
	"github.com/jjenkins/lprwatch/internal/service"
	"github.com/jjenkins/lprwatch/internal/store"
)

const previewRows = 5

var (
	reconcileNetwork string
	reconcileAudits  string
	reconcileOut     string
	reconcileCols    service.NetworkColumns
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Map anonymous search audit ids to named users",
	Long: `Reconcile joins catalogued search audits with a network audit export on
timestamp and search reason and writes the user and search UUIDs next to
the user and organization names found in the export.

Local audits come from the catalog database unless --audits names an
exported CSV with search_guid,user_guid,search_timestamp,reason columns.

Examples:
  ./lprwatch reconcile --network network_audit.csv
  ./lprwatch reconcile --network export.csv --audits audits.csv --name-col "User"`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&reconcileNetwork, "network", "n", "", "Network audit CSV export (required)")
	reconcileCmd.Flags().StringVarP(&reconcileAudits, "audits", "a", "", "Exported search audits CSV (default: read the catalog)")
	reconcileCmd.Flags().StringVarP(&reconcileOut, "out", "o", "uuid_name_mapping.csv", "Output mapping CSV")
	reconcileCmd.Flags().StringVar(&reconcileCols.Timestamp, "timestamp-col", "", "Network audit timestamp column")
	reconcileCmd.Flags().StringVar(&reconcileCols.Reason, "reason-col", "", "Network audit reason column")
	reconcileCmd.Flags().StringVar(&reconcileCols.Name, "name-col", "", "Network audit user name column")
	reconcileCmd.Flags().StringVar(&reconcileCols.Org, "org-col", "", "Network audit organization column")
	_ = reconcileCmd.MarkFlagRequired("network")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	local, err := loadLocalAudits(ctx)
	if err != nil {
		return err
	}
	logger.Info("loaded local audits", zap.Int("count", len(local)))

	f, err := os.Open(reconcileNetwork)
	if err != nil {
		return fmt.Errorf("failed to open network audit: %w", err)
	}
	defer f.Close()

	audit, err := service.ReadNetworkAudit(f)
	if err != nil {
		return err
	}
	logger.Info("loaded network audit", zap.Int("rows", len(audit.Rows)), zap.Strings("columns", audit.Header))

	rc := service.NewReconciler(logger)
	cols, err := rc.DetectColumns(audit, reconcileCols)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	mappings := rc.Reconcile(local, audit, cols)
	if err := service.WriteMappings(reconcileOut, mappings); err != nil {
		return err
	}

	logger.Info("saved identity mappings", zap.String("file", reconcileOut), zap.Int("count", len(mappings)))
	for _, m := range mappings[:min(previewRows, len(mappings))] {
		logger.Info("mapping",
			zap.String("user_uuid", m.UserUUID),
			zap.String("user_name", m.UserName),
			zap.String("search_uuid", m.SearchUUID),
			zap.String("org_name", m.OrgName),
		)
	}

	return nil
}

func loadLocalAudits(ctx context.Context) ([]model.AuditEntry, error) {
	if reconcileAudits != "" {
		return service.LoadAuditCSV(reconcileAudits)
	}

	db, err := openStore()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return store.NewAgencyStore(db).ListAuditEntries(ctx)
}
