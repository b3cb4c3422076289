package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/service"
)

var (
	harvestURLs     string
	harvestOut      string
	harvestDate     string
	harvestStartRow int
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Download transparency portal pages and their documents",
	Long: `Harvest reads a headerless CSV of "agency name,url" rows, fetches each
portal page and saves it with every linked .pdf, .csv, .zip and .xlsx
document under <out>/<REGION>/<agency>/<date>/.

Progress is saved after every successful row so an interrupted run resumes
where it stopped.

Examples:
  # Resume from the saved progress row
  ./lprwatch harvest

  # Start over from the first row
  ./lprwatch harvest --start-row 1`,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringVar(&harvestURLs, "urls", "", "CSV of agency name,url rows (overrides URLS_CSV)")
	harvestCmd.Flags().StringVarP(&harvestOut, "out", "o", "", "Output tree root (overrides SCRAPE_ROOT)")
	harvestCmd.Flags().StringVarP(&harvestDate, "date", "d", "", "Date folder name (YYYY-MM-DD, default today)")
	harvestCmd.Flags().IntVar(&harvestStartRow, "start-row", 0, "1-based row to start from (default: resume after saved progress)")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	hc := service.HarvestConfig{
		URLsFile:     cfg.Harvest.URLsFile,
		ProgressFile: cfg.Harvest.ProgressFile,
		OutputDir:    cfg.ScrapeRoot,
		Date:         harvestDate,
		StartRow:     harvestStartRow,
		Delay:        cfg.Harvest.Delay,
	}
	if harvestURLs != "" {
		hc.URLsFile = harvestURLs
	}
	if harvestOut != "" {
		hc.OutputDir = harvestOut
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := service.NewPortalClient(service.PortalClientConfig{
		Timeout:    cfg.Harvest.Timeout,
		MaxRetries: cfg.Harvest.MaxRetries,
		UserAgent:  cfg.Harvest.UserAgent,
	})
	harvester := service.NewHarvester(client, hc, logger)

	stats, err := harvester.Run(ctx)
	if stats != nil {
		log := logger.Sugar()
		log.Info("")
		log.Info("=== Harvest Summary ===")
		log.Infof("Rows:        %d", stats.Total)
		log.Infof("Processed:   %d", stats.Processed)
		log.Infof("Not found:   %d", stats.NotFound)
		log.Infof("Failed:      %d", stats.Failed)
		log.Infof("Skipped:     %d", stats.Skipped)
		log.Infof("Documents:   %d", stats.Documents)
	}
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("harvest cancelled")
			return nil
		}
		logger.Error("harvest failed", zap.Error(err))
		return err
	}

	return nil
}
