package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate every catalog table",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if !resetYes && !confirm(os.Stdin, os.Stdout, "This deletes every agency, snapshot, file and audit. Continue?") {
			logger.Info("reset cancelled")
			return nil
		}

		if err := db.Reset(cmd.Context()); err != nil {
			return err
		}
		logger.Info("catalog reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not prompt for confirmation")
}
