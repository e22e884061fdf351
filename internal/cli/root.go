package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trialwatch",
	Short: "Trust scoring and integrity monitoring for clinical-trial data",
	Long: "Combines independent risk agents into a weighted consensus, converts it " +
		"into a bounded Data Quality Index, and audits the outputs for internal " +
		"contradictions and staleness.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
