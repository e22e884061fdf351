package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the trialwatch version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trialwatch %s\n", version)
	},
}
