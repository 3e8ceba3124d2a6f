package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.4.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "backtester version %s\n", version)
		fmt.Fprintln(w, "FX backtesting for AI and rule-based trading signals")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
