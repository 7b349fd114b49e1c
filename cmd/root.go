// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "distributor",
	Short: "Distributor - pull-based work queue for log processing",
	Long: `Distributor is a pull-based work-queue service that mediates between
log emitters and a variable-capacity fleet of analyzer workers.

Emitters submit log records over HTTP; analyzers pull tasks, process them
and report status. Tasks whose heartbeat goes silent are requeued ahead of
fresh work, with a bounded retry budget. An autoscaling supervisor resizes
the analyzer fleet from observed queue depth.`,
	Version: "2.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when omitted)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statsCmd)
}
