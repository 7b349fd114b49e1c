// Package cmd implements CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AnimatorJoe/distributor/internal/config"
	"github.com/AnimatorJoe/distributor/internal/daemon"
)

var withPool bool

// serveCmd runs the distributor daemon in the foreground.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the distributor daemon in foreground",
	Long: `Run the distributor daemon process in foreground.

The daemon will:
  1. Load configuration from the config file (defaults when omitted)
  2. Initialize logging and prometheus metrics
  3. Start the distributor core and its timeout monitor
  4. Serve the HTTP/JSON API (submit, get_work, status, stats, metrics)
  5. Optionally run a co-located analyzer pool (--with-pool)
  6. Handle SIGTERM/SIGINT for graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if withPool {
			cfg.Pool.Enabled = true
		}
		return daemon.New(cfg).Run()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withPool, "with-pool", false,
		"also run a co-located analyzer pool")
}

// loadConfig loads the config file given by --config, or defaults.
func loadConfig() (*config.GlobalConfig, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}
