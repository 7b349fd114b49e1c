// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AnimatorJoe/distributor/internal/daemon"
	logpkg "github.com/AnimatorJoe/distributor/internal/log"
)

var poolURL string

// poolCmd runs a standalone analyzer pool against a remote distributor.
var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Run a standalone analyzer pool",
	Long: `Run an analyzer pool against a remote distributor.

The pool section of the config file controls size, weights, poll and
heartbeat intervals, the processor plugin, and autoscaling. The target
distributor URL can be overridden with --url.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logpkg.Init(cfg.Log); err != nil {
			return err
		}
		if poolURL != "" {
			cfg.Pool.DistributorURL = poolURL
		}

		pool, err := daemon.NewPoolFromConfig(cfg.Pool)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := pool.Start(ctx); err != nil {
			return err
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig.String())

		pool.Stop()
		return nil
	},
}

func init() {
	poolCmd.Flags().StringVar(&poolURL, "url", "", "distributor base URL (overrides config)")
}
