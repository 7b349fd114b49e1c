// Package daemon implements the distributor daemon lifecycle.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AnimatorJoe/distributor/internal/analyzer"
	"github.com/AnimatorJoe/distributor/internal/config"
	"github.com/AnimatorJoe/distributor/internal/distributor"
	logpkg "github.com/AnimatorJoe/distributor/internal/log"
	"github.com/AnimatorJoe/distributor/internal/server"
)

// Daemon manages the distributor process lifecycle: logging, prometheus
// metrics, the distributor core with its monitor, the HTTP API, and an
// optional co-located analyzer pool.
type Daemon struct {
	config *config.GlobalConfig

	service       *distributor.Service
	apiServer     *server.Server
	metricsServer *server.MetricsServer // nil if metrics disabled
	pool          *analyzer.Pool        // nil unless pool.enabled

	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
}

// New creates a daemon from validated configuration.
func New(cfg *config.GlobalConfig) *Daemon {
	d := &Daemon{config: cfg}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := logpkg.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting distributor daemon",
		"listen", d.config.Server.Listen,
		"task_timeout", d.config.TaskTimeout,
		"monitor_interval", d.config.MonitorInterval)

	// 2. Start prometheus metrics server
	if d.config.Metrics.Enabled {
		d.metricsServer = server.NewMetricsServer(d.config.Metrics.Listen, d.config.Metrics.Path)
		if err := d.metricsServer.Start(d.ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// 3. Start the distributor core and its timeout monitor
	d.service = distributor.NewService(distributor.Options{
		TaskTimeout:           d.config.TaskTimeoutD,
		MonitorInterval:       d.config.MonitorIntervalD,
		MaxRetries:            d.config.MaxRetries,
		BackpressureThreshold: d.config.BackpressureThreshold,
	})
	d.service.Start(d.ctx)

	// 4. Start the HTTP API
	d.apiServer = server.New(d.config.Server.Listen, d.service)
	if err := d.apiServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}

	// 5. Optionally run a co-located analyzer pool and register it as the
	// analyzer source for scaling metrics
	if d.config.Pool.Enabled {
		pool, err := NewPoolFromConfig(d.config.Pool)
		if err != nil {
			return fmt.Errorf("failed to build analyzer pool: %w", err)
		}
		d.pool = pool
		d.service.RegisterAnalyzerSource(pool)
		if err := d.pool.Start(d.ctx); err != nil {
			return fmt.Errorf("failed to start analyzer pool: %w", err)
		}
	}

	slog.Info("daemon started successfully")
	return nil
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Stop the pool first so workers drain their in-flight tasks while
	// the API is still accepting their status reports
	if d.pool != nil {
		d.pool.Stop()
	}

	// 2. Stop the API server (no new submissions or pulls)
	if d.apiServer != nil {
		if err := d.apiServer.Stop(context.Background()); err != nil {
			slog.Error("error stopping api server", "error", err)
		}
	}

	// 3. Stop the distributor monitor
	if d.service != nil {
		d.service.Stop()
	}

	// 4. Stop metrics server
	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(context.Background()); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 5. Cancel context to signal any remaining goroutines
	d.cancel()

	// 6. Unregister signal handler
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	slog.Info("daemon stopped gracefully")
}

// Run starts the daemon and blocks until SIGTERM or SIGINT.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-d.sigChan
	slog.Info("received shutdown signal", "signal", sig.String())

	d.Stop()
	return nil
}

// NewPoolFromConfig builds an analyzer pool from the pool config section.
func NewPoolFromConfig(cfg config.PoolConfig) (*analyzer.Pool, error) {
	return analyzer.NewPool(analyzer.PoolOptions{
		DistributorURL:    cfg.DistributorURL,
		Size:              cfg.Size,
		Weights:           cfg.Weights,
		PollInterval:      cfg.PollIntervalD,
		HeartbeatInterval: cfg.HeartbeatIntervalD,
		ProcessorName:     cfg.Processor.Name,
		ProcessorConfig:   cfg.Processor.Config,
		Autoscale: analyzer.AutoscaleOptions{
			Enabled:            cfg.Autoscale.Enabled,
			MinSize:            cfg.Autoscale.MinSize,
			MaxSize:            cfg.Autoscale.MaxSize,
			ScaleUpThreshold:   cfg.Autoscale.ScaleUpThreshold,
			ScaleDownThreshold: cfg.Autoscale.ScaleDownThreshold,
			CheckInterval:      cfg.Autoscale.ScaleCheckIntervalD,
			Cooldown:           cfg.Autoscale.ScaleCooldownD,
			ScaleUpCount:       cfg.Autoscale.ScaleUpCount,
			ScaleDownCount:     cfg.Autoscale.ScaleDownCount,
			ScaleWeight:        cfg.Autoscale.ScaleWeight,
		},
	})
}
