// Package delay implements a processor that simulates work with a fixed
// sleep. It stands in where a real analyzer would parse, index, aggregate or
// alert on the record.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/pkg/plugin"
)

// Config represents delay processor configuration.
type Config struct {
	Delay string `mapstructure:"delay"` // duration string, default "100ms"
}

// Processor sleeps for a configured duration per record.
type Processor struct {
	delay time.Duration
}

// New creates a new delay processor.
func New() plugin.Processor {
	return &Processor{delay: 100 * time.Millisecond}
}

// Name returns the plugin name.
func (p *Processor) Name() string {
	return "delay"
}

// Init initializes the processor with configuration.
func (p *Processor) Init(cfg map[string]any) error {
	if cfg == nil {
		return nil
	}

	var c Config
	if err := mapstructure.Decode(cfg, &c); err != nil {
		return fmt.Errorf("invalid delay config: %w", err)
	}

	if c.Delay != "" {
		d, err := time.ParseDuration(c.Delay)
		if err != nil {
			return fmt.Errorf("invalid delay %q: %w", c.Delay, err)
		}
		if d < 0 {
			return fmt.Errorf("delay must be non-negative, got %s", c.Delay)
		}
		p.delay = d
	}

	return nil
}

// Process sleeps for the configured delay, honoring cancellation.
func (p *Processor) Process(ctx context.Context, rec *core.LogRecord) error {
	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
