// Package console implements a processor that prints records to stdout in
// human-readable or JSON form. Useful for demos and debugging.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/pkg/plugin"
)

// Config represents console processor configuration.
type Config struct {
	Format string `mapstructure:"format"` // "json" or "text", default "text"
}

// Processor prints each record to stdout.
type Processor struct {
	format         string
	processedCount atomic.Uint64
}

// New creates a new console processor.
func New() plugin.Processor {
	return &Processor{format: "text"}
}

// Name returns the plugin name.
func (p *Processor) Name() string {
	return "console"
}

// Init initializes the processor with configuration.
func (p *Processor) Init(cfg map[string]any) error {
	if cfg == nil {
		return nil
	}

	var c Config
	if err := mapstructure.Decode(cfg, &c); err != nil {
		return fmt.Errorf("invalid console config: %w", err)
	}

	if c.Format != "" {
		if c.Format != "json" && c.Format != "text" {
			return fmt.Errorf("invalid format %q, must be json or text", c.Format)
		}
		p.format = c.Format
	}

	return nil
}

// Process prints the record.
func (p *Processor) Process(ctx context.Context, rec *core.LogRecord) error {
	n := p.processedCount.Add(1)

	switch p.format {
	case "json":
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		fmt.Println(string(data))
	default:
		fmt.Printf("[%d] %s %s %s: %s\n",
			n, rec.Timestamp.Format("15:04:05.000"), rec.Level, rec.Source, rec.Message)
	}

	return nil
}
