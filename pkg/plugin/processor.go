// Package plugin defines the analyzer processor plugin API.
package plugin

import (
	"context"

	"github.com/AnimatorJoe/distributor/internal/core"
)

// Processor is the unit of work an analyzer runs for each pulled record.
// Implementations may take arbitrarily long; the analyzer emits heartbeats
// around the call. Returning an error marks the task failed on the
// distributor.
type Processor interface {
	Name() string
	Init(cfg map[string]any) error
	Process(ctx context.Context, rec *core.LogRecord) error
}
