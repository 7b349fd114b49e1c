// Package plugins registers all built-in plugins.
package plugins

import (
	"github.com/AnimatorJoe/distributor/pkg/plugin"
	"github.com/AnimatorJoe/distributor/plugins/processor/console"
	"github.com/AnimatorJoe/distributor/plugins/processor/delay"
)

func init() {
	// Register processor plugins
	plugin.RegisterProcessor("delay", delay.New)
	plugin.RegisterProcessor("console", console.New)
}
