// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AnimatorJoe/distributor/internal/analyzer"
)

var (
	statsURL    string
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show distributor statistics",
	Long: `Query a running distributor for statistics.

Shows: queue depth, in-progress count, completion/failure/requeue totals,
backpressure, and supervisor-reported analyzer counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := analyzer.NewClient(statsURL, 5*time.Second)
		stats, err := client.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to query stats: %w", err)
		}

		switch statsFormat {
		case "json":
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format result: %w", err)
			}
			fmt.Println(string(data))
		case "yaml":
			data, err := yaml.Marshal(stats)
			if err != nil {
				return fmt.Errorf("failed to format result: %w", err)
			}
			fmt.Print(string(data))
		default:
			return fmt.Errorf("unsupported format %q (must be yaml or json)", statsFormat)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsURL, "url", "http://localhost:8080", "distributor base URL")
	statsCmd.Flags().StringVarP(&statsFormat, "format", "f", "yaml", "output format: yaml | json")
}
