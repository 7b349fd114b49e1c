// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnimatorJoe/distributor/internal/analyzer"
	"github.com/AnimatorJoe/distributor/internal/core"
)

var (
	submitURL     string
	submitLevel   string
	submitMessage string
	submitSource  string
)

// submitCmd sends a single log record to a running distributor.
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a log record",
	Long:  "Submit a single log record to a running distributor and print the task id.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := &core.LogRecord{
			Timestamp: time.Now().UTC(),
			Level:     core.LogLevel(submitLevel),
			Message:   submitMessage,
			Source:    submitSource,
			Metadata:  map[string]any{},
		}
		if err := rec.Validate(); err != nil {
			return err
		}

		client := analyzer.NewClient(submitURL, 10*time.Second)
		taskID, err := client.Submit(context.Background(), rec)
		if err != nil {
			return fmt.Errorf("failed to submit: %w", err)
		}

		fmt.Println(taskID)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitURL, "url", "http://localhost:8080", "distributor base URL")
	submitCmd.Flags().StringVarP(&submitLevel, "level", "l", "INFO", "log level")
	submitCmd.Flags().StringVarP(&submitMessage, "message", "m", "", "log message (required)")
	submitCmd.Flags().StringVarP(&submitSource, "source", "s", "cli", "log source")
	_ = submitCmd.MarkFlagRequired("message")
}
