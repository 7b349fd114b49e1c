// Package log wires the process-wide slog logger from configuration.
//
// Level, format and output types are validated by config.Load; this package
// only assembles the handler chain. Callers constructing a LogConfig by hand
// get the same defaults a validated config would carry: info level, text
// format, stdout.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AnimatorJoe/distributor/internal/config"
)

// Init installs the global logger described by cfg.
func Init(cfg config.LogConfig) error {
	handler, err := newHandler(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// newHandler builds the slog handler for the configured format, level and
// outputs.
func newHandler(cfg config.LogConfig) (slog.Handler, error) {
	out, err := combinedOutput(cfg.Outputs)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(out, opts), nil
	}
	return slog.NewTextHandler(out, opts), nil
}

// level maps the config level string to slog. Strings config.Load would have
// rejected fall back to info.
func level(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// combinedOutput builds a single writer spanning every configured output.
// No outputs means stdout.
func combinedOutput(outputs []config.OutputConfig) (io.Writer, error) {
	var writers []io.Writer
	for i, out := range outputs {
		w, err := newWriter(out)
		if err != nil {
			return nil, fmt.Errorf("log output[%d] (%s): %w", i, out.Type, err)
		}
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func newWriter(out config.OutputConfig) (io.Writer, error) {
	switch strings.ToLower(out.Type) {
	case "", "console", "stdout":
		return os.Stdout, nil

	case "file":
		if out.Path == "" {
			return nil, fmt.Errorf("file output requires a path")
		}
		// lumberjack handles rotation; zero values mean its own defaults.
		return &lumberjack.Logger{
			Filename:   out.Path,
			MaxSize:    out.MaxSizeMB,
			MaxBackups: out.MaxBackups,
			MaxAge:     out.MaxAgeDays,
			Compress:   out.Compress,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported type %q", out.Type)
	}
}
