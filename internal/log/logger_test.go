package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AnimatorJoe/distributor/internal/config"
)

func TestLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		// Unvalidated input falls back to info.
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := level(tc.in); got != tc.want {
			t.Errorf("level(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInit_TextAndJSON(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		cfg := config.LogConfig{Level: "info", Format: format}
		if err := Init(cfg); err != nil {
			t.Errorf("Init(%s): %v", format, err)
		}
	}
}

func TestCombinedOutput_DefaultsToStdout(t *testing.T) {
	w, err := combinedOutput(nil)
	if err != nil {
		t.Fatalf("combinedOutput: %v", err)
	}
	if w != os.Stdout {
		t.Errorf("no outputs should mean stdout, got %T", w)
	}
}

func TestCombinedOutput_SingleWriterUnwrapped(t *testing.T) {
	w, err := combinedOutput([]config.OutputConfig{{Type: "console"}})
	if err != nil {
		t.Fatalf("combinedOutput: %v", err)
	}
	if w != os.Stdout {
		t.Errorf("single console output should be stdout itself, got %T", w)
	}
}

func TestCombinedOutput_MultiWriter(t *testing.T) {
	w, err := combinedOutput([]config.OutputConfig{
		{Type: "console"},
		{Type: "file", Path: filepath.Join(t.TempDir(), "out.log")},
	})
	if err != nil {
		t.Fatalf("combinedOutput: %v", err)
	}
	if w == os.Stdout {
		t.Error("two outputs should produce a combined writer")
	}
}

func TestNewWriter_FileUsesRotation(t *testing.T) {
	w, err := newWriter(config.OutputConfig{
		Type:      "file",
		Path:      filepath.Join(t.TempDir(), "out.log"),
		MaxSizeMB: 10,
	})
	if err != nil {
		t.Fatalf("newWriter: %v", err)
	}
	lj, ok := w.(*lumberjack.Logger)
	if !ok {
		t.Fatalf("file output should rotate, got %T", w)
	}
	if lj.MaxSize != 10 {
		t.Errorf("MaxSize: got %d, want 10", lj.MaxSize)
	}
}

func TestNewWriter_FileRequiresPath(t *testing.T) {
	if _, err := newWriter(config.OutputConfig{Type: "file"}); err == nil {
		t.Error("file output without path should be rejected")
	}
}

func TestNewWriter_UnknownType(t *testing.T) {
	if _, err := newWriter(config.OutputConfig{Type: "syslog"}); err == nil {
		t.Error("unsupported output type should be rejected")
	}
}

func TestInit_BadOutputFails(t *testing.T) {
	cfg := config.LogConfig{
		Level:   "info",
		Format:  "text",
		Outputs: []config.OutputConfig{{Type: "file"}}, // no path
	}
	if err := Init(cfg); err == nil {
		t.Error("Init with an unusable output should fail")
	}
}
