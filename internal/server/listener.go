package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// listener owns one http.Server lifecycle: serve in the background on Start,
// graceful shutdown on Stop. Both the JSON API and the telemetry endpoint run
// on one of these.
type listener struct {
	name   string
	server *http.Server
}

func newListener(name, addr string, handler http.Handler) *listener {
	return &listener{
		name: name,
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// start serves in a background goroutine. Listen errors surface in the log;
// by that point the daemon is already committed to shutdown-on-signal.
func (l *listener) start() {
	slog.Info("starting http server", "server", l.name, "addr", l.server.Addr)

	go func() {
		if err := l.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "server", l.name, "error", err)
		}
	}()
}

// stop drains in-flight requests, bounded to five seconds.
func (l *listener) stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := l.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown failed: %w", l.name, err)
	}

	slog.Info("http server stopped", "server", l.name)
	return nil
}
