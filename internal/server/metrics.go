package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the prometheus registry on its own listener. This is
// operational telemetry, separate from the JSON /metrics endpoint the public
// API serves to the autoscaler.
type MetricsServer struct {
	addr     string
	path     string
	listener *listener
}

// NewMetricsServer creates a metrics server for the given address and path.
func NewMetricsServer(addr, path string) *MetricsServer {
	if path == "" {
		path = "/metrics"
	}
	return &MetricsServer{
		addr: addr,
		path: path,
	}
}

// Handler builds the route table. Exposed for tests.
func (m *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(m.path, promhttp.Handler())
	return mux
}

// Start starts the metrics server.
func (m *MetricsServer) Start(ctx context.Context) error {
	m.listener = newListener("metrics", m.addr, m.Handler())
	m.listener.start()
	return nil
}

// Stop gracefully stops the metrics server.
func (m *MetricsServer) Stop(ctx context.Context) error {
	if m.listener == nil {
		return nil
	}
	return m.listener.stop(ctx)
}
