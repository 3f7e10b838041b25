package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// metricsServer exposes the engine's Prometheus collectors over HTTP.
type metricsServer struct {
	srv     *http.Server
	ln      net.Listener
	logger  *slog.Logger
	errCh   chan error
	timeout time.Duration
}

// newMetricsRouter routes /metrics and /healthz.
func newMetricsRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// startMetrics listens on addr and serves in the background.
func startMetrics(addr string, logger *slog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	return serveMetrics(ln, logger), nil
}

// serveMetrics serves on ln in the background.
func serveMetrics(ln net.Listener, logger *slog.Logger) *metricsServer {
	m := &metricsServer{
		srv: &http.Server{
			Handler:           newMetricsRouter(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		ln:      ln,
		logger:  logger,
		errCh:   make(chan error, 1),
		timeout: shutdownTimeout,
	}
	go func() {
		logger.Info("metrics listening", "addr", ln.Addr().String())
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.errCh <- err
		}
		close(m.errCh)
	}()
	return m
}

// Addr returns the bound address.
func (m *metricsServer) Addr() string { return m.ln.Addr().String() }

// Wait blocks until ctx is done or the server fails.
func (m *metricsServer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-m.errCh:
		if ok && err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}

// Shutdown stops the server and waits for the serve loop to exit.
func (m *metricsServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	err := m.srv.Shutdown(ctx)
	for range m.errCh {
	}
	if err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	m.logger.Info("metrics stopped")
	return nil
}

// stopMetrics shuts m down, logging a failed shutdown.
func stopMetrics(m *metricsServer) {
	if err := m.Shutdown(); err != nil {
		m.logger.Warn("metrics shutdown failed", "error", err)
	}
}
