package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes /metrics on its own listener, separate from any
// application HTTP surface (spec.md §13 keeps HTTP routing itself out of
// the core's scope; this is operational plumbing around it, grounded on
// ManuGH-xg2g's cmd/daemon/main.go mounting promhttp.Handler() on a
// dedicated MetricsAddr).
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds a metrics server bound to addr (e.g. ":9090").
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the metrics listener until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) Start(ctx context.Context) {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("telemetry: metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("telemetry: metrics server shutdown error")
		}
	}()
}
