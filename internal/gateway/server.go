// Package gateway exposes the research loop over HTTP: batch and streaming
// research endpoints, cancellation, template discovery, and operational
// surfaces (health, metrics).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/deepscribe/internal/agent"
	"github.com/haasonsaas/deepscribe/internal/config"
	"github.com/haasonsaas/deepscribe/internal/observability"
)

// Server hosts the HTTP API in front of a research loop.
type Server struct {
	config  *config.Config
	loop    *agent.ResearchLoop
	metrics *observability.Metrics
	logger  *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a gateway server. The loop is required; metrics and
// logger fall back to working defaults.
func NewServer(cfg *config.Config, loop *agent.ResearchLoop, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if loop == nil {
		return nil, errors.New("gateway: research loop is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:  cfg,
		loop:    loop,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/research", s.instrument("/api/research", s.handleResearch))
	mux.HandleFunc("POST /api/research/stream", s.instrument("/api/research/stream", s.handleResearchStream))
	mux.HandleFunc("POST /api/research/{session_id}/cancel", s.instrument("/api/research/cancel", s.handleCancel))

	mux.HandleFunc("GET /api/templates", s.instrument("/api/templates", s.handleTemplates))
	mux.HandleFunc("POST /api/clarifications", s.instrument("/api/clarifications", s.handleClarifications))

	return mux
}

// Start begins serving. It returns once the listener is bound; serving
// continues on a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

// Addr returns the bound listen address, useful when port 0 was requested.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server, waiting for in-flight requests up
// to the configured timeout.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx := ctx
	var cancel context.CancelFunc
	if shutdownCtx == nil {
		shutdownCtx, cancel = context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// instrument wraps a handler with request duration and count metrics.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)

		status := strconv.Itoa(sw.status)
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		s.metrics.HTTPRequestCounter.WithLabelValues(r.Method, path, status).Inc()
	}
}

// statusWriter records the response status for instrumentation. Flush is
// forwarded so SSE streaming keeps working through the wrapper.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
