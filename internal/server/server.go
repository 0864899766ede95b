// Package server hosts an HTTP handler next to Kubernetes-style health
// probes and shuts it down gracefully. The twin command uses it to run the
// loyalty API twin as a standalone process.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/coffeeclub/internal/health"
	"github.com/felixgeelhaar/coffeeclub/internal/log"
)

// Probe paths. They avoid /health, which belongs to the hosted API.
const (
	LivenessPath  = "/livez"
	ReadinessPath = "/readyz"
	StartupPath   = "/startupz"
	MetricsPath   = "/metrics"
)

// Server serves an application handler plus probe endpoints.
type Server struct {
	httpServer      *http.Server
	probeManager    *health.ProbeManager
	logger          *log.Logger
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address, e.g. "127.0.0.1:5050".
	Address string

	// ShutdownTimeout bounds connection draining. Defaults to 30s.
	ShutdownTimeout time.Duration

	// ReadTimeout, WriteTimeout and IdleTimeout default to 10s, 10s and 60s.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Logger *log.Logger

	// Metrics, when set, is served on MetricsPath.
	Metrics http.Handler
}

// NewServer wires app behind the probe routes. app may be nil, in which
// case only the probes are served.
func NewServer(probeManager *health.ProbeManager, app http.Handler, cfg Config) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	s := &Server{
		probeManager:    probeManager,
		logger:          log.OrDefault(cfg.Logger).With("component", "server"),
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	r := chi.NewRouter()
	r.Get(LivenessPath, s.handleLiveness)
	r.Get(ReadinessPath, s.handleReadiness)
	r.Get(StartupPath, s.handleStartup)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, MetricsPath, cfg.Metrics)
	}
	if app != nil {
		r.Mount("/", app)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Slog().Handler(), slog.LevelError),
	}
	return s
}

// Handler returns the root handler, probes included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Listen opens the configured address. Callers that need the bound port
// (for ":0") use it before Serve.
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.httpServer.Addr)
}

// Serve marks the server initialized and blocks until it stops. It returns
// http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.probeManager.MarkInitialized()
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Start is Listen followed by Serve.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown fails readiness, stops keep-alives and drains connections for
// at most the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("shutdown timed out, closing remaining connections")
		_ = s.httpServer.Close()
	}
	return err
}

// IsShuttingDown reports whether Shutdown has been called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) writeProbeResponse(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = unhealthyStatus
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Warn("write probe response", "error", err.Error())
	}
}

// Liveness always answers 200; shutdown only degrades it.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckLiveness(r.Context()), http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}

func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckStartup(r.Context()), http.StatusServiceUnavailable)
}
