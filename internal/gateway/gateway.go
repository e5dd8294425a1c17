// Package gateway is the session driver described in spec.md section 4.1:
// a dispatcher keyed by operation, wrapping every handler in a failure
// barrier that translates back-end errors into BIB-1 diagnostics, logs at
// slog.Debug/Warn, and records Prometheus counters/histograms
// (SPEC_FULL.md section 4.1).
package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/diag"
	"github.com/z3950gw/gateway/internal/metrics"
	"github.com/z3950gw/gateway/internal/session"
)

// Server holds the process-wide state shared by every session: the atomic
// config snapshot (spec.md section 9 "config snapshot on Init" design
// note), the dialer set wired per back-end dialect, metrics, and a logger.
type Server struct {
	configPath string
	cfg        atomic.Pointer[config.GatewayConfig]
	dialers    session.Dialers
	metrics    *metrics.Metrics
	logger     *slog.Logger
	authClient authenticator
}

// NewServer loads the initial configuration and returns a ready Server.
func NewServer(configPath string, dialers session.Dialers, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	s := &Server{configPath: configPath, dialers: dialers, metrics: m, logger: logger, authClient: httpAuthenticator{}}
	s.cfg.Store(cfg)
	return s, nil
}

// Reload re-reads the configuration file from disk and swaps the atomic
// pointer; in-flight sessions keep the snapshot they captured at their own
// Init (spec.md section 5).
func (s *Server) Reload() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		s.logger.Warn("config reload failed", "error", err)
		return err
	}
	s.cfg.Store(cfg)
	s.logger.Info("config reloaded", "path", s.configPath)
	return nil
}

// Ready reports whether a configuration has ever loaded successfully,
// backing the admin surface's /healthz (SPEC_FULL.md section 4.10).
func (s *Server) Ready() bool {
	return s.cfg.Load() != nil
}

// Metrics exposes the shared metrics instance for the admin HTTP surface.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Config exposes the current config snapshot, for the admin surface and
// for tests that need to seed databases without a config file on disk.
func (s *Server) Config() *config.GatewayConfig { return s.cfg.Load() }

// NewSession creates a fresh per-client session bound to the current
// config snapshot. Call once per client connection.
func (s *Server) NewSession() *session.Session {
	return session.New(s.cfg.Load(), s.dialers)
}

// call wraps a handler body in the failure barrier: BackendError values
// reaching it (via diag.Translate having already run inside the handler,
// or a raw error the handler didn't wrap) are never expected here — by
// contract, handlers return *diag.Error directly; call's job is purely the
// cross-cutting logging/metrics/timing (spec.md section 4.1).
func (s *Server) call(ctx context.Context, sess *session.Session, op string, fn func(context.Context) *diag.Error) *diag.Error {
	start := time.Now()
	derr := fn(ctx)
	dur := time.Since(start)

	outcome := "ok"
	if derr != nil {
		outcome = "diagnostic"
		s.logger.Warn("operation failed", "session", sess.ID, "op", op, "code", derr.Code, "addinfo", derr.AddInfo, "duration", dur)
		if s.metrics != nil {
			s.metrics.ObserveDiagnostic(derr.Code)
		}
	} else {
		s.logger.Debug("operation completed", "session", sess.ID, "op", op, "duration", dur)
	}
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, outcome, dur)
	}
	return derr
}
