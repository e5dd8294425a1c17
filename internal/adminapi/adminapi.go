// Package adminapi is the chi-mounted ops HTTP surface described in
// SPEC_FULL.md section 4.10: health, Prometheus metrics, and an out-of-band
// config reload trigger. It carries no Z39.50 semantics and participates in
// no session.
package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/z3950gw/gateway/internal/metrics"
)

// Server is the thing a reloadable gateway exposes to the admin router.
type Server interface {
	Ready() bool
	Reload() error
	Metrics() *metrics.Metrics
}

// NewRouter builds the chi router for the admin surface.
func NewRouter(srv Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if m := srv.Metrics(); m != nil {
		r.Use(m.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !srv.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if m := srv.Metrics(); m != nil {
			m.Handler().ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	r.Post("/debug/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := srv.Reload(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
