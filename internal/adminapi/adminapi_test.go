package adminapi

import (
	"net/http/httptest"
	"testing"

	"github.com/z3950gw/gateway/internal/metrics"
)

type fakeServer struct {
	ready      bool
	reloadErr  error
	reloaded   bool
	m          *metrics.Metrics
}

func (f *fakeServer) Ready() bool { return f.ready }
func (f *fakeServer) Reload() error {
	f.reloaded = true
	return f.reloadErr
}
func (f *fakeServer) Metrics() *metrics.Metrics { return f.m }

func TestHealthz_ReadyReturnsOK(t *testing.T) {
	srv := &fakeServer{ready: true, m: metrics.New()}
	router := NewRouter(srv)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Errorf("got status %d", rec.Code)
	}
}

func TestHealthz_NotReadyReturns503(t *testing.T) {
	srv := &fakeServer{ready: false, m: metrics.New()}
	router := NewRouter(srv)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Errorf("got status %d", rec.Code)
	}
}

func TestReload_TriggersServerReload(t *testing.T) {
	srv := &fakeServer{ready: true, m: metrics.New()}
	router := NewRouter(srv)

	req := httptest.NewRequest("POST", "/debug/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 204 {
		t.Errorf("got status %d", rec.Code)
	}
	if !srv.reloaded {
		t.Error("expected Reload to be called")
	}
}

func TestReload_ErrorReturns500(t *testing.T) {
	srv := &fakeServer{ready: true, m: metrics.New(), reloadErr: errReload("boom")}
	router := NewRouter(srv)

	req := httptest.NewRequest("POST", "/debug/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 500 {
		t.Errorf("got status %d", rec.Code)
	}
}

func TestMetrics_ServesPrometheusOutput(t *testing.T) {
	srv := &fakeServer{ready: true, m: metrics.New()}
	router := NewRouter(srv)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Errorf("got status %d", rec.Code)
	}
}

type errReload string

func (e errReload) Error() string { return string(e) }
