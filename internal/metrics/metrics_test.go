package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
	if m.OperationsTotal == nil {
		t.Error("expected OperationsTotal to be initialized")
	}
	if m.DiagnosticsTotal == nil {
		t.Error("expected DiagnosticsTotal to be initialized")
	}
}

func TestMetrics_ObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("search", "ok", 10*time.Millisecond)
	m.ObserveDiagnostic(121)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	out := string(body)
	if !strings.Contains(out, "gateway_operations_total") {
		t.Error("expected gateway_operations_total in metrics output")
	}
	if !strings.Contains(out, "gateway_diagnostics_total") {
		t.Error("expected gateway_diagnostics_total in metrics output")
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := New()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
