package solr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/z3950gw/gateway/internal/zoom"
)

func TestSearch_ParsesNumFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("rows"); got != "0" {
			t.Errorf("expected rows=0 for a hit-count-only search, got %q", got)
		}
		w.Write([]byte(`<response><result numFound="3"></result></response>`))
	}))
	defer srv.Close()

	dialer := NewDialer()
	conn, err := dialer.Dial(context.Background(), srv.URL, zoom.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := conn.Search(context.Background(), "year:[* TO 2000]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Hits != 3 {
		t.Errorf("got %+v", result)
	}
}

func TestRecord_FetchesByOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("start"); got != "4" {
			t.Errorf("expected start=4 for offset 5, got %q", got)
		}
		w.Write([]byte(`<response><result numFound="1"><doc><str name="marcxml">&lt;record/&gt;</str></doc></result></response>`))
	}))
	defer srv.Close()

	dialer := NewDialer()
	conn, _ := dialer.Dial(context.Background(), srv.URL, zoom.Options{})
	rec, err := conn.Record(context.Background(), 5, zoom.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.XML, "<record/>") {
		t.Errorf("expected unescaped record content, got %q", rec.XML)
	}
}

func TestSearch_SolrErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response><lst><str>org.apache.solr.search.SyntaxError: boom</str></lst></response>`))
	}))
	defer srv.Close()

	dialer := NewDialer()
	conn, _ := dialer.Dial(context.Background(), srv.URL, zoom.Options{})
	_, err := conn.Search(context.Background(), "bad:(")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "SyntaxError") {
		t.Errorf("expected Solr error message to surface, got %v", err)
	}
}

func TestSplitScanClause(t *testing.T) {
	field, prefix := splitScanClause("title:war")
	if field != "title" || prefix != "war" {
		t.Errorf("got field=%q prefix=%q", field, prefix)
	}
	field, prefix = splitScanClause("title")
	if field != "title" || prefix != "" {
		t.Errorf("got field=%q prefix=%q", field, prefix)
	}
}
