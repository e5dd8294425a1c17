package sru

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/z3950gw/gateway/internal/zoom"
)

func TestSearch_ParsesHitCountAndRSID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<searchRetrieveResponse>
			<numberOfRecords>7</numberOfRecords>
			<resultSetId>rs-1</resultSetId>
		</searchRetrieveResponse>`))
	}))
	defer srv.Close()

	dialer := NewDialer()
	conn, err := dialer.Dial(context.Background(), srv.URL, zoom.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := conn.Search(context.Background(), "title = war")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Hits != 7 || result.RSID != "rs-1" {
		t.Errorf("got %+v", result)
	}
}

func TestSearch_SRWDiagnosticTranslated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<searchRetrieveResponse>
			<diagnostics>
				<diagnostic><uri>info:srw/diagnostic/1/66</uri><message>unsupported record syntax</message></diagnostic>
			</diagnostics>
		</searchRetrieveResponse>`))
	}))
	defer srv.Close()

	dialer := NewDialer()
	conn, _ := dialer.Dial(context.Background(), srv.URL, zoom.Options{})
	_, err := conn.Search(context.Background(), "title = war")
	if err == nil {
		t.Fatal("expected a backend error")
	}
	if !strings.Contains(err.Error(), "66") && !strings.Contains(err.Error(), "unsupported record syntax") {
		t.Errorf("expected SRW diagnostic detail to surface, got %v", err)
	}
}

func TestRecord_NoSchemaWrapsGenericEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("recordSchema"); got != "marcxml" {
			t.Errorf("expected default recordSchema=marcxml, got %q", got)
		}
		w.Write([]byte(`<searchRetrieveResponse>
			<records>
				<record>
					<recordSchema>marcxml</recordSchema>
					<recordData><record><leader>x</leader></record></recordData>
				</record>
			</records>
		</searchRetrieveResponse>`))
	}))
	defer srv.Close()

	dialer := NewDialer()
	conn, _ := dialer.Dial(context.Background(), srv.URL, zoom.Options{})
	rec, err := conn.Record(context.Background(), 1, zoom.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(rec.XML, `<doc><str name="marcxml">`) {
		t.Errorf("expected generic envelope, got %q", rec.XML)
	}
}

func TestRecord_WithSchemaReturnsRawContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<searchRetrieveResponse>
			<records>
				<record>
					<recordSchema>dc</recordSchema>
					<recordData><dc><title>x</title></dc></recordData>
				</record>
			</records>
		</searchRetrieveResponse>`))
	}))
	defer srv.Close()

	dialer := NewDialer()
	conn, _ := dialer.Dial(context.Background(), srv.URL, zoom.Options{})
	rec, err := conn.Record(context.Background(), 1, zoom.Options{Schema: "dc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(rec.XML, `<doc><str`) {
		t.Errorf("expected raw content without generic envelope, got %q", rec.XML)
	}
}
