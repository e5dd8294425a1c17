package pqf

import (
	"context"
	"testing"

	"github.com/z3950gw/gateway/internal/zoom"
)

func TestComposeOr(t *testing.T) {
	got := ComposeOr([]string{"@attr 1=4 war", "@attr 1=4 peace", "@attr 1=4 truce"})
	want := "@or @or @attr 1=4 war @attr 1=4 peace @attr 1=4 truce"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestComposeOr_Single(t *testing.T) {
	if got := ComposeOr([]string{"@attr 1=4 war"}); got != "@attr 1=4 war" {
		t.Errorf("got %q", got)
	}
}

func TestComposeSet(t *testing.T) {
	if got := ComposeSet("default"); got != `@set "default"` {
		t.Errorf("got %q", got)
	}
}

type fakeTransport struct {
	hits   int
	handle string
	record string
	closed string
}

func (f *fakeTransport) Search(ctx context.Context, zurl, query string, opts zoom.Options) (int, string, error) {
	return f.hits, f.handle, nil
}
func (f *fakeTransport) Fetch(ctx context.Context, handle string, offset int, opts zoom.Options) (string, error) {
	return f.record, nil
}
func (f *fakeTransport) ScanTerms(ctx context.Context, zurl string, req zoom.ScanRequest, opts zoom.Options) (zoom.ScanResult, error) {
	return zoom.ScanResult{}, nil
}
func (f *fakeTransport) Close(handle string) error {
	f.closed = handle
	return nil
}

func TestDial_NoTransportConfiguredFails(t *testing.T) {
	dialer := &Dialer{}
	_, err := dialer.Dial(context.Background(), "tcp:localhost:210/db", zoom.Options{})
	if err == nil {
		t.Fatal("expected an error when no transport is configured")
	}
}

func TestSearchAndRecord_NormalizesEnvelope(t *testing.T) {
	ft := &fakeTransport{hits: 5, handle: "rs-9", record: "<record><leader>x</leader></record>"}
	dialer := &Dialer{Transport: ft}
	conn, err := dialer.Dial(context.Background(), "tcp:localhost:210/db", zoom.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := conn.Search(context.Background(), "@attr 1=4 war")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Hits != 5 || result.RSID != "rs-9" {
		t.Errorf("got %+v", result)
	}

	rec, err := conn.Record(context.Background(), 1, zoom.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `<doc><str name="marcxml"><record><leader>x</leader></record></str></doc>`; rec.XML != want {
		t.Errorf("got %q, want %q", rec.XML, want)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.closed != "rs-9" {
		t.Errorf("expected Close to release handle %q, got %q", "rs-9", ft.closed)
	}
}
