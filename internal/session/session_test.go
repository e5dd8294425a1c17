package session

import (
	"context"
	"testing"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/zoom"
)

type fakeConn struct {
	closed bool
}

func (f *fakeConn) Search(ctx context.Context, query string) (zoom.SearchResult, error) {
	return zoom.SearchResult{Hits: 42, RSID: "rs-1"}, nil
}
func (f *fakeConn) Scan(ctx context.Context, req zoom.ScanRequest) (zoom.ScanResult, error) {
	return zoom.ScanResult{}, nil
}
func (f *fakeConn) Record(ctx context.Context, offset int, opts zoom.Options) (zoom.Record, error) {
	return zoom.Record{}, nil
}
func (f *fakeConn) SRUVersion() string { return "1.1" }
func (f *fakeConn) Close() error       { f.closed = true; return nil }

type fakeDialer struct {
	conn *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, zurl string, opts zoom.Options) (zoom.Connection, error) {
	return d.conn, nil
}

func testConfig() *config.GatewayConfig {
	cfg := config.DefaultConfig()
	cfg.Databases["books"] = &config.DatabaseConfig{
		ZURL:        "http://example.test/sru",
		Search:      config.SearchConfig{QueryType: config.QueryTypeCQL},
		ResultSetID: config.PolicyFallback,
	}
	return cfg
}

func TestResolveDatabase_TooMany(t *testing.T) {
	s := New(testConfig(), Dialers{})
	_, _, err := s.ResolveDatabase([]string{"a", "b"})
	if err == nil || err.Code != 111 {
		t.Fatalf("expected diagnostic 111, got %v", err)
	}
}

func TestResolveDatabase_Missing(t *testing.T) {
	s := New(testConfig(), Dialers{})
	_, _, err := s.ResolveDatabase([]string{"nope"})
	if err == nil || err.Code != 235 {
		t.Fatalf("expected diagnostic 235, got %v", err)
	}
}

func TestResolveDatabase_Virtual(t *testing.T) {
	s := New(testConfig(), Dialers{})
	name, db, err := s.ResolveDatabase([]string{"cfg:address=http://example.test/sru"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "cfg:address=http://example.test/sru" || db.ZURL != "http://example.test/sru" {
		t.Errorf("unexpected resolved virtual db: %+v", db)
	}
}

func TestResolveDatabase_VirtualMissingAddress(t *testing.T) {
	s := New(testConfig(), Dialers{})
	_, _, err := s.ResolveDatabase([]string{"cfg:timeout=30"})
	if err == nil || err.Code != 1 {
		t.Fatalf("expected diagnostic 1, got %v", err)
	}
	if err.AddInfo != "cfg:timeout=30" {
		t.Errorf("expected addinfo to echo the virtual db string, got %q", err.AddInfo)
	}
}

func TestConnection_PooledAcrossCalls(t *testing.T) {
	fc := &fakeConn{}
	s := New(testConfig(), Dialers{config.QueryTypeCQL: &fakeDialer{conn: fc}})
	_, dbCfg, err := s.ResolveDatabase([]string{"books"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c1, derr := s.Connection(context.Background(), "books", dbCfg)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	c2, derr := s.Connection(context.Background(), "books", dbCfg)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if c1 != c2 {
		t.Error("expected the same pooled connection across calls")
	}
}

func TestPublishResultSet_DoubleBindingUnreachable(t *testing.T) {
	s := New(testConfig(), Dialers{})
	s.PublishResultSet("default", &ResultSet{Hits: 1})
	s.PublishResultSet("default", &ResultSet{Hits: 2})

	rs, ok := s.ResultSet("default")
	if !ok || rs.Hits != 2 {
		t.Fatalf("expected the second binding to win, got %+v", rs)
	}
}

func TestClose_ReleasesConnections(t *testing.T) {
	fc := &fakeConn{}
	s := New(testConfig(), Dialers{config.QueryTypeCQL: &fakeDialer{conn: fc}})
	_, dbCfg, _ := s.ResolveDatabase([]string{"books"})
	if _, derr := s.Connection(context.Background(), "books", dbCfg); derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fc.closed {
		t.Error("expected connection to be closed")
	}
}
