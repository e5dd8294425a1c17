package gateway

import (
	"context"
	"testing"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/metrics"
	"github.com/z3950gw/gateway/internal/rpn"
	"github.com/z3950gw/gateway/internal/session"
	"github.com/z3950gw/gateway/internal/sortplan"
	"github.com/z3950gw/gateway/internal/zoom"
	"log/slog"
	"os"
)

type fakeConn struct {
	hits       int
	rsid       string
	record     zoom.Record
	scan       zoom.ScanResult
	failNext   bool
	sruVersion string
}

func (f *fakeConn) Search(ctx context.Context, query string) (zoom.SearchResult, error) {
	return zoom.SearchResult{Hits: f.hits, RSID: f.rsid}, nil
}
func (f *fakeConn) Scan(ctx context.Context, req zoom.ScanRequest) (zoom.ScanResult, error) {
	return f.scan, nil
}
func (f *fakeConn) Record(ctx context.Context, offset int, opts zoom.Options) (zoom.Record, error) {
	return f.record, nil
}
func (f *fakeConn) SRUVersion() string {
	if f.sruVersion == "" {
		return "1.1"
	}
	return f.sruVersion
}
func (f *fakeConn) Close() error       { return nil }

type fakeDialer struct{ conn *fakeConn }

func (d *fakeDialer) Dial(ctx context.Context, zurl string, opts zoom.Options) (zoom.Connection, error) {
	return d.conn, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, conn *fakeConn) (*Server, *session.Session) {
	t.Helper()
	srv, err := NewServer("", session.Dialers{config.QueryTypeCQL: &fakeDialer{conn: conn}}, metrics.New(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := srv.cfg.Load()
	cfg.Databases["books"] = &config.DatabaseConfig{
		ZURL:   "http://example.test/sru",
		Search: config.SearchConfig{QueryType: config.QueryTypeCQL, Map: map[int]config.MapEntry{4: {Index: "title"}}},
		XMLRecord: []config.FieldSpec{{XPath: "", Content: "full"}},
	}
	srv.cfg.Store(cfg)
	return srv, srv.NewSession()
}

func termQuery() rpn.Node {
	return rpn.Term{Term: "war", Attrs: []rpn.Attr{{Type: rpn.AttrUse, Value: 4}}}
}

func TestSearch_PublishesResultSet(t *testing.T) {
	srv, sess := newTestServer(t, &fakeConn{hits: 9, rsid: "rs-1"})
	reply, derr := srv.Search(context.Background(), sess, SearchRequest{Databases: []string{"books"}, SetName: "default", Query: termQuery()})
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if reply.Hits != 9 {
		t.Errorf("got %d hits", reply.Hits)
	}
	rs, ok := sess.ResultSet("default")
	if !ok || rs.Hits != 9 || rs.RSID != "rs-1" {
		t.Errorf("result set not published correctly: %+v", rs)
	}
}

func TestSearch_NoNamedResultSetsRejected(t *testing.T) {
	srv, sess := newTestServer(t, &fakeConn{hits: 1})
	cfg := srv.cfg.Load()
	cfg.Databases["books"].NoNamedResultSets = true
	srv.cfg.Store(cfg)

	_, derr := srv.Search(context.Background(), sess, SearchRequest{Databases: []string{"books"}, SetName: "mySet", Query: termQuery()})
	if derr == nil || derr.Code != 22 {
		t.Fatalf("expected diagnostic 22, got %v", derr)
	}
}

func TestPresent_OutOfRange(t *testing.T) {
	srv, sess := newTestServer(t, &fakeConn{hits: 5})
	sess.PublishResultSet("default", &session.ResultSet{Hits: 5})

	derr := srv.Present(context.Background(), sess, PresentRequest{SetName: "default", Start: 4, Number: 5})
	if derr == nil || derr.Code != 13 {
		t.Fatalf("expected diagnostic 13, got %v", derr)
	}
}

func TestPresent_InRange(t *testing.T) {
	srv, sess := newTestServer(t, &fakeConn{hits: 5})
	sess.PublishResultSet("default", &session.ResultSet{Hits: 5})

	if derr := srv.Present(context.Background(), sess, PresentRequest{SetName: "default", Start: 1, Number: 5}); derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
}

func TestFetch_UnknownResultSet(t *testing.T) {
	srv, sess := newTestServer(t, &fakeConn{})
	_, derr := srv.Fetch(context.Background(), sess, FetchRequest{SetName: "nope", Offset: 1, Syntax: config.SyntaxXML})
	if derr == nil || derr.Code != 128 {
		t.Fatalf("expected diagnostic 128, got %v", derr)
	}
}

func TestFetch_ExtractsGenericEnvelope(t *testing.T) {
	conn := &fakeConn{record: zoom.Record{XML: `<doc><str name="marcxml"><record><leader>x</leader></record></str></doc>`}}
	srv, sess := newTestServer(t, conn)
	sess.PublishResultSet("default", &session.ResultSet{DBName: "books", Hits: 1, Conn: conn})

	reply, derr := srv.Fetch(context.Background(), sess, FetchRequest{SetName: "default", Offset: 1, Syntax: config.SyntaxXML})
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if string(reply.Record) != "<record><leader>x</leader></record>" {
		t.Errorf("got %q", reply.Record)
	}
}

func TestFetch_SniffsSRWDiagnosticFromOldBackend(t *testing.T) {
	conn := &fakeConn{
		sruVersion: "1.1",
		record: zoom.Record{XML: `<doc><str name="marcxml"><diagnostic xmlns="http://www.loc.gov/zing/srw/diagnostic/"><uri>info:srw/diagnostic/1/66</uri><message>Record syntax not supported</message></diagnostic></str></doc>`},
	}
	srv, sess := newTestServer(t, conn)
	sess.PublishResultSet("default", &session.ResultSet{DBName: "books", Hits: 1, Conn: conn})

	_, derr := srv.Fetch(context.Background(), sess, FetchRequest{SetName: "default", Offset: 1, Syntax: config.SyntaxXML})
	if derr == nil {
		t.Fatal("expected a diagnostic, got none")
	}
	if derr.Code != 238 {
		t.Fatalf("expected diagnostic 238 (mapped from SRW 66), got %d", derr.Code)
	}
}

func TestFetch_SkipsSRWSniffOnCurrentBackend(t *testing.T) {
	conn := &fakeConn{
		sruVersion: "1.2",
		record: zoom.Record{XML: `<doc><str name="marcxml"><diagnostic xmlns="http://www.loc.gov/zing/srw/diagnostic/"><uri>info:srw/diagnostic/1/66</uri><message>Record syntax not supported</message></diagnostic></str></doc>`},
	}
	srv, sess := newTestServer(t, conn)
	sess.PublishResultSet("default", &session.ResultSet{DBName: "books", Hits: 1, Conn: conn})

	reply, derr := srv.Fetch(context.Background(), sess, FetchRequest{SetName: "default", Offset: 1, Syntax: config.SyntaxXML})
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	want := `<diagnostic xmlns="http://www.loc.gov/zing/srw/diagnostic/"><uri>info:srw/diagnostic/1/66</uri><message>Record syntax not supported</message></diagnostic>`
	if string(reply.Record) != want {
		t.Errorf("got %q, want %q", reply.Record, want)
	}
}

func TestScan_PartialWhenFewerThanRequested(t *testing.T) {
	conn := &fakeConn{scan: zoom.ScanResult{Entries: []zoom.ScanEntry{{Term: "war", Occurrence: 3}}}}
	srv, sess := newTestServer(t, conn)

	reply, derr := srv.Scan(context.Background(), sess, ScanRequest{Databases: []string{"books"}, Query: termQuery(), Number: 5})
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if !reply.Partial {
		t.Error("expected a partial scan result")
	}
}

func TestDelete_AlwaysSucceeds(t *testing.T) {
	srv, sess := newTestServer(t, &fakeConn{})
	if derr := srv.Delete(context.Background(), sess); derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
}

func TestClose_ClearsSession(t *testing.T) {
	srv, sess := newTestServer(t, &fakeConn{})
	sess.PublishResultSet("default", &session.ResultSet{Hits: 1})
	if derr := srv.Close(context.Background(), sess); derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if _, ok := sess.ResultSet("default"); ok {
		t.Error("expected result sets to be cleared on close")
	}
}

func TestSort_ComposesAndExecutes(t *testing.T) {
	conn := &fakeConn{hits: 2}
	srv, sess := newTestServer(t, conn)
	sess.PublishResultSet("default", &session.ResultSet{DBName: "books", QText: "title = war", Hits: 9, Conn: conn})

	reply, derr := srv.Sort(context.Background(), sess, SortRequest{
		Input:    []string{"default"},
		Output:   "sorted",
		Sequence: []sortplan.KeySource{{SortField: "title"}},
	})
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if reply.Hits != 2 {
		t.Errorf("got %d hits", reply.Hits)
	}
	if _, ok := sess.ResultSet("sorted"); !ok {
		t.Error("expected the sorted set to be published")
	}
}
