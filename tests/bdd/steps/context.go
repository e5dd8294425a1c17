//go:build bdd

// Package steps holds the godog step definitions for the gateway's
// end-to-end scenarios, driving internal/gateway directly against fake
// zoom.Connection back ends rather than a live Z39.50/SRU socket.
package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/diag"
	"github.com/z3950gw/gateway/internal/gateway"
	"github.com/z3950gw/gateway/internal/metrics"
	"github.com/z3950gw/gateway/internal/rpn"
	"github.com/z3950gw/gateway/internal/session"
	"github.com/z3950gw/gateway/internal/sortplan"
	"github.com/z3950gw/gateway/internal/zoom"
	"log/slog"
	"io"

	"github.com/cucumber/godog"
)

// fakeConn is a zoom.Connection whose Search call records the
// compiled query it received, so steps can assert on compiler output
// without a live back end.
type fakeConn struct {
	nextHits    int
	nextRSID    string
	sruVersion  string
	lastQuery   string
	recordXML   string
}

func (f *fakeConn) Search(ctx context.Context, query string) (zoom.SearchResult, error) {
	f.lastQuery = query
	return zoom.SearchResult{Hits: f.nextHits, RSID: f.nextRSID}, nil
}
func (f *fakeConn) Scan(ctx context.Context, req zoom.ScanRequest) (zoom.ScanResult, error) {
	return zoom.ScanResult{}, nil
}
func (f *fakeConn) Record(ctx context.Context, offset int, opts zoom.Options) (zoom.Record, error) {
	return zoom.Record{XML: f.recordXML}, nil
}
func (f *fakeConn) SRUVersion() string { return f.sruVersion }
func (f *fakeConn) Close() error       { return nil }

type fakeDialer struct{ conn *fakeConn }

func (d *fakeDialer) Dial(ctx context.Context, zurl string, opts zoom.Options) (zoom.Connection, error) {
	return d.conn, nil
}

// TestContext carries the state one scenario accumulates across steps.
type TestContext struct {
	srv  *gateway.Server
	sess *session.Session
	conn *fakeConn

	lastReplyHits int
	lastDiag      *diag.Error
}

// NewTestContext builds a fresh gateway.Server with no databases configured
// yet; scenario steps add databases and back-end expectations as needed.
func NewTestContext() *TestContext {
	conn := &fakeConn{sruVersion: "1.1"}
	srv, err := gateway.NewServer("", session.Dialers{
		config.QueryTypeCQL:  &fakeDialer{conn: conn},
		config.QueryTypeSolr: &fakeDialer{conn: conn},
		config.QueryTypePQF:  &fakeDialer{conn: conn},
	}, metrics.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		panic(err)
	}
	tc := &TestContext{srv: srv, conn: conn}
	tc.sess = srv.NewSession()
	return tc
}

func parseMapTable(raw string) map[int]config.MapEntry {
	// raw looks like {"4": "title", "30": "year"}; a tiny hand-rolled parser
	// avoids pulling in an encoding/json dependency for a Gherkin literal.
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	out := map[int]config.MapEntry{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, ":", 2)
		key := strings.Trim(strings.TrimSpace(kv[0]), `"`)
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		n, _ := strconv.Atoi(key)
		out[n] = config.MapEntry{Index: val}
	}
	return out
}

func (tc *TestContext) aDatabaseWithQuerytypeAndSearchMap(name, querytype, mapJSON string) error {
	cfg := tc.srv2Cfg()
	cfg.Databases[name] = &config.DatabaseConfig{
		ZURL:   "http://example.test/" + name,
		Search: config.SearchConfig{QueryType: config.QueryType(querytype), Map: parseMapTable(mapJSON)},
	}
	return nil
}

func (tc *TestContext) aDatabaseWithOnlyUsmarcRecordConversionConfigured(name string) error {
	cfg := tc.srv2Cfg()
	cfg.Databases[name] = &config.DatabaseConfig{
		ZURL:         "http://example.test/" + name,
		Search:       config.SearchConfig{QueryType: config.QueryTypeCQL},
		USMARCRecord: []config.FieldSpec{{Content: "full"}},
	}
	return nil
}

// srv2Cfg fetches the live config snapshot for in-place mutation. Database
// entries are added directly to the snapshot's map rather than going
// through Reload, since these scenarios have no config file on disk.
func (tc *TestContext) srv2Cfg() *config.GatewayConfig {
	return tc.srv.Config()
}

func (tc *TestContext) theBackEndReportsHitsForTheNextSearch(hits int) error {
	tc.conn.nextHits = hits
	return nil
}

func (tc *TestContext) theBackEndReportsHitsAndResultSetIDForTheNextSearch(hits int, rsid string) error {
	tc.conn.nextHits = hits
	tc.conn.nextRSID = rsid
	return nil
}

func (tc *TestContext) theBackEndNegotiatedSRUVersion(version string) error {
	tc.conn.sruVersion = version
	return nil
}

func termNode(term string, use, relation, truncation int) rpn.Term {
	attrs := []rpn.Attr{{Type: rpn.AttrUse, Value: use}}
	if relation != 0 {
		attrs = append(attrs, rpn.Attr{Type: rpn.AttrRelation, Value: relation})
	}
	if truncation != 0 {
		attrs = append(attrs, rpn.Attr{Type: rpn.AttrTruncation, Value: truncation})
	}
	return rpn.Term{Term: term, Attrs: attrs}
}

func (tc *TestContext) theClientSearchesDatabaseForTermWithUseRelationTruncationIntoSet(db, term string, use, relation, truncation int, setName string) error {
	reply, derr := tc.srv.Search(context.Background(), tc.sess, gateway.SearchRequest{
		Databases: []string{db}, SetName: setName, Query: termNode(term, use, relation, truncation),
	})
	tc.lastDiag = derr
	tc.lastReplyHits = reply.Hits
	return nil
}

func (tc *TestContext) theClientSearchesDatabaseForTermWithUseIntoSet(db, term string, use int, setName string) error {
	return tc.theClientSearchesDatabaseForTermWithUseRelationTruncationIntoSet(db, term, use, 0, 0, setName)
}

func (tc *TestContext) theClientSearchesDatabaseForTermWithUseRelationIntoSet(db, term string, use, relation int, setName string) error {
	return tc.theClientSearchesDatabaseForTermWithUseRelationTruncationIntoSet(db, term, use, relation, 0, setName)
}

func (tc *TestContext) theClientSearchesVirtualDatabaseForTermWithUseIntoSet(db, term string, use int, setName string) error {
	return tc.theClientSearchesDatabaseForTermWithUseIntoSet(db, term, use, setName)
}

func (tc *TestContext) theClientHasAlreadySearchedDatabaseForTermWithUseRelationTruncationIntoSet(db, term string, use, relation, truncation int, setName string) error {
	return tc.theClientSearchesDatabaseForTermWithUseRelationTruncationIntoSet(db, term, use, relation, truncation, setName)
}

func (tc *TestContext) theClientHasSearchedDatabaseForTermWithUseRelationTruncationIntoSet(db, term string, use, relation, truncation int, setName string) error {
	return tc.theClientSearchesDatabaseForTermWithUseRelationTruncationIntoSet(db, term, use, relation, truncation, setName)
}

func (tc *TestContext) theClientSearchesDatabaseCombiningSetAndTermWithUseIntoSet(db, rsSetName, term string, use int, setName string) error {
	node := rpn.And{
		Left:  rpn.Rsid{SetName: rsSetName},
		Right: rpn.Term{Term: term, Attrs: []rpn.Attr{{Type: rpn.AttrUse, Value: use}}},
	}
	reply, derr := tc.srv.Search(context.Background(), tc.sess, gateway.SearchRequest{
		Databases: []string{db}, SetName: setName, Query: node,
	})
	tc.lastDiag = derr
	tc.lastReplyHits = reply.Hits
	return nil
}

func (tc *TestContext) resultSetsAndExistWithQueryTextAnd(nameA, nameB, qA, qB string) error {
	tc.sess.PublishResultSet(nameA, &session.ResultSet{DBName: "books", QText: qA, Hits: 1, Conn: tc.conn})
	tc.sess.PublishResultSet(nameB, &session.ResultSet{DBName: "books", QText: qB, Hits: 1, Conn: tc.conn})
	return nil
}

func relationFromWord(word string) sortplan.Relation {
	if word == "descending" {
		return sortplan.Descending
	}
	return sortplan.Ascending
}

func caseFromWord(word string) sortplan.CaseSensitivity {
	if word == "case-insensitive" {
		return sortplan.CaseInsensitive
	}
	return sortplan.CaseSensitive
}

func (tc *TestContext) theClientSortsSetsAndByFieldIntoSet(nameA, nameB, field, relationWord, caseWord, output string) error {
	reply, derr := tc.srv.Sort(context.Background(), tc.sess, gateway.SortRequest{
		Input:  []string{nameA, nameB},
		Output: output,
		Sequence: []sortplan.KeySource{{
			SortField: field,
			Relation:  relationFromWord(relationWord),
			Case:      caseFromWord(caseWord),
		}},
	})
	tc.lastDiag = derr
	tc.lastReplyHits = reply.Hits
	return nil
}

func (tc *TestContext) theClientFetchesRecordFromSetInSyntax(offset int, setName, syntax string) error {
	_, derr := tc.srv.Fetch(context.Background(), tc.sess, gateway.FetchRequest{
		SetName: setName, Offset: offset, Syntax: syntax,
	})
	tc.lastDiag = derr
	return nil
}

func (tc *TestContext) theCompiledQueryWas(expected string) error {
	if tc.conn.lastQuery != expected {
		return fmt.Errorf("compiled query %q, want %q", tc.conn.lastQuery, expected)
	}
	return nil
}

func (tc *TestContext) theReplyHITSIs(want int) error {
	if tc.lastDiag != nil {
		return fmt.Errorf("unexpected diagnostic: %v", tc.lastDiag)
	}
	if tc.lastReplyHits != want {
		return fmt.Errorf("got %d hits, want %d", tc.lastReplyHits, want)
	}
	return nil
}

func (tc *TestContext) theReplyDiagnosticIsWithAddinfo(code int, addinfo string) error {
	if tc.lastDiag == nil {
		return fmt.Errorf("expected a diagnostic, got none")
	}
	if tc.lastDiag.Code != code {
		return fmt.Errorf("got diagnostic %d, want %d", tc.lastDiag.Code, code)
	}
	if tc.lastDiag.AddInfo != addinfo {
		return fmt.Errorf("got addinfo %q, want %q", tc.lastDiag.AddInfo, addinfo)
	}
	return nil
}

func (tc *TestContext) theReplyDiagnosticIsWithAddinfoContaining(code int, substr string) error {
	if tc.lastDiag == nil {
		return fmt.Errorf("expected a diagnostic, got none")
	}
	if tc.lastDiag.Code != code {
		return fmt.Errorf("got diagnostic %d, want %d", tc.lastDiag.Code, code)
	}
	if !strings.Contains(tc.lastDiag.AddInfo, substr) {
		return fmt.Errorf("addinfo %q does not contain %q", tc.lastDiag.AddInfo, substr)
	}
	return nil
}

// RegisterGatewaySteps binds every Gherkin step in features/gateway.feature
// to this context's methods.
func RegisterGatewaySteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^a database "([^"]*)" with querytype "([^"]*)" and search map (\{.*\})$`, tc.aDatabaseWithQuerytypeAndSearchMap)
	ctx.Step(`^a database "([^"]*)" with only usmarc record conversion configured$`, tc.aDatabaseWithOnlyUsmarcRecordConversionConfigured)
	ctx.Step(`^the back end reports (\d+) hits for the next search$`, tc.theBackEndReportsHitsForTheNextSearch)
	ctx.Step(`^the back end reports (\d+) hits and result-set id "([^"]*)" for the next search$`, tc.theBackEndReportsHitsAndResultSetIDForTheNextSearch)
	ctx.Step(`^the back end negotiated SRU version "([^"]*)"$`, tc.theBackEndNegotiatedSRUVersion)
	ctx.Step(`^the client searches database "([^"]*)" for term "([^"]*)" with use (\d+), relation (\d+), truncation (\d+) into set "([^"]*)"$`, tc.theClientSearchesDatabaseForTermWithUseRelationTruncationIntoSet)
	ctx.Step(`^the client searches database "([^"]*)" for term "([^"]*)" with use (\d+) into set "([^"]*)"$`, tc.theClientSearchesDatabaseForTermWithUseIntoSet)
	ctx.Step(`^the client searches database "([^"]*)" for term "([^"]*)" with use (\d+), relation (\d+) into set "([^"]*)"$`, tc.theClientSearchesDatabaseForTermWithUseRelationIntoSet)
	ctx.Step(`^the client searches virtual database "([^"]*)" for term "([^"]*)" with use (\d+) into set "([^"]*)"$`, tc.theClientSearchesVirtualDatabaseForTermWithUseIntoSet)
	ctx.Step(`^the client has already searched database "([^"]*)" for term "([^"]*)" with use (\d+), relation (\d+), truncation (\d+) into set "([^"]*)"$`, tc.theClientHasAlreadySearchedDatabaseForTermWithUseRelationTruncationIntoSet)
	ctx.Step(`^the client has searched database "([^"]*)" for term "([^"]*)" with use (\d+), relation (\d+), truncation (\d+) into set "([^"]*)"$`, tc.theClientHasSearchedDatabaseForTermWithUseRelationTruncationIntoSet)
	ctx.Step(`^the client searches database "([^"]*)" combining set "([^"]*)" and term "([^"]*)" with use (\d+) into set "([^"]*)"$`, tc.theClientSearchesDatabaseCombiningSetAndTermWithUseIntoSet)
	ctx.Step(`^result sets "([^"]*)" and "([^"]*)" exist with query text "([^"]*)" and "([^"]*)"$`, tc.resultSetsAndExistWithQueryTextAnd)
	ctx.Step(`^the client sorts sets "([^"]*)" and "([^"]*)" by field "([^"]*)" (ascending|descending) (case-sensitive|case-insensitive) into set "([^"]*)"$`, tc.theClientSortsSetsAndByFieldIntoSet)
	ctx.Step(`^the client fetches record (\d+) from set "([^"]*)" in syntax "([^"]*)"$`, tc.theClientFetchesRecordFromSetInSyntax)
	ctx.Step(`^the compiled query was "(.*)"$`, tc.theCompiledQueryWas)
	ctx.Step(`^the reply HITS is (\d+)$`, tc.theReplyHITSIs)
	ctx.Step(`^the reply diagnostic is (\d+) with addinfo "([^"]*)"$`, tc.theReplyDiagnosticIsWithAddinfo)
	ctx.Step(`^the reply diagnostic is (\d+) with addinfo containing "([^"]*)"$`, tc.theReplyDiagnosticIsWithAddinfoContaining)
}
