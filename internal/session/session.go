// Package session implements the per-client session state the gateway
// driver operates on: the database resolution rules of spec.md section 4.2,
// the lazy per-database connection pool of section 4.9, and the named
// result-set registry that both the Search/Sort handlers and the rpn
// compiler's RSID emission consult.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/diag"
	"github.com/z3950gw/gateway/internal/zoom"
)

// Dialers maps a database's search.querytype to the zoom.Dialer that speaks
// its wire dialect. Index by config.QueryType; the empty string is PQF.
type Dialers map[config.QueryType]zoom.Dialer

// ResultSet is a named hit list a session keeps for follow-up Present/Sort
// operations, per spec.md section 4.2 testable invariants.
type ResultSet struct {
	DBName  string
	QText   string // the compiled query text, for RSID re-submission
	RSID    string
	HasRSID bool
	Hits    int
	Conn    zoom.Connection
}

// Session is the per-client core state. It is never shared across clients;
// the enclosing protocol server owns one per connection and serializes all
// operations against it (spec.md section 5).
type Session struct {
	ID      string
	Config  *config.GatewayConfig // snapshot captured at Init
	dialers Dialers

	User     string
	Password string

	mu          sync.Mutex
	connections map[string]zoom.Connection
	resultSets  map[string]*ResultSet
}

// New creates a session bound to a config snapshot and dialer set. The
// session ID doubles as a correlation id for structured logging.
func New(cfg *config.GatewayConfig, dialers Dialers) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Config:      cfg,
		dialers:     dialers,
		connections: map[string]zoom.Connection{},
		resultSets:  map[string]*ResultSet{},
	}
}

// ResolveDatabase implements spec.md section 4.2: given a request's
// DATABASES list, resolve it to a (name, *DatabaseConfig) pair or a BIB-1
// diagnostic. Virtual `cfg:` databases are parsed fresh on every call and
// are never cached under the session's database config map.
func (s *Session) ResolveDatabase(names []string) (string, *config.DatabaseConfig, *diag.Error) {
	if len(names) > 1 {
		return "", nil, diag.Newf(diag.Code111TooManyDatabases, "%d databases requested", len(names))
	}
	if len(names) == 0 {
		return "", nil, diag.New(diag.Code235DatabaseUnavailable, "no database named")
	}
	name := names[0]
	if strings.HasPrefix(name, "cfg:") {
		db, err := config.ParseVirtualDatabase(name, s.Config.Search)
		if err != nil {
			return "", nil, diag.New(diag.Code1, name)
		}
		return name, db, nil
	}
	db, ok := s.Config.Databases[name]
	if !ok {
		return "", nil, diag.Newf(diag.Code235DatabaseUnavailable, "database %q not found", name)
	}
	return name, db, nil
}

// Connection returns the pooled connection for dbName, dialing a fresh one
// on first use per spec.md section 4.9. The session's User/Password come
// from Init; dbCfg.Option values are copied onto the dialed connection's options
// verbatim.
func (s *Session) Connection(ctx context.Context, dbName string, dbCfg *config.DatabaseConfig) (zoom.Connection, *diag.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.connections[dbName]; ok {
		return conn, nil
	}

	dialer, ok := s.dialers[dbCfg.Search.QueryType]
	if !ok {
		return nil, diag.Newf(diag.Code109ConnectFailed, "no dialer configured for querytype %q", dbCfg.Search.QueryType)
	}

	opts := zoom.Options{
		PresentChunk:          10,
		PreferredRecordSyntax: config.SyntaxXML,
		User:                  s.User,
		Password:              s.Password,
		Charset:               dbCfg.Charset,
		Extra:                 map[string]string{},
	}
	for k, v := range dbCfg.Option {
		opts.Extra[k] = v.Content
	}

	conn, err := dialer.Dial(ctx, dbCfg.ZURL, opts)
	if err != nil {
		return nil, diag.Translate(err)
	}
	s.connections[dbName] = conn
	return conn, nil
}

// PublishResultSet binds name to rs, replacing any prior binding — the
// "double-binding" invariant of spec.md section 8 (the prior ResultSet
// simply becomes unreachable; nothing retains it).
func (s *Session) PublishResultSet(name string, rs *ResultSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultSets[name] = rs
}

// ResultSet returns the named result set, if any.
func (s *Session) ResultSet(name string) (*ResultSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.resultSets[name]
	return rs, ok
}

// Lookup implements rpn.ResultSetLookup so the compiler can resolve RSID
// nodes without depending on the session package.
func (s *Session) Lookup(setName string) (qtext string, rsid string, hasRSID bool, found bool) {
	rs, ok := s.ResultSet(setName)
	if !ok {
		return "", "", false, false
	}
	return rs.QText, rs.RSID, rs.HasRSID, true
}

// Close releases every connection this session opened, per spec.md
// section 4.1's Close handler.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, conn := range s.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing connection %q: %w", name, err)
		}
	}
	s.connections = map[string]zoom.Connection{}
	s.resultSets = map[string]*ResultSet{}
	return firstErr
}
