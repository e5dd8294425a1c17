// Package zoom models the ZOOM client abstraction the gateway core treats as
// an external collaborator (spec.md section 1): a narrow interface plus the
// concrete SRU, Solr, and PQF-passthrough drivers that satisfy it. The real
// ZOOM C library has no Go binding anywhere in the retrieved corpus, so this
// package is the substitute the spec names as assumed-external, built on
// net/http and encoding/xml rather than a fabricated third-party module.
package zoom

import (
	"context"
)

// Options carries the per-connection option set the gateway's connection
// pool builds from session credentials and DatabaseConfig.Option, per
// spec.md section 4.9.
type Options struct {
	PresentChunk          int
	PreferredRecordSyntax string
	User                  string
	Password              string
	Extra                 map[string]string
	// Schema, when set, asks the backend to retrieve records under this SRU
	// schema name (configured per spec.md section 4.5).
	Schema string
	// Charset is the extra charset parameter attached to record retrieval.
	Charset string
}

// SearchResult is what a Search/Sort call returns to populate a ResultSet.
type SearchResult struct {
	Hits int
	RSID string // backend-assigned result-set id; empty if none
}

// ScanRequest carries the scan-specific options set on the connection before
// issuing the scan, per spec.md section 4.6.
type ScanRequest struct {
	Query     string
	Number    int
	Position  int
	StepSize  int
}

// ScanEntry is one {term, occurrence} pair from a scan response.
type ScanEntry struct {
	Term       string
	Occurrence int
}

// ScanResult reports whether the scan returned every term requested.
type ScanResult struct {
	Entries []ScanEntry
	Partial bool
}

// Record is a single fetched record: raw bytes plus how to interpret them.
type Record struct {
	// XML is the backend record: the generic `<doc><str name="marcxml">`
	// envelope the drivers emit when no schema was requested, or the raw
	// record content under the requested schema.
	XML string
	// SchemaUsed reports the SRU schema name the backend returned, if the
	// request asked for one.
	SchemaUsed string
}

// Connection is the narrow ZOOM surface the gateway's core depends on. The
// connection pool (session package) lazily creates one per database name and
// reuses it for the life of the session.
type Connection interface {
	// Search issues a query in the connection's native dialect and prepares
	// a cursor over the hits; Present/Fetch then page through it.
	Search(ctx context.Context, query string) (SearchResult, error)
	// Scan executes a term-list scan per ScanRequest.
	Scan(ctx context.Context, req ScanRequest) (ScanResult, error)
	// Record fetches the record at the given one-based offset into the most
	// recent Search's cursor.
	Record(ctx context.Context, offset int, opts Options) (Record, error)
	// SRUVersion reports the negotiated SRU version ("1.1", "1.2", ...), or
	// "" for a non-SRU (Z39.50/PQF) backend. Used by the sort planner to
	// decide between a native `sortby` clause and a YAZ sortspec rewrite.
	SRUVersion() string
	// Close releases any resources held by the connection (sockets, etc).
	Close() error
}

// Dialer creates a Connection for a database's zurl/options. One is supplied
// per back-end dialect (SRU, Solr, PQF); the connection pool selects which
// to use from DatabaseConfig.Search.QueryType.
type Dialer interface {
	Dial(ctx context.Context, zurl string, opts Options) (Connection, error)
}
