// Package pqf implements the Type-1/PQF passthrough dialect: the default
// back-end dialect when a database has no search.querytype configured, and
// the dialect the Sort handler's re-search path uses against Z39.50-native
// back-ends (spec.md section 4.8). The Z39.50 BER wire protocol a live PQF
// back-end speaks is explicitly out of scope (spec.md section 1 Non-goals),
// so this package does not embed a Z39.50 client: it exposes the pure
// query-composition helpers the Sort handler needs, plus a
// zoom.Connection/Dialer pair built over an injected Transport — the seam an
// operator wires to a real YAZ/ZOOM proxy in production, and that tests
// exercise with a fake.
package pqf

import (
	"context"
	"strings"

	"github.com/z3950gw/gateway/internal/diag"
	"github.com/z3950gw/gateway/internal/zoom"
)

// ComposeOr joins PQF query fragments with Type-1's @or operator, left-
// associative, matching how multiple result sets are combined for a sorted
// re-search (spec.md section 4.8).
func ComposeOr(queries []string) string {
	if len(queries) == 0 {
		return ""
	}
	out := queries[0]
	for _, q := range queries[1:] {
		out = "@or " + out + " " + q
	}
	return out
}

// ComposeSet renders a reference to a previously named result set as a PQF
// @set clause, used when the sort planner re-searches against named sets
// instead of fetching straight from them.
func ComposeSet(setName string) string {
	return `@set "` + setName + `"`
}

// Transport issues a raw PQF query against a back end and returns the hit
// count plus an opaque handle the driver can use for later retrieval. A
// production deployment supplies a Transport backed by a real YAZ/ZOOM
// client; it is not implemented here because that client speaks the
// out-of-scope Z39.50 wire protocol.
type Transport interface {
	Search(ctx context.Context, zurl, query string, opts zoom.Options) (hits int, handle string, err error)
	Fetch(ctx context.Context, handle string, offset int, opts zoom.Options) (xmlRecord string, err error)
	ScanTerms(ctx context.Context, zurl string, req zoom.ScanRequest, opts zoom.Options) (zoom.ScanResult, error)
	Close(handle string) error
}

// Dialer creates PQF connections over a shared Transport.
type Dialer struct {
	Transport Transport
}

func (d *Dialer) Dial(ctx context.Context, zurl string, opts zoom.Options) (zoom.Connection, error) {
	if d.Transport == nil {
		return nil, &diag.BackendError{Set: diag.SetZOOM, Code: diag.ZOOMConnectFailure, Message: "pqf: no transport configured"}
	}
	return &Connection{transport: d.Transport, zurl: zurl, opts: opts}, nil
}

// Connection is a PQF back-end connection, delegating wire work to Transport.
type Connection struct {
	transport Transport
	zurl      string
	opts      zoom.Options
	handle    string
}

func (c *Connection) SRUVersion() string { return "" }

func (c *Connection) Close() error {
	if c.handle == "" {
		return nil
	}
	return c.transport.Close(c.handle)
}

func (c *Connection) Search(ctx context.Context, query string) (zoom.SearchResult, error) {
	hits, handle, err := c.transport.Search(ctx, c.zurl, query, c.opts)
	if err != nil {
		return zoom.SearchResult{}, err
	}
	c.handle = handle
	return zoom.SearchResult{Hits: hits, RSID: handle}, nil
}

func (c *Connection) Scan(ctx context.Context, req zoom.ScanRequest) (zoom.ScanResult, error) {
	return c.transport.ScanTerms(ctx, c.zurl, req, c.opts)
}

// Record fetches the record at offset, normalized into the same
// `<doc><str name="marcxml">` envelope the SRU/Solr drivers emit so the
// Fetch handler's "otherwise" branch (spec.md section 4.5) applies
// uniformly across dialects.
func (c *Connection) Record(ctx context.Context, offset int, opts zoom.Options) (zoom.Record, error) {
	raw, err := c.transport.Fetch(ctx, c.handle, offset, opts)
	if err != nil {
		return zoom.Record{}, err
	}
	content := strings.TrimSpace(raw)
	if opts.Schema == "" && !strings.HasPrefix(content, "<doc>") {
		content = `<doc><str name="marcxml">` + content + `</str></doc>`
	}
	return zoom.Record{XML: content}, nil
}
