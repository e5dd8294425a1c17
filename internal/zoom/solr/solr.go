// Package solr implements zoom.Connection over a Solr /select endpoint, the
// driver used for databases configured with search.querytype: solr. Unlike
// SRU, Solr speaks its query language directly (rpn.CompileSolr renders it),
// so this driver is a thinner HTTP/XML shim than the SRU one.
package solr

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/z3950gw/gateway/internal/diag"
	"github.com/z3950gw/gateway/internal/zoom"
)

// Dialer creates Solr connections.
type Dialer struct {
	Client *http.Client
}

// NewDialer returns a Dialer with a sane default HTTP client timeout.
func NewDialer() *Dialer {
	return &Dialer{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (d *Dialer) Dial(ctx context.Context, zurl string, opts zoom.Options) (zoom.Connection, error) {
	base, err := url.Parse(zurl)
	if err != nil {
		return nil, &diag.BackendError{Set: diag.SetZOOM, Code: diag.ZOOMConnectFailure, Message: err.Error()}
	}
	client := d.Client
	if client == nil {
		client = NewDialer().Client
	}
	return &Connection{base: base, client: client, opts: opts}, nil
}

// Connection is a stateful Solr connection: it remembers the last query so
// Present/Fetch can re-issue /select with a start offset, mirroring how ZOOM
// maintains a cursor over a single search.
type Connection struct {
	base      *url.URL
	client    *http.Client
	opts      zoom.Options
	lastQuery string
}

func (c *Connection) SRUVersion() string { return "" }

func (c *Connection) Close() error { return nil }

func (c *Connection) do(ctx context.Context, params url.Values) (*response, error) {
	u := *c.base
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	q.Set("wt", "xml")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &diag.BackendError{Set: diag.SetZOOM, Code: diag.ZOOMConnectFailure, Message: err.Error()}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &diag.BackendError{Set: diag.SetZOOM, Code: diag.ZOOMConnectFailure, Message: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &diag.BackendError{Set: diag.SetZOOM, Message: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return nil, &diag.BackendError{Set: diag.SetZOOM, Message: fmt.Sprintf("backend returned status %d", resp.StatusCode)}
	}
	var parsed response
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &diag.BackendError{Set: diag.SetZOOM, Message: "malformed Solr response: " + err.Error()}
	}
	if parsed.Error != nil {
		return nil, &diag.BackendError{Set: diag.SetZOOM, Message: parsed.Error.Msg}
	}
	return &parsed, nil
}

func (c *Connection) Search(ctx context.Context, query string) (zoom.SearchResult, error) {
	c.lastQuery = query
	params := url.Values{"q": {query}, "rows": {"0"}}
	resp, err := c.do(ctx, params)
	if err != nil {
		return zoom.SearchResult{}, err
	}
	return zoom.SearchResult{Hits: resp.Result.NumFound}, nil
}

// Scan approximates a term-list scan with Solr's facet.prefix mechanism:
// a zero-row facet query over the scanned field, which is the idiomatic Solr
// substitute for Z39.50 Scan against an indexed field.
func (c *Connection) Scan(ctx context.Context, req zoom.ScanRequest) (zoom.ScanResult, error) {
	field, prefix := splitScanClause(req.Query)
	params := url.Values{
		"q":             {"*:*"},
		"rows":          {"0"},
		"facet":         {"true"},
		"facet.field":   {field},
		"facet.prefix":  {prefix},
		"facet.limit":   {strconv.Itoa(req.Number)},
		"facet.mincount": {"1"},
	}
	resp, err := c.do(ctx, params)
	if err != nil {
		return zoom.ScanResult{}, err
	}
	entries := make([]zoom.ScanEntry, 0, len(resp.FacetCounts.Field.Lst.Items)/2)
	items := resp.FacetCounts.Field.Lst.Items
	for i := 0; i+1 < len(items); i += 2 {
		occ, _ := strconv.Atoi(items[i+1].Value)
		entries = append(entries, zoom.ScanEntry{Term: items[i].Value, Occurrence: occ})
	}
	return zoom.ScanResult{Entries: entries, Partial: len(entries) < req.Number}, nil
}

// Record fetches the record at offset from the core's stored `marcxml`
// field and, when no schema is requested, wraps it in the same
// `<doc><str name="marcxml">` envelope the SRU driver emits, so the
// "otherwise" branch of the Fetch handler (spec.md section 4.5) applies
// uniformly.
func (c *Connection) Record(ctx context.Context, offset int, opts zoom.Options) (zoom.Record, error) {
	params := url.Values{
		"q":     {c.lastQuery},
		"start": {strconv.Itoa(offset - 1)},
		"rows":  {"1"},
		"fl":    {"marcxml"},
	}
	resp, err := c.do(ctx, params)
	if err != nil {
		return zoom.Record{}, err
	}
	if len(resp.Result.Doc) == 0 {
		return zoom.Record{}, &diag.BackendError{Set: diag.SetZOOM, Message: "no record at offset"}
	}
	content := strings.TrimSpace(resp.Result.Doc[0].Raw)
	if opts.Schema == "" {
		content = `<doc><str name="marcxml">` + content + `</str></doc>`
	}
	return zoom.Record{XML: content}, nil
}

func splitScanClause(clause string) (field, prefix string) {
	parts := strings.SplitN(clause, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return clause, ""
}

// --- Solr XML response-writer shapes, the minimum needed by the gateway. ---

type response struct {
	XMLName     xml.Name `xml:"response"`
	Result      result   `xml:"result"`
	FacetCounts struct {
		Field struct {
			Lst struct {
				Items []struct {
					Name  string `xml:"name,attr"`
					Value string `xml:",chardata"`
				} `xml:"int"`
			} `xml:"lst"`
		} `xml:"lst"`
	} `xml:"lst>lst"`
	Error *solrError `xml:"lst>str"`
}

type result struct {
	NumFound int   `xml:"numFound,attr"`
	Doc      []doc `xml:"doc"`
}

type doc struct {
	Raw string `xml:"str"`
}

type solrError struct {
	Msg string `xml:",chardata"`
}
