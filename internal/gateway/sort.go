package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/diag"
	"github.com/z3950gw/gateway/internal/session"
	"github.com/z3950gw/gateway/internal/sortplan"
	"github.com/z3950gw/gateway/internal/zoom/pqf"
)

// Sort implements spec.md section 4.8: compose a combined query over the
// input sets, attach a rendered sort spec, execute it, and publish the
// result under OUTPUT exactly as Search does.
func (s *Server) Sort(ctx context.Context, sess *session.Session, req SortRequest) (SortReply, *diag.Error) {
	var reply SortReply
	derr := s.call(ctx, sess, "sort", func(ctx context.Context) *diag.Error {
		if len(req.Input) == 0 {
			return diag.New(diag.Code128ResultSetNotFound, "sort has no input sets")
		}
		first, ok := sess.ResultSet(req.Input[0])
		if !ok {
			return diag.Newf(diag.Code128ResultSetNotFound, "%s", req.Input[0])
		}
		dbName, dbCfg, derr := sess.ResolveDatabase([]string{first.DBName})
		if derr != nil {
			return derr
		}

		keys := make([]sortplan.SortKey, 0, len(req.Sequence))
		for _, src := range req.Sequence {
			key, derr := sortplan.Extract(src)
			if derr != nil {
				return derr
			}
			keys = append(keys, key)
		}

		var combined string
		if dbCfg.Search.QueryType == config.QueryTypeCQL {
			combined, derr = composeCQL(sess, req.Input)
		} else {
			combined, derr = composePQF(sess, req.Input)
		}
		if derr != nil {
			return derr
		}

		conn, derr := sess.Connection(ctx, dbName, dbCfg)
		if derr != nil {
			return derr
		}

		var query string
		if dbCfg.Search.QueryType == config.QueryTypeCQL {
			if sruVersionAtLeast12(conn.SRUVersion()) {
				query = combined + " " + sortplan.CQLSortbyClause(keys, attrMap(dbCfg.Search.Map))
			} else {
				query = combined + " " + sortplan.YAZSortspecSequence(keys)
			}
		} else {
			query = combined + " " + sortplan.YAZSortspecSequence(keys)
		}

		result, err := conn.Search(ctx, query)
		if err != nil {
			return diag.Translate(err)
		}

		sess.PublishResultSet(req.Output, &session.ResultSet{
			DBName:  dbName,
			QText:   query,
			RSID:    result.RSID,
			HasRSID: result.RSID != "",
			Hits:    result.Hits,
			Conn:    conn,
		})
		reply.Hits = result.Hits
		return nil
	})
	return reply, derr
}

// composeCQL renders `(A or B or ...)` where each term is either a known
// resultSetId reference or the set's original compiled query text,
// reused verbatim in parentheses (spec.md section 4.8).
func composeCQL(sess *session.Session, inputs []string) (string, *diag.Error) {
	parts := make([]string, 0, len(inputs))
	for _, name := range inputs {
		rs, ok := sess.ResultSet(name)
		if !ok {
			return "", diag.Newf(diag.Code128ResultSetNotFound, "%s", name)
		}
		if rs.HasRSID {
			parts = append(parts, fmt.Sprintf(`cql.resultSetId="%s"`, rs.RSID))
		} else {
			parts = append(parts, "("+rs.QText+")")
		}
	}
	return "(" + strings.Join(parts, " or ") + ")", nil
}

// composePQF combines input sets via @or over @set "name" clauses, per
// spec.md section 4.8's Type-1/PQF path.
func composePQF(sess *session.Session, inputs []string) (string, *diag.Error) {
	clauses := make([]string, 0, len(inputs))
	for _, name := range inputs {
		if _, ok := sess.ResultSet(name); !ok {
			return "", diag.Newf(diag.Code128ResultSetNotFound, "%s", name)
		}
		clauses = append(clauses, pqf.ComposeSet(name))
	}
	return pqf.ComposeOr(clauses), nil
}

// sruVersionAtLeast12 reports whether a connection's negotiated SRU version
// supports native `sortby` (>= 1.2); a non-SRU connection (empty version)
// never does.
func sruVersionAtLeast12(v string) bool {
	return v == "1.2" || strings.HasPrefix(v, "1.2.") || (strings.HasPrefix(v, "2.") )
}
