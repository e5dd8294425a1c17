package gateway

import (
	"context"
	"strings"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/diag"
	"github.com/z3950gw/gateway/internal/marcrec"
	"github.com/z3950gw/gateway/internal/rpn"
	"github.com/z3950gw/gateway/internal/session"
	"github.com/z3950gw/gateway/internal/sortplan"
	"github.com/z3950gw/gateway/internal/zoom"
)

func attrMap(m map[int]config.MapEntry) map[int]string {
	if m == nil {
		return nil
	}
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[k] = v.Index
	}
	return out
}

func queryConfig(dbCfg *config.DatabaseConfig) rpn.QueryConfig {
	return rpn.QueryConfig{
		AttrMap:  attrMap(dbCfg.Search.Map),
		IDPolicy: rpn.ResultSetIDPolicy(dbCfg.ResultSetID),
	}
}

// compileQuery renders an RPN tree in the dialect dbCfg.Search.QueryType
// names, defaulting to PQF (spec.md section 4.4).
func compileQuery(n rpn.Node, dbCfg *config.DatabaseConfig, rs rpn.ResultSetLookup) (string, *diag.Error) {
	cfg := queryConfig(dbCfg)
	switch dbCfg.Search.QueryType {
	case config.QueryTypeCQL:
		return rpn.CompileCQL(n, cfg, rs)
	case config.QueryTypeSolr:
		return rpn.CompileSolr(n, cfg, rs)
	default:
		return rpn.CompilePQF(n, cfg, rs)
	}
}

// Init implements spec.md section 4.1: reload config onto the session,
// stash credentials, and perform the optional authentication side channel.
func (s *Server) Init(ctx context.Context, sess *session.Session, req InitRequest) (InitReply, *diag.Error) {
	var reply InitReply
	derr := s.call(ctx, sess, "init", func(ctx context.Context) *diag.Error {
		// A failed reload is logged by Reload and keeps the previous snapshot.
		if s.configPath != "" {
			_ = s.Reload()
		}
		sess.Config = s.Config()
		sess.User = req.User
		sess.Password = req.Password

		reply.ImplementationID = "z3950gw"
		reply.ImplementationName = "z3950gw gateway"
		reply.ImplementationVersion = "1.0"

		template := sess.Config.Authentication
		if template == "" {
			return nil
		}
		if req.User == "" && req.Password == "" {
			return diag.New(diag.Code1014CredentialsBad, "credentials not supplied")
		}
		if err := s.authClient.Check(ctx, template, req.User, req.Password); err != nil {
			if de, ok := err.(*diag.Error); ok {
				return de
			}
			return diag.New(diag.Code1014CredentialsBad, "credentials are bad")
		}
		return nil
	})
	return reply, derr
}

// Search implements spec.md section 4.4.
func (s *Server) Search(ctx context.Context, sess *session.Session, req SearchRequest) (SearchReply, *diag.Error) {
	var reply SearchReply
	derr := s.call(ctx, sess, "search", func(ctx context.Context) *diag.Error {
		dbName, dbCfg, derr := sess.ResolveDatabase(req.Databases)
		if derr != nil {
			return derr
		}
		if dbCfg.NoNamedResultSets && req.SetName != "default" {
			return diag.New(diag.Code22NamedResultSetsUnsupported, req.SetName)
		}

		qtext, derr := compileQuery(req.Query, dbCfg, sess)
		if derr != nil {
			return derr
		}

		conn, derr := sess.Connection(ctx, dbName, dbCfg)
		if derr != nil {
			return derr
		}

		result, err := conn.Search(ctx, qtext)
		if err != nil {
			return diag.Translate(err)
		}

		sess.PublishResultSet(req.SetName, &session.ResultSet{
			DBName:  dbName,
			QText:   qtext,
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

// Present implements spec.md section 4.5's range validation: it performs no
// retrieval itself, only bounds-checks [START, START+NUMBER).
func (s *Server) Present(ctx context.Context, sess *session.Session, req PresentRequest) *diag.Error {
	return s.call(ctx, sess, "present", func(ctx context.Context) *diag.Error {
		rs, ok := sess.ResultSet(req.SetName)
		if !ok {
			return diag.Newf(diag.Code128ResultSetNotFound, "%s", req.SetName)
		}
		end := req.Start + req.Number - 1
		if req.Start < 1 || end > rs.Hits {
			return diag.Newf(diag.Code13PresentOutOfRange, "requested [%d,%d) of %d hits", req.Start, req.Start+req.Number, rs.Hits)
		}
		return nil
	})
}

// Fetch implements spec.md section 4.5's single-record retrieval and
// record-syntax dispatch.
func (s *Server) Fetch(ctx context.Context, sess *session.Session, req FetchRequest) (FetchReply, *diag.Error) {
	var reply FetchReply
	derr := s.call(ctx, sess, "fetch", func(ctx context.Context) *diag.Error {
		rs, ok := sess.ResultSet(req.SetName)
		if !ok {
			return diag.Newf(diag.Code128ResultSetNotFound, "%s", req.SetName)
		}
		dbCfg, ok := sess.Config.Databases[rs.DBName]
		if !ok {
			// A virtual (`cfg:`) database: reconstruct it the same way
			// ResolveDatabase did at Search time.
			var derr *diag.Error
			_, dbCfg, derr = sess.ResolveDatabase([]string{rs.DBName})
			if derr != nil {
				return derr
			}
		}

		opts := zoom.Options{}
		schemaUsed := false
		if req.Schema != "" {
			if entry, ok := dbCfg.Schema[req.Schema]; ok {
				opts.Schema = entry.SRU
				opts.Charset = "utf8"
				if entry.Encoding != "" {
					opts.Charset = "utf8," + entry.Encoding
				}
				schemaUsed = true
			}
		}

		rec, err := rs.Conn.Record(ctx, req.Offset, opts)
		if err != nil {
			return diag.Translate(err)
		}

		// Old (pre-1.2) SRU back ends sometimes report a per-record failure
		// by returning a surrogate SRW diagnostic element in place of the
		// record body instead of in the response envelope's own
		// <diagnostics> block; a version-current back end wouldn't do this,
		// so the sniff is skipped there (spec.md section 4.5).
		if !sruVersionAtLeast12(rs.Conn.SRUVersion()) {
			if uri, message, found := marcrec.DetectSRWDiagnostic(rec.XML); found {
				return diag.Translate(&diag.BackendError{Set: diag.SetSRW, Code: diag.SRWCodeFromURI(uri), Message: message})
			}
		}

		if schemaUsed {
			data, derr := marcrec.MarcXMLToMARC21(rec.XML)
			if derr != nil {
				return derr
			}
			reply.Record = data
			return nil
		}

		xmlRecord := extractMarcXML(rec.XML)
		xmlRecord = marcrec.ApplyExplicitAvailability(xmlRecord, dbCfg.ExplicitAvailability())

		data, derr := marcrec.Convert(dbCfg, req.Syntax, xmlRecord)
		if derr != nil {
			return derr
		}
		reply.Record = data
		return nil
	})
	return reply, derr
}

// Scan implements spec.md section 4.6.
func (s *Server) Scan(ctx context.Context, sess *session.Session, req ScanRequest) (ScanReply, *diag.Error) {
	var reply ScanReply
	derr := s.call(ctx, sess, "scan", func(ctx context.Context) *diag.Error {
		dbName, dbCfg, derr := sess.ResolveDatabase(req.Databases)
		if derr != nil {
			return derr
		}
		qtext, derr := compileQuery(req.Query, dbCfg, sess)
		if derr != nil {
			return derr
		}
		conn, derr := sess.Connection(ctx, dbName, dbCfg)
		if derr != nil {
			return derr
		}
		result, err := conn.Scan(ctx, zoom.ScanRequest{
			Query:    qtext,
			Number:   req.Number,
			Position: req.Position,
			StepSize: req.StepSize,
		})
		if err != nil {
			return diag.Translate(err)
		}
		reply.Entries = result.Entries
		reply.Partial = result.Partial || len(result.Entries) != req.Number
		return nil
	})
	return reply, derr
}

// Delete unconditionally reports success: no upstream equivalent exists in
// ZOOM/SRU (spec.md section 4.1).
func (s *Server) Delete(ctx context.Context, sess *session.Session) *diag.Error {
	return s.call(ctx, sess, "delete", func(ctx context.Context) *diag.Error { return nil })
}

// Close releases all session-owned connections and result sets.
func (s *Server) Close(ctx context.Context, sess *session.Session) *diag.Error {
	return s.call(ctx, sess, "close", func(ctx context.Context) *diag.Error {
		if err := sess.Close(); err != nil {
			return diag.New(diag.Code100BackendGeneral, err.Error())
		}
		return nil
	})
}

// extractMarcXML pulls the inner marcxml string out of the generic
// `<doc><str name="marcxml">...</str></doc>` envelope every zoom driver
// normalizes its non-schema record retrieval into (spec.md section 4.5).
func extractMarcXML(envelope string) string {
	const open = `<str name="marcxml">`
	i := strings.Index(envelope, open)
	if i == -1 {
		return envelope
	}
	rest := envelope[i+len(open):]
	j := strings.Index(rest, "</str>")
	if j == -1 {
		return envelope
	}
	return rest[:j]
}
