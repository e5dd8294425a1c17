package rpn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/z3950gw/gateway/internal/diag"
)

// Attribute types within the BIB-1 attribute set.
const (
	AttrUse          = 1
	AttrRelation     = 2
	AttrPosition     = 3
	AttrStructure    = 4
	AttrTruncation   = 5
	AttrCompleteness = 6
)

// ResultSetIDPolicy controls how an RSID node re-uses a prior result set.
type ResultSetIDPolicy string

const (
	PolicyFallback ResultSetIDPolicy = "fallback"
	PolicyID       ResultSetIDPolicy = "id"
	PolicySearch   ResultSetIDPolicy = "search"
)

// QueryConfig carries the per-database bits the compiler needs: the
// Use-attribute-to-index map and the RSID re-use policy.
type QueryConfig struct {
	AttrMap  map[int]string // nil means "no map configured"
	IDPolicy ResultSetIDPolicy
}

// ResultSetLookup resolves a named result set for RSID emission. The gateway
// session package implements this; rpn only depends on the narrow shape it
// needs to stay decoupled from session lifetime concerns.
type ResultSetLookup interface {
	// Lookup returns the original compiled query text, the backend RSID
	// (empty if none was assigned), and whether the set exists at all.
	Lookup(setName string) (qtext string, rsid string, hasRSID bool, found bool)
}

var quoteNeeded = regexp.MustCompile(`[\s"/=]`)

func quoteTerm(term string) string {
	if quoteNeeded.MatchString(term) {
		return `"` + term + `"`
	}
	return term
}

type decoration struct {
	leftTrunc, rightTrunc   bool
	leftAnchor, rightAnchor bool
}

func (d decoration) apply(term string) string {
	if d.leftTrunc {
		term = "*" + term
	}
	if d.rightTrunc {
		term = term + "*"
	}
	if d.leftAnchor {
		term = "^" + term
	}
	if d.rightAnchor {
		term = term + "^"
	}
	return term
}

// cqlRelations maps BIB-1 Relation values to CQL relation tokens.
var cqlRelations = map[int]string{
	1:   "<",
	2:   "<=",
	3:   "=",
	4:   ">=",
	5:   ">",
	6:   "<>",
	100: "=/phonetic",
	101: "=/stem",
	102: "=/relevant",
}

// interpreted holds the common per-term analysis shared by CQL and Solr
// emission: the resolved index, relation token, and truncation/completeness
// decoration.
type interpreted struct {
	index     string
	haveIndex bool
	relation  int
	haveRel   bool
	dec       decoration
	term      string
}

func interpretTerm(t Term, cfg QueryConfig) (interpreted, *diag.Error) {
	var out interpreted
	out.term = t.Term
	var useVal int
	haveUse := false

	for _, a := range t.Attrs {
		if a.Type == AttrUse {
			useVal = a.Value
			haveUse = true
		}
	}

	if haveUse {
		if cfg.AttrMap == nil {
			out.index = strconv.Itoa(useVal)
			out.haveIndex = true
		} else if idx, ok := cfg.AttrMap[useVal]; ok {
			out.index = idx
			out.haveIndex = true
		} else {
			return out, diag.Newf(diag.Code114UnsupportedUseAttribute, "use attribute %d not mapped", useVal)
		}
	}

	var completeness int
	haveCompleteness := false
	var position int
	havePosition := false
	var truncation int
	haveTruncation := false

	for _, a := range t.Attrs {
		set := t.AttributeSet
		if set == "" {
			set = AttributeSetBib1
		}
		if set != AttributeSetBib1 {
			return out, diag.Newf(diag.Code121UnsupportedAttributeSet, "%s", set)
		}
		if a.Type == AttrUse {
			continue
		}
		switch a.Type {
		case AttrRelation:
			out.relation = a.Value
			out.haveRel = true
		case AttrPosition:
			position = a.Value
			havePosition = true
			if a.Value != 1 && a.Value != 2 && a.Value != 3 {
				return out, diag.Newf(diag.Code119UnsupportedPosition, "position %d", a.Value)
			}
		case AttrStructure:
			// ignored, per spec
		case AttrTruncation:
			truncation = a.Value
			haveTruncation = true
			switch a.Value {
			case 1, 2, 3, 100, 101, 104:
			default:
				return out, diag.Newf(diag.Code120UnsupportedTruncation, "truncation %d", a.Value)
			}
		case AttrCompleteness:
			completeness = a.Value
			haveCompleteness = true
			if a.Value != 1 && a.Value != 2 && a.Value != 3 {
				return out, diag.Newf(diag.Code122UnsupportedCompleteness, "completeness %d", a.Value)
			}
		default:
			return out, diag.Newf(diag.Code113UnsupportedAttributeType, "attribute type %d", a.Type)
		}
	}

	if havePosition && (position == 1 || position == 2) {
		out.dec.leftAnchor = true
	}
	if haveCompleteness && (completeness == 2 || completeness == 3) {
		out.dec.leftAnchor = true
		out.dec.rightAnchor = true
	}
	if haveTruncation {
		switch truncation {
		case 1:
			out.dec.rightTrunc = true
		case 2:
			out.dec.leftTrunc = true
		case 3:
			out.dec.leftTrunc = true
			out.dec.rightTrunc = true
		case 100:
			// none
		case 101:
			out.term = strings.ReplaceAll(out.term, "#", "?")
		case 104:
			out.term = strings.ReplaceAll(out.term, "#", "?")
			out.term = z3950CCL.ReplaceAllString(out.term, "*")
		}
	}

	return out, nil
}

var z3950CCL = regexp.MustCompile(`\\\?\d?`)

// CompileCQL compiles an RPN tree to CQL for an SRU backend.
func CompileCQL(n Node, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	switch v := n.(type) {
	case Term:
		return compileTermCQL(v, cfg)
	case Rsid:
		return compileRsidCQL(v, cfg, rs)
	case And:
		return compileBoolCQL(v.Left, v.Right, "and", cfg, rs)
	case Or:
		return compileBoolCQL(v.Left, v.Right, "or", cfg, rs)
	case AndNot:
		return compileBoolCQL(v.Left, v.Right, "not", cfg, rs)
	default:
		return "", diag.New(diag.Code113UnsupportedAttributeType, "unknown RPN node")
	}
}

func compileBoolCQL(left, right Node, op string, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	l, err := CompileCQL(left, cfg, rs)
	if err != nil {
		return "", err
	}
	r, err := CompileCQL(right, cfg, rs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s %s %s)", l, op, r), nil
}

func compileTermCQL(t Term, cfg QueryConfig) (string, *diag.Error) {
	in, err := interpretTerm(t, cfg)
	if err != nil {
		return "", err
	}
	term := quoteTerm(in.dec.apply(in.term))

	switch {
	case in.haveIndex && in.haveRel:
		rel, ok := cqlRelations[in.relation]
		if !ok {
			return "", diag.Newf(diag.Code117UnsupportedRelation, "relation %d", in.relation)
		}
		return fmt.Sprintf("%s %s %s", in.index, rel, term), nil
	case in.haveIndex && !in.haveRel:
		return fmt.Sprintf("%s = %s", in.index, term), nil
	case !in.haveIndex && in.haveRel:
		rel, ok := cqlRelations[in.relation]
		if !ok {
			return "", diag.Newf(diag.Code117UnsupportedRelation, "relation %d", in.relation)
		}
		return fmt.Sprintf("cql.serverChoice %s %s", rel, term), nil
	default:
		return fmt.Sprintf("cql.serverChoice = %s", term), nil
	}
}

func compileRsidCQL(r Rsid, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	qtext, rsid, hasRSID, found := rs.Lookup(r.SetName)
	if !found {
		return "", diag.Newf(diag.Code128ResultSetNotFound, "%s", r.SetName)
	}
	if hasRSID && cfg.IDPolicy != PolicySearch {
		return fmt.Sprintf(`cql.resultSetId="%s"`, rsid), nil
	}
	if cfg.IDPolicy != PolicyID {
		return fmt.Sprintf("(%s)", qtext), nil
	}
	return "", diag.New(diag.Code18ResultSetIDUnsupported, r.SetName)
}

// solrRelations maps BIB-1 Relation values to Solr range-expression templates.
// %s is substituted with the (already decorated/quoted) term.
var solrRelations = map[int]string{
	1: "{* TO %s}",
	2: "[* TO %s]",
	3: "%s",
	4: "[%s TO *]",
	5: "{%s TO *}",
}

// CompileSolr compiles an RPN tree to a Solr query expression.
func CompileSolr(n Node, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	switch v := n.(type) {
	case Term:
		return compileTermSolr(v, cfg)
	case Rsid:
		return compileRsidSolr(v, cfg, rs)
	case And:
		return compileBoolSolr(v.Left, v.Right, "AND", cfg, rs)
	case Or:
		return compileBoolSolr(v.Left, v.Right, "OR", cfg, rs)
	case AndNot:
		return compileBoolSolr(v.Left, v.Right, "NOT", cfg, rs)
	default:
		return "", diag.New(diag.Code113UnsupportedAttributeType, "unknown RPN node")
	}
}

func compileBoolSolr(left, right Node, op string, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	l, err := CompileSolr(left, cfg, rs)
	if err != nil {
		return "", err
	}
	r, err := CompileSolr(right, cfg, rs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s %s %s)", l, op, r), nil
}

func compileTermSolr(t Term, cfg QueryConfig) (string, *diag.Error) {
	in, err := interpretTerm(t, cfg)
	if err != nil {
		return "", err
	}
	// Truncation decorates only the term itself for Solr; position/
	// completeness anchors have no Solr equivalent and are ignored.
	dec := decoration{leftTrunc: in.dec.leftTrunc, rightTrunc: in.dec.rightTrunc}
	term := quoteTerm(dec.apply(in.term))

	var expr string
	if in.haveRel {
		tmpl, ok := solrRelations[in.relation]
		if !ok {
			return "", diag.Newf(diag.Code117UnsupportedRelation, "relation %d", in.relation)
		}
		expr = fmt.Sprintf(tmpl, term)
	} else {
		expr = term
	}

	if !in.haveIndex {
		return expr, nil
	}
	return fmt.Sprintf("%s:%s", in.index, expr), nil
}

func compileRsidSolr(r Rsid, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	qtext, rsid, hasRSID, found := rs.Lookup(r.SetName)
	if !found {
		return "", diag.Newf(diag.Code128ResultSetNotFound, "%s", r.SetName)
	}
	if hasRSID && cfg.IDPolicy != PolicySearch {
		return fmt.Sprintf(`solr.resultSetId="%s"`, rsid), nil
	}
	if cfg.IDPolicy != PolicyID {
		return fmt.Sprintf("(%s)", qtext), nil
	}
	return "", diag.New(diag.Code18ResultSetIDUnsupported, r.SetName)
}
