package rpn

import (
	"fmt"
	"strings"

	"github.com/z3950gw/gateway/internal/diag"
)

// CompilePQF renders an RPN tree as Type-1 PQF prefix notation, the default
// dialect (spec.md section 4.4) used for Search and Scan against
// Z39.50-native back ends. Boolean nodes use YAZ's `@and`/`@or`/
// `@not` prefix operators; terms carry their BIB-1 attributes as `@attr
// type=value` prefixes in the order the Term lists them, mirroring how a
// real Type-1 query is already internally attribute-decorated rather than
// needing the CQL/Solr layer's relation/truncation translation tables.
func CompilePQF(n Node, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	switch v := n.(type) {
	case Term:
		return compileTermPQF(v)
	case Rsid:
		return compileRsidPQF(v, cfg, rs)
	case And:
		return compileBoolPQF(v.Left, v.Right, "@and", cfg, rs)
	case Or:
		return compileBoolPQF(v.Left, v.Right, "@or", cfg, rs)
	case AndNot:
		return compileBoolPQF(v.Left, v.Right, "@not", cfg, rs)
	default:
		return "", diag.New(diag.Code113UnsupportedAttributeType, "unknown RPN node")
	}
}

func compileBoolPQF(left, right Node, op string, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	l, err := CompilePQF(left, cfg, rs)
	if err != nil {
		return "", err
	}
	r, err := CompilePQF(right, cfg, rs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", op, l, r), nil
}

func compileTermPQF(t Term) (string, *diag.Error) {
	set := t.AttributeSet
	if set == "" {
		set = AttributeSetBib1
	}
	for _, a := range t.Attrs {
		if set != AttributeSetBib1 {
			return "", diag.Newf(diag.Code121UnsupportedAttributeSet, "%s", set)
		}
		_ = a
	}
	var b strings.Builder
	for _, a := range t.Attrs {
		fmt.Fprintf(&b, "@attr %d=%d ", a.Type, a.Value)
	}
	b.WriteString(quoteTerm(t.Term))
	return b.String(), nil
}

func compileRsidPQF(r Rsid, cfg QueryConfig, rs ResultSetLookup) (string, *diag.Error) {
	qtext, rsid, hasRSID, found := rs.Lookup(r.SetName)
	if !found {
		return "", diag.Newf(diag.Code128ResultSetNotFound, "%s", r.SetName)
	}
	if hasRSID && cfg.IDPolicy != PolicySearch {
		return fmt.Sprintf("@set %s", rsid), nil
	}
	if cfg.IDPolicy != PolicyID {
		return qtext, nil
	}
	return "", diag.New(diag.Code18ResultSetIDUnsupported, r.SetName)
}
