// Package sortplan extracts a dialect-neutral SortKey from a client's sort
// sequence and renders it as either a YAZ sortspec (PQF/old-SRU path) or a
// CQL sortby clause (SRU >= 1.2 path), per spec.md section 4.8's design note
// on factoring sort-key extraction into a single pass.
package sortplan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/z3950gw/gateway/internal/diag"
)

// Relation mirrors the client's RELATION field on a sort key: ascending (0)
// or descending (1), matching the Z39.50 SortKeySpec's sense field. The
// renderers treat every value other than Descending as ascending.
type Relation int

const (
	Ascending  Relation = 0
	Descending Relation = 1
)

// CaseSensitivity mirrors CASE: 0 = case-sensitive, 1 = insensitive,
// matching the Z39.50 SortKeySpec's caseSensitivity field.
type CaseSensitivity int

const (
	CaseSensitive   CaseSensitivity = 0
	CaseInsensitive CaseSensitivity = 1
)

// MissingAction controls how a back end should treat records lacking the
// sort field, used only by the CQL renderer (spec.md section 4.8).
type MissingAction string

const (
	MissingOmit  MissingAction = "omit"
	MissingFail  MissingAction = "fail"
	MissingValue MissingAction = "value"
)

// KeySource is the raw per-key request shape a Sort operation carries,
// mirroring the client protocol's SortKeySpec union.
type KeySource struct {
	SortField        string // literal field name, if set
	ElementSpecType  string // "type=value" shorthand, if set
	SortAttr         []SortAttr
	Relation         Relation
	Case             CaseSensitivity
	Missing          MissingAction
}

// SortAttr is one BIB-1 attribute attached to a SORT_ATTR key source; only
// the Use attribute (type 1) is meaningful per spec.md section 4.8.
type SortAttr struct {
	Type, Value int
}

// SortKey is the extracted, dialect-neutral sort instruction.
type SortKey struct {
	// Literal, when non-empty, is a pre-rendered field/type spec (from
	// SortField or ElementSpecType) used verbatim by both renderers.
	Literal string
	// AccessPoint is the BIB-1 Use attribute value, when extracted from
	// SortAttr; meaningless if Literal is set.
	AccessPoint int
	HasAccessPoint bool
	Relation    Relation
	Case        CaseSensitivity
	Missing     MissingAction
}

// Extract turns a KeySource into a SortKey, per spec.md section 4.8: literal
// SORTFIELD wins, then ELEMENTSPEC_TYPE, else SORT_ATTR (BIB-1 only).
func Extract(src KeySource) (SortKey, *diag.Error) {
	key := SortKey{Relation: src.Relation, Case: src.Case, Missing: src.Missing}

	if src.SortField != "" {
		key.Literal = src.SortField
		return key, nil
	}
	if src.ElementSpecType != "" {
		key.Literal = src.ElementSpecType
		return key, nil
	}

	var ap int
	haveAP := false
	for _, a := range src.SortAttr {
		if a.Type != 1 {
			return key, diag.Newf(diag.Code121UnsupportedAttributeSet, "sort attribute type %d", a.Type)
		}
		ap = a.Value
		haveAP = true
	}
	if !haveAP {
		return key, diag.New(diag.Code237MissingSortAttribute, "no Use attribute in sort key")
	}
	key.AccessPoint = ap
	key.HasAccessPoint = true
	return key, nil
}

// YAZSortspec renders one key in YAZ sortspec syntax: `1=<ap>` (or the
// literal field), then ` >`/` <` for relation, then `i`/`s` for case.
// MISSING has no YAZ sortspec expression (spec.md section 4.8).
func (k SortKey) YAZSortspec() string {
	var field string
	if k.Literal != "" {
		field = k.Literal
	} else {
		field = "1=" + strconv.Itoa(k.AccessPoint)
	}
	dir := "<"
	if k.Relation == Descending {
		dir = ">"
	}
	c := "s"
	if k.Case == CaseInsensitive {
		c = "i"
	}
	return fmt.Sprintf("%s %s%s", field, dir, c)
}

// CQLSortspec renders one key as a CQL sortby modifier string, resolving a
// bare access point through the same search.map used by the query compiler
// (spec.md section 4.3).
func (k SortKey) CQLSortspec(attrMap map[int]string) string {
	var field string
	switch {
	case k.Literal != "":
		field = k.Literal
	case attrMap != nil:
		if idx, ok := attrMap[k.AccessPoint]; ok {
			field = idx
		} else {
			field = strconv.Itoa(k.AccessPoint)
		}
	default:
		field = strconv.Itoa(k.AccessPoint)
	}

	dir := "/sort.ascending"
	if k.Relation == Descending {
		dir = "/sort.descending"
	}
	c := "/sort.ignoreCase"
	if k.Case == CaseSensitive {
		c = "/sort.respectCase"
	}
	missing := ""
	switch k.Missing {
	case MissingFail:
		missing = "/sort.missingFail"
	case MissingValue:
		missing = "/sort.missingValue=UNSPECIFIED"
	case MissingOmit:
		missing = "/sort.missingOmit"
	}
	return field + dir + c + missing
}

// YAZSortspecSequence joins multiple keys' YAZ sortspecs in request order.
func YAZSortspecSequence(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.YAZSortspec()
	}
	return strings.Join(parts, " ")
}

// CQLSortbyClause renders `sortby <spec1> <spec2> ...` for the SRU >= 1.2
// native sort path.
func CQLSortbyClause(keys []SortKey, attrMap map[int]string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.CQLSortspec(attrMap)
	}
	return "sortby " + strings.Join(parts, " ")
}
