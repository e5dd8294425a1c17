// Package marcrec converts a back end's raw record envelope into one of the
// four Z39.50 record syntaxes the gateway advertises, driven by a
// database's per-syntax field spec list (spec.md section 4.7). It is the
// hand-rolled substitute for the "MARC record builder/serializer" spec.md
// section 1 names as an assumed-external collaborator: no MARC library
// exists anywhere in the retrieved corpus, so ISO 2709 is written directly
// against the standard library.
package marcrec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/diag"
)

// Convert dispatches to the converter for the requested syntax, honoring
// the "unsupported syntax" rule: GRS-1 and MARC21 require a configured
// field spec; its absence forces diagnostic 238 with a sorted, comma-joined
// list of the syntaxes this database does support.
func Convert(db *config.DatabaseConfig, syntax, xmlRecord string) ([]byte, *diag.Error) {
	switch syntax {
	case config.SyntaxXML:
		return []byte(xmlRecord), nil
	case config.SyntaxUSMARC:
		specs, ok := db.FieldSpecFor(config.SyntaxUSMARC)
		if !ok {
			return nil, unsupportedSyntax(db)
		}
		return ToMARC21(specs, xmlRecord)
	case config.SyntaxGRS1:
		specs, ok := db.FieldSpecFor(config.SyntaxGRS1)
		if !ok {
			return nil, unsupportedSyntax(db)
		}
		return ToGRS1(specs, xmlRecord), nil
	case config.SyntaxSUTRS:
		root, err := parseXML(xmlRecord)
		if err != nil {
			return nil, diag.Newf(diag.Code100BackendGeneral, "malformed record: %s", err)
		}
		return []byte(ToSUTRS(root)), nil
	default:
		return nil, unsupportedSyntax(db)
	}
}

func unsupportedSyntax(db *config.DatabaseConfig) *diag.Error {
	supported := db.SupportedSyntaxes()
	sort.Strings(supported)
	return diag.New(diag.Code238UnsupportedRecordSyntax, strings.Join(supported, ","))
}

// ApplyExplicitAvailability patches the record's availability marker when
// DatabaseConfig.ExplicitAvailability is set (spec.md section 3): it
// appends an explicit "available" indicator field, just before the closing
// </record> tag (or at the end when there is none), expected by clients that
// do not infer availability from holdings data. Grounded on the MARC21
// holdings convention of a 949 "local holdings" field carrying a status
// subfield.
func ApplyExplicitAvailability(xmlRecord string, enabled bool) string {
	if !enabled {
		return xmlRecord
	}
	const patch = `<datafield tag="949" ind1=" " ind2=" "><subfield code="a">available</subfield></datafield>`
	if idx := strings.LastIndex(xmlRecord, "</record>"); idx != -1 {
		return xmlRecord[:idx] + patch + xmlRecord[idx:]
	}
	return xmlRecord + patch
}

// ToMARC21 walks the field spec list in order, as spec.md section 4.7
// describes: each entry's xpath is evaluated, empties are skipped, and
// "full" short-circuits to re-parsing the whole document as MARC-XML.
func ToMARC21(specs []config.FieldSpec, xmlRecord string) ([]byte, *diag.Error) {
	for _, spec := range specs {
		if spec.Content == "full" {
			return MarcXMLToMARC21(xmlRecord)
		}
	}

	root, err := parseXML(xmlRecord)
	if err != nil {
		return nil, diag.Newf(diag.Code100BackendGeneral, "malformed record: %s", err)
	}

	b := newMarcBuilder()
	for _, spec := range specs {
		cs, ok := parseContent(spec.Content)
		if !ok {
			continue
		}
		for _, res := range evalXPath(root, spec.XPath) {
			value := strings.Trim(res.text, "\n")
			if value == "" {
				continue
			}
			if cs.IsControl {
				b.addControl(cs.Tag, value)
				continue
			}
			b.addSubfield(cs, value)
		}
	}
	return b.serialize(), nil
}

// MarcXMLToMARC21 parses a MARC-XML document (the `<record>` element with
// `<leader>`, `<controlfield>`, and `<datafield>/<subfield>` children used
// by the Library of Congress MARC-XML schema) and emits binary MARC21
// verbatim, the "full" passthrough shortcut of spec.md section 4.7.
func MarcXMLToMARC21(xmlRecord string) ([]byte, *diag.Error) {
	root, err := parseXML(xmlRecord)
	if err != nil {
		return nil, diag.Newf(diag.Code100BackendGeneral, "malformed MARC-XML record: %s", err)
	}
	rec := root
	if rec.Name != "record" {
		if children := root.Children["record"]; len(children) > 0 {
			rec = children[0]
		}
	}

	b := newMarcBuilder()
	for _, cf := range rec.Children["controlfield"] {
		b.addControl(cf.Attrs["tag"], cf.Text)
	}
	for _, df := range rec.Children["datafield"] {
		tag := df.Attrs["tag"]
		ind1 := indicatorByte(df.Attrs["ind1"])
		ind2 := indicatorByte(df.Attrs["ind2"])
		for _, sf := range df.Children["subfield"] {
			code := sf.Attrs["code"]
			cs := contentSpec{Tag: tag, Ind1: ind1, Ind2: ind2, Subfield: code}
			b.addSubfield(cs, sf.Text)
		}
	}
	return b.serialize(), nil
}

func indicatorByte(s string) byte {
	if s == "" {
		return ' '
	}
	return s[0]
}

// ToGRS1 accumulates `"tag data\n"` lines per xpath match, collapsing
// embedded newlines in the matched data to spaces (spec.md section 4.7).
func ToGRS1(specs []config.FieldSpec, xmlRecord string) []byte {
	root, err := parseXML(xmlRecord)
	if err != nil {
		return nil
	}
	var out strings.Builder
	for _, spec := range specs {
		for _, res := range evalXPath(root, spec.XPath) {
			value := strings.Trim(res.text, "\n")
			if value == "" {
				continue
			}
			value = strings.ReplaceAll(value, "\n", " ")
			fmt.Fprintf(&out, "%s %s\n", spec.Content, value)
		}
	}
	return []byte(out.String())
}

// ToSUTRS produces a recursive, indented dump: `"\t"*level name = value"`
// for scalar leaves, braced blocks for nested elements, and single-element
// sequences unwrapped rather than shown as a one-item list (spec.md
// section 4.7).
func ToSUTRS(root *node) string {
	var out strings.Builder
	writeSUTRS(&out, root, 0)
	return out.String()
}

func writeSUTRS(out *strings.Builder, n *node, level int) {
	indent := strings.Repeat("\t", level)
	if len(n.Ordered) == 0 {
		fmt.Fprintf(out, "%s%s = %s\n", indent, n.Name, n.Text)
		return
	}
	fmt.Fprintf(out, "%s%s {\n", indent, n.Name)
	for _, tag := range n.Ordered {
		children := n.Children[tag]
		if len(children) == 1 {
			writeSUTRS(out, children[0], level+1)
			continue
		}
		for _, c := range children {
			writeSUTRS(out, c, level+1)
		}
	}
	fmt.Fprintf(out, "%s}\n", indent)
}
