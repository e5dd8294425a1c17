package marcrec

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	fieldTerminator  = 0x1E
	recordTerminator = 0x1D
	subfieldDelim    = 0x1F
)

// contentSpec is a parsed `tag[/i1[/i2]][$subtag]` field-converter content
// string (spec.md section 4.7).
type contentSpec struct {
	Tag        string
	Ind1, Ind2 byte
	Subfield   string // empty for control fields
	IsControl  bool
}

var contentRe = regexp.MustCompile(`^(\d{3})(?:/(.))?(?:/(.))?(?:\$(.))?$`)

func parseContent(content string) (contentSpec, bool) {
	m := contentRe.FindStringSubmatch(content)
	if m == nil {
		return contentSpec{}, false
	}
	spec := contentSpec{Tag: m[1], Ind1: ' ', Ind2: ' '}
	if m[2] != "" {
		spec.Ind1 = m[2][0]
	}
	if m[3] != "" {
		spec.Ind2 = m[3][0]
	}
	spec.Subfield = m[4]
	spec.IsControl = strings.HasPrefix(spec.Tag, "00")
	return spec, true
}

// dataField is one in-progress MARC21 data field (indicators + subfields).
type dataField struct {
	tag        string
	ind1, ind2 byte
	codes      map[string]bool
	data       []byte // serialized subfield bytes, built incrementally
}

// marcBuilder accumulates control and data fields in field-spec order and
// serializes them to binary ISO 2709.
type marcBuilder struct {
	controlFields []fieldEntry
	dataFields    []*dataField
	lastByTag     map[string]*dataField
}

type fieldEntry struct {
	tag  string
	data []byte
}

func newMarcBuilder() *marcBuilder {
	return &marcBuilder{lastByTag: map[string]*dataField{}}
}

func (b *marcBuilder) addControl(tag, value string) {
	b.controlFields = append(b.controlFields, fieldEntry{tag: tag, data: []byte(value)})
}

// addSubfield implements spec.md section 4.7's field-grouping rule: if no
// field with this tag exists yet, or the existing one already carries this
// subfield code, append a new field; otherwise add the subfield to the
// existing (most recently opened) field for this tag.
func (b *marcBuilder) addSubfield(spec contentSpec, value string) {
	last, ok := b.lastByTag[spec.Tag]
	if !ok || last.codes[spec.Subfield] {
		last = &dataField{tag: spec.Tag, ind1: spec.Ind1, ind2: spec.Ind2, codes: map[string]bool{}}
		b.dataFields = append(b.dataFields, last)
		b.lastByTag[spec.Tag] = last
	}
	last.codes[spec.Subfield] = true
	last.data = append(last.data, subfieldDelim)
	last.data = append(last.data, spec.Subfield[0])
	last.data = append(last.data, []byte(value)...)
}

// serialize renders the accumulated fields as a binary ISO 2709 record: a
// 24-byte leader, a directory of 12-byte entries, the field data block
// (each field terminated by 0x1E), and a trailing record terminator.
func (b *marcBuilder) serialize() []byte {
	type entry struct {
		tag    string
		data   []byte
	}
	var entries []entry
	for _, c := range b.controlFields {
		entries = append(entries, entry{tag: c.tag, data: c.data})
	}
	for _, d := range b.dataFields {
		fd := append([]byte{d.ind1, d.ind2}, d.data...)
		entries = append(entries, entry{tag: d.tag, data: fd})
	}

	var body []byte
	var dir strings.Builder
	start := 0
	for _, e := range entries {
		field := append(append([]byte{}, e.data...), fieldTerminator)
		length := len(field)
		fmt.Fprintf(&dir, "%03s%04d%05d", e.tag, length, start)
		body = append(body, field...)
		start += length
	}
	dir.WriteByte(fieldTerminator)

	baseAddr := 24 + dir.Len()
	totalLen := baseAddr + len(body) + 1

	leader := fmt.Sprintf("%05d%s%05d%s", totalLen, "nam a22", baseAddr, "   4500")
	// Pad/trim the leader to exactly 24 bytes; the fixed portions above are
	// illustrative placeholders a real cataloging rule set would refine.
	if len(leader) < 24 {
		leader += strings.Repeat(" ", 24-len(leader))
	}
	leader = leader[:24]

	out := make([]byte, 0, totalLen)
	out = append(out, leader...)
	out = append(out, dir.String()...)
	out = append(out, body...)
	out = append(out, recordTerminator)
	return out
}
