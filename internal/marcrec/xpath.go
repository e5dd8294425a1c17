package marcrec

import (
	"encoding/xml"
	"strings"
)

// node is a generic, recursively-parsed XML element: the shape every
// back-end record (MARC-XML, GRS-1-as-XML, arbitrary passthrough XML) is
// normalized into before a database's field spec walks it.
type node struct {
	Name    string
	Attrs   map[string]string
	Text    string
	Ordered []string // child tag names in document order, for SUTRS/GRS-1 walks
	Children map[string][]*node
}

type rawNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Chardata string     `xml:",chardata"`
	Nodes    []rawNode  `xml:",any"`
}

func parseXML(data string) (*node, error) {
	var raw rawNode
	if err := xml.Unmarshal([]byte(data), &raw); err != nil {
		return nil, err
	}
	return convert(raw), nil
}

func convert(raw rawNode) *node {
	n := &node{
		Name:     raw.XMLName.Local,
		Attrs:    map[string]string{},
		Text:     strings.TrimSpace(raw.Chardata),
		Children: map[string][]*node{},
	}
	for _, a := range raw.Attrs {
		n.Attrs[a.Name.Local] = a.Value
	}
	for _, c := range raw.Nodes {
		child := convert(c)
		if _, seen := n.Children[child.Name]; !seen {
			n.Ordered = append(n.Ordered, child.Name)
		}
		n.Children[child.Name] = append(n.Children[child.Name], child)
	}
	return n
}

// xpathResult is one matched node's realized string value, either its text
// content or a selected attribute.
type xpathResult struct {
	text string
	node *node
}

// evalXPath evaluates a small subset of XPath sufficient for a field spec
// table: absolute paths of element-name segments, each segment optionally
// carrying one `[@attr='value']` predicate, with an optional trailing
// `/@attr` to select an attribute instead of the final element's text.
// This stands in for the full xpath engine the original record converter
// assumed as an external library; no xpath package appears anywhere in the
// retrieved corpus, so it is implemented directly against encoding/xml.
func evalXPath(root *node, path string) []xpathResult {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return []xpathResult{{text: root.Text, node: root}}
	}
	segments := strings.Split(path, "/")
	wantAttr := ""
	if len(segments) > 0 && strings.HasPrefix(segments[len(segments)-1], "@") {
		wantAttr = strings.TrimPrefix(segments[len(segments)-1], "@")
		segments = segments[:len(segments)-1]
	}
	nodes := []*node{root}
	for _, seg := range segments {
		tag, predKey, predVal, hasPred := parseSegment(seg)
		var next []*node
		for _, n := range nodes {
			for _, c := range n.Children[tag] {
				if hasPred && c.Attrs[predKey] != predVal {
					continue
				}
				next = append(next, c)
			}
		}
		nodes = next
	}
	results := make([]xpathResult, 0, len(nodes))
	for _, n := range nodes {
		if wantAttr != "" {
			results = append(results, xpathResult{text: n.Attrs[wantAttr], node: n})
		} else {
			results = append(results, xpathResult{text: n.Text, node: n})
		}
	}
	return results
}

func parseSegment(seg string) (tag, predKey, predVal string, hasPred bool) {
	open := strings.Index(seg, "[")
	if open == -1 {
		return seg, "", "", false
	}
	tag = seg[:open]
	pred := strings.TrimSuffix(seg[open+1:], "]")
	pred = strings.TrimPrefix(pred, "@")
	kv := strings.SplitN(pred, "=", 2)
	if len(kv) != 2 {
		return tag, "", "", false
	}
	return tag, kv[0], strings.Trim(kv[1], `'"`), true
}
