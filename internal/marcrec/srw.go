package marcrec

import (
	"encoding/xml"
	"strings"
)

// srwDiagnosticNS is the namespace an old SRU back-end uses when it reports
// a per-record error by returning a surrogate diagnostic element in place
// of the requested record, rather than in the response envelope's own
// <diagnostics> block (spec.md section 4.5).
const srwDiagnosticNS = "http://www.loc.gov/zing/srw/diagnostic/"

// DetectSRWDiagnostic heuristically scans xmlRecord for a <diagnostic>
// element in the SRW diagnostic namespace and, if found, returns its uri and
// message children. It is a plain token scan rather than a full parse since
// the element may be nested arbitrarily deep inside the back-end's record
// envelope.
func DetectSRWDiagnostic(xmlRecord string) (uri, message string, found bool) {
	dec := xml.NewDecoder(strings.NewReader(xmlRecord))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", "", false
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Space != srwDiagnosticNS || se.Name.Local != "diagnostic" {
			continue
		}
		var d struct {
			URI     string `xml:"uri"`
			Message string `xml:"message"`
		}
		if err := dec.DecodeElement(&d, &se); err != nil {
			return "", "", false
		}
		return d.URI, d.Message, true
	}
}
