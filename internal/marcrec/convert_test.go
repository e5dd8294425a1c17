package marcrec

import (
	"bytes"
	"testing"

	"github.com/z3950gw/gateway/internal/config"
)

func TestToMARC21_FieldGrouping(t *testing.T) {
	xmlRecord := `<doc>
		<datafield tag="245"><subfield code="a">Title One</subfield></datafield>
		<datafield tag="245"><subfield code="a">Title Two</subfield><subfield code="b">subtitle</subfield></datafield>
	</doc>`
	specs := []config.FieldSpec{
		{XPath: "/datafield[@tag='245']/subfield[@code='a']", Content: "245$a"},
		{XPath: "/datafield[@tag='245']/subfield[@code='b']", Content: "245$b"},
	}

	out, derr := ToMARC21(specs, xmlRecord)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if !bytes.Contains(out, []byte("Title One")) || !bytes.Contains(out, []byte("Title Two")) {
		t.Fatalf("expected both title values serialized, got %q", out)
	}
	if out[len(out)-1] != recordTerminator {
		t.Errorf("expected record terminator at end")
	}
}

func TestToMARC21_ControlField(t *testing.T) {
	xmlRecord := `<doc><leader>00000cam</leader><controlfield tag="001">12345</controlfield></doc>`
	specs := []config.FieldSpec{
		{XPath: "/controlfield", Content: "001"},
	}
	out, derr := ToMARC21(specs, xmlRecord)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if !bytes.Contains(out, []byte("12345")) {
		t.Errorf("expected control field value serialized, got %q", out)
	}
}

func TestToMARC21_FullPassthroughMatchesMarcXMLConversion(t *testing.T) {
	xmlRecord := `<record>
		<controlfield tag="001">999</controlfield>
		<datafield tag="245" ind1="1" ind2="0"><subfield code="a">A Title</subfield></datafield>
	</record>`
	specs := []config.FieldSpec{{Content: "full"}}

	viaFull, derr := ToMARC21(specs, xmlRecord)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	direct, derr := MarcXMLToMARC21(xmlRecord)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if !bytes.Equal(viaFull, direct) {
		t.Errorf("full passthrough must equal direct MARC-XML conversion:\n%q\n%q", viaFull, direct)
	}
}

func TestConvert_UnsupportedSyntaxSortedAddInfo(t *testing.T) {
	db := &config.DatabaseConfig{
		GRS1Record: []config.FieldSpec{{XPath: "/x", Content: "x"}},
	}
	_, derr := Convert(db, config.SyntaxUSMARC, "<doc/>")
	if derr == nil || derr.Code != 238 {
		t.Fatalf("expected diagnostic 238, got %v", derr)
	}
	if want := "grs1,xml"; derr.AddInfo != want {
		t.Errorf("got addinfo %q, want %q", derr.AddInfo, want)
	}
}

func TestConvert_XMLPassthrough(t *testing.T) {
	db := &config.DatabaseConfig{}
	out, derr := Convert(db, config.SyntaxXML, "<doc>hi</doc>")
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if string(out) != "<doc>hi</doc>" {
		t.Errorf("expected passthrough, got %q", out)
	}
}

func TestApplyExplicitAvailability(t *testing.T) {
	got := ApplyExplicitAvailability("<record><controlfield tag=\"001\">1</controlfield></record>", true)
	if !bytes.Contains([]byte(got), []byte(`tag="949"`)) {
		t.Errorf("expected 949 field patch inserted, got %q", got)
	}
	if !bytes.HasSuffix([]byte(got), []byte("</record>")) {
		t.Errorf("expected patch inserted before closing tag, got %q", got)
	}
}

func TestApplyExplicitAvailability_Disabled(t *testing.T) {
	in := "<record></record>"
	if got := ApplyExplicitAvailability(in, false); got != in {
		t.Errorf("expected no change when disabled, got %q", got)
	}
}

func TestToGRS1(t *testing.T) {
	xmlRecord := `<doc><datafield tag="245"><subfield code="a">Some\nTitle</subfield></datafield></doc>`
	specs := []config.FieldSpec{{XPath: "/datafield[@tag='245']/subfield[@code='a']", Content: "title"}}
	out := ToGRS1(specs, xmlRecord)
	if !bytes.Contains(out, []byte("title ")) {
		t.Errorf("expected GRS-1 line with content label, got %q", out)
	}
}

func TestToSUTRS(t *testing.T) {
	root, err := parseXML(`<doc><title>War and Peace</title></doc>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ToSUTRS(root)
	want := "doc {\n\ttitle = War and Peace\n}\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConvert_SUTRS(t *testing.T) {
	db := &config.DatabaseConfig{}
	out, derr := Convert(db, config.SyntaxSUTRS, `<doc><title>Hi</title></doc>`)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if string(out) != "doc {\n\ttitle = Hi\n}\n" {
		t.Errorf("unexpected SUTRS output: %q", out)
	}
}
