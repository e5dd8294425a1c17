package sortplan

import "testing"

func TestExtract_SortField(t *testing.T) {
	key, err := Extract(KeySource{SortField: "title", Relation: Descending, Case: CaseSensitive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Literal != "title" {
		t.Errorf("expected literal title, got %q", key.Literal)
	}
}

func TestExtract_SortAttrMissingUse(t *testing.T) {
	_, err := Extract(KeySource{})
	if err == nil || err.Code != 237 {
		t.Fatalf("expected diagnostic 237, got %v", err)
	}
}

func TestExtract_SortAttrNonBib1(t *testing.T) {
	_, err := Extract(KeySource{SortAttr: []SortAttr{{Type: 2, Value: 3}}})
	if err == nil || err.Code != 121 {
		t.Fatalf("expected diagnostic 121, got %v", err)
	}
}

func TestSortKey_YAZSortspec(t *testing.T) {
	key, err := Extract(KeySource{SortField: "title", Relation: Descending, Case: CaseInsensitive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := key.YAZSortspec(), "title >i"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestSortKey_YAZSortspec_WorkedExample verifies the exact RELATION=0,
// CASE=0 case from the end-to-end sort scenario: ascending, case-sensitive.
func TestSortKey_YAZSortspec_WorkedExample(t *testing.T) {
	key, err := Extract(KeySource{SortField: "title", Relation: Ascending, Case: CaseSensitive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := key.YAZSortspec(), "title <s"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSortKey_CQLSortspec(t *testing.T) {
	key, err := Extract(KeySource{SortAttr: []SortAttr{{Type: 1, Value: 4}}, Relation: Ascending, Case: CaseSensitive, Missing: MissingOmit})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := key.CQLSortspec(map[int]string{4: "title"})
	want := "title/sort.ascending/sort.respectCase/sort.missingOmit"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestYAZSortspecSequence(t *testing.T) {
	key, _ := Extract(KeySource{SortField: "title", Relation: Descending})
	got := YAZSortspecSequence([]SortKey{key})
	if want := "title >s"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
