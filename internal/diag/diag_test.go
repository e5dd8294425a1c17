package diag

import "testing"

func TestTranslate_Bib1Passthrough(t *testing.T) {
	err := Translate(&BackendError{Set: SetBib1, Code: 13, Message: "out of range"})
	if err.Code != 13 || err.AddInfo != "out of range" {
		t.Errorf("got %+v", err)
	}
}

func TestTranslate_SRWMapped(t *testing.T) {
	err := Translate(&BackendError{Set: SetSRW, Code: 66, Message: "unsupported record syntax"})
	if err.Code != Code238UnsupportedRecordSyntax {
		t.Errorf("expected 238, got %d", err.Code)
	}
}

func TestTranslate_SRWUnmappedFallsBackTo100(t *testing.T) {
	err := Translate(&BackendError{Set: SetSRW, Code: 999, Message: "weird"})
	if err.Code != Code100BackendGeneral {
		t.Errorf("expected 100, got %d", err.Code)
	}
}

func TestTranslate_ZOOMConnectFailureIs109(t *testing.T) {
	err := Translate(&BackendError{Set: SetZOOM, Code: ZOOMConnectFailure, Message: "dial tcp: refused"})
	if err.Code != Code109ConnectFailed {
		t.Errorf("expected 109, got %d", err.Code)
	}
}

func TestTranslate_OtherZOOMFailureIs100(t *testing.T) {
	err := Translate(&BackendError{Set: SetZOOM, Code: 0, Message: "timeout"})
	if err.Code != Code100BackendGeneral {
		t.Errorf("expected 100, got %d", err.Code)
	}
}

func TestTranslate_NonBackendErrorIs100(t *testing.T) {
	err := Translate(errPlain("boom"))
	if err.Code != Code100BackendGeneral || err.AddInfo != "boom" {
		t.Errorf("got %+v", err)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

func TestSRWCodeFromURI_Matches(t *testing.T) {
	if got := SRWCodeFromURI("info:srw/diagnostic/1/66"); got != 66 {
		t.Errorf("got %d, want 66", got)
	}
}

func TestSRWCodeFromURI_UnrecognizedFormReturnsZero(t *testing.T) {
	if got := SRWCodeFromURI("not-a-diagnostic-uri"); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}
