// Package diag models BIB-1 diagnostics, the only error currency the
// gateway's handlers speak once a request leaves the failure barrier.
package diag

import (
	"fmt"
	"strconv"
	"strings"
)

// Set identifies which diagnostic set a backend reported an error against.
type Set int

const (
	SetBib1 Set = iota
	SetSRW
	SetZOOM
)

// BIB-1 diagnostic codes used by the gateway. See spec.md section 6.
const (
	Code1                  = 1   // config/syntax error in an ad-hoc virtual database
	Code13PresentOutOfRange = 13
	Code18ResultSetIDUnsupported = 18
	Code22NamedResultSetsUnsupported = 22
	Code100BackendGeneral  = 100
	Code109ConnectFailed   = 109
	Code111TooManyDatabases = 111
	Code113UnsupportedAttributeType = 113
	Code114UnsupportedUseAttribute = 114
	Code117UnsupportedRelation = 117
	Code119UnsupportedPosition = 119
	Code120UnsupportedTruncation = 120
	Code121UnsupportedAttributeSet = 121
	Code122UnsupportedCompleteness = 122
	Code128ResultSetNotFound = 128
	Code235DatabaseUnavailable = 235
	Code237MissingSortAttribute = 237
	Code238UnsupportedRecordSyntax = 238
	Code1014CredentialsBad = 1014
)

// Error is a client-protocol diagnostic: a BIB-1 code plus optional
// additional-info text, attached to the current reply by the dispatcher.
type Error struct {
	Code    int
	AddInfo string
}

func (e *Error) Error() string {
	if e.AddInfo == "" {
		return fmt.Sprintf("BIB-1 diagnostic %d", e.Code)
	}
	return fmt.Sprintf("BIB-1 diagnostic %d: %s", e.Code, e.AddInfo)
}

// New builds a diagnostic error with the given BIB-1 code and addinfo.
func New(code int, addinfo string) *Error {
	return &Error{Code: code, AddInfo: addinfo}
}

// Newf builds a diagnostic error with a formatted addinfo string.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, AddInfo: fmt.Sprintf(format, args...)}
}

// BackendError is the failure shape the ZOOM layer reports: a message plus
// the diagnostic set it was raised against and, for Bib-1/SRW sets, the
// numeric code within that set.
type BackendError struct {
	Set     Set
	Code    int
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// srwToBib1 maps info:srw/diagnostic/1/<n> codes to BIB-1 codes. Only the
// subset the gateway is expected to see from SRU back-ends is populated;
// anything absent falls through to the generic 100.
var srwToBib1 = map[int]int{
	1:  Code1,
	4:  Code113UnsupportedAttributeType,
	5:  Code114UnsupportedUseAttribute,
	6:  Code114UnsupportedUseAttribute,
	19: Code117UnsupportedRelation,
	28: Code235DatabaseUnavailable,
	66: Code238UnsupportedRecordSyntax,
}

// Translate converts a BackendError (as surfaced by the ZOOM layer) into a
// client-protocol diagnostic, per spec.md section 7:
//   - Bib-1 passes through verbatim.
//   - SRW is mapped through the fixed table above; unmapped codes become 100.
//   - A ZOOM CONNECT failure becomes 109.
//   - Any other ZOOM failure becomes 100, carrying the provider's message.
func Translate(err error) *Error {
	be, ok := err.(*BackendError)
	if !ok {
		// Not a recognized backend failure shape; the caller is responsible
		// for deciding whether this is a programmer error instead.
		return New(Code100BackendGeneral, err.Error())
	}
	switch be.Set {
	case SetBib1:
		return New(be.Code, be.Message)
	case SetSRW:
		if code, ok := srwToBib1[be.Code]; ok {
			return New(code, be.Message)
		}
		return New(Code100BackendGeneral, be.Message)
	case SetZOOM:
		if be.Code == ZOOMConnectFailure {
			return New(Code109ConnectFailed, be.Message)
		}
		return New(Code100BackendGeneral, be.Message)
	default:
		return New(Code100BackendGeneral, be.Message)
	}
}

// ZOOMConnectFailure is the sentinel ZOOM-set code for a connect failure.
const ZOOMConnectFailure = -1

// SRWCodeFromURI extracts the <n> from an SRW diagnostic URI of the form
// info:srw/diagnostic/1/<n>, returning 0 if the URI doesn't match that
// shape.
func SRWCodeFromURI(uri string) int {
	const prefix = "info:srw/diagnostic/1/"
	if !strings.HasPrefix(uri, prefix) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return 0
	}
	return n
}
