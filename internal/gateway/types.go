package gateway

import (
	"github.com/z3950gw/gateway/internal/rpn"
	"github.com/z3950gw/gateway/internal/sortplan"
	"github.com/z3950gw/gateway/internal/zoom"
)

// InitRequest carries the client's Init PDU fields the session driver acts
// on (spec.md section 4.1).
type InitRequest struct {
	User     string
	Password string
}

// InitReply carries the reply fields Init populates on success.
type InitReply struct {
	ImplementationID      string
	ImplementationName    string
	ImplementationVersion string
}

// SearchRequest is one Search PDU: the target databases, the set name to
// publish the result under, and the already-decoded Type-1 query tree.
type SearchRequest struct {
	Databases []string
	SetName   string
	Query     rpn.Node
}

// SearchReply carries the HITS reply field (spec.md section 4.4).
type SearchReply struct {
	Hits int
}

// PresentRequest asks the driver to validate/prepare a present range
// (spec.md section 4.5); it performs no retrieval itself.
type PresentRequest struct {
	SetName string
	Start   int
	Number  int
}

// FetchRequest retrieves a single record at a one-based offset into a
// named result set, in a requested record syntax and optional schema.
type FetchRequest struct {
	SetName string
	Offset  int
	Schema  string
	Syntax  string
}

// FetchReply carries the serialized record bytes.
type FetchReply struct {
	Record []byte
}

// ScanRequest is one Scan PDU.
type ScanRequest struct {
	Databases []string
	Query     rpn.Node
	Number    int
	Position  int
	StepSize  int
}

// ScanReply mirrors zoom.ScanResult plus the partial/success status.
type ScanReply struct {
	Entries []zoom.ScanEntry
	Partial bool
}

// SortRequest is one Sort PDU: source sets, destination set, sort keys.
type SortRequest struct {
	Input    []string
	Output   string
	Sequence []sortplan.KeySource
}

// SortReply mirrors SearchReply: the new set's hit count.
type SortReply struct {
	Hits int
}
