package op

import (
	"time"
)

// OperationID is the textual CID of an operation.
type OperationID string

// ViewID is the textual CID of a view.
type ViewID string

// Short returns a display prefix of the operation id.
func (id OperationID) Short() string {
	s := string(id)
	if len(s) > 9+12 {
		return s[9 : 9+12]
	}
	return s
}

// Metadata describes who ran an operation and when.
type Metadata struct {
	Description string            `json:"description"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Hostname    string            `json:"hostname"`
	Username    string            `json:"username"`
	IsSnapshot  bool              `json:"is_snapshot,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Operation is one node of the operation log. Parents are the operations
// it was based on; several parents mean concurrent operations were merged.
type Operation struct {
	Parents  []OperationID `json:"parents"`
	View     ViewID        `json:"view"`
	Metadata Metadata      `json:"metadata"`
}

// IsRoot reports whether the operation has no parents.
func (o *Operation) IsRoot() bool {
	return len(o.Parents) == 0
}
