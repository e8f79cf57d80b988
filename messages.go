package orthrus

import "github.com/gehhilfe/orthrus/core"

// MessageCommitted announces a successful commit. Positions are not known to
// the writer, so consumers read them back from the store.
type MessageCommitted struct {
	Stream   StreamIdentity     `json:"stream"`
	CommitID string             `json:"commitId"`
	Events   []core.EventToSave `json:"events"`
}

func (m *MessageCommitted) Type() string {
	return "committed.v1"
}
