package orthrus

import "github.com/gehhilfe/orthrus/core"

// StreamIdentity names the logical stream a store serves. Backends derive
// their table name from it.
type StreamIdentity struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

func (s StreamIdentity) TableName() string {
	return s.Name + "-" + s.Version
}

func (s StreamIdentity) String() string {
	return s.TableName()
}

// NewEvent is an event the caller wants persisted. The store assigns the
// commit id; the backend assigns position and creation time.
type NewEvent struct {
	AggregateID string `json:"aggregateId"`
	Aggregate   string `json:"aggregate"`
	Revision    int64  `json:"revision"`
	Payload     string `json:"payload"`
}

// Event is a persisted event as the store hands it out, decorated with the
// identity of its stream.
type Event struct {
	core.Event
	StreamName    string `json:"streamName"`
	StreamVersion string `json:"streamVersion"`
}
