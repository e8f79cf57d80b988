package core

import "time"

// Event is a row of the event log as persisted by an adapter.
type Event struct {
	// Position is unique within the whole log and always increases. Assigned by the backend.
	Position    int64     `json:"position"`
	AggregateID string    `json:"aggregateId"`
	Aggregate   string    `json:"aggregate"`
	CommitID    string    `json:"commitId"`
	Revision    int64     `json:"revision"`
	CreatedAt   time.Time `json:"createdAt"`
	Payload     string    `json:"payload"`
}

// EventToSave is an event handed to Adapter.SaveEvents. Position and CreatedAt
// are assigned by the backend.
type EventToSave struct {
	AggregateID string `json:"aggregateId"`
	Aggregate   string `json:"aggregate"`
	CommitID    string `json:"commitId"`
	Revision    int64  `json:"revision"`
	Payload     string `json:"payload"`
}
