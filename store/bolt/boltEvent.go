package bolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gehhilfe/orthrus/core"
)

type boltEvent struct {
	Position    int64
	AggregateID string
	Aggregate   string
	CommitID    string
	Revision    int64
	CreatedAt   time.Time
	Payload     string
}

func decodeEvent(data []byte) (core.Event, error) {
	if data == nil {
		return core.Event{}, errors.New("dangling event pointer")
	}
	var e boltEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return core.Event{}, fmt.Errorf("could not deserialize event: %w", err)
	}
	return core.Event{
		Position:    e.Position,
		AggregateID: e.AggregateID,
		Aggregate:   e.Aggregate,
		CommitID:    e.CommitID,
		Revision:    e.Revision,
		CreatedAt:   e.CreatedAt,
		Payload:     e.Payload,
	}, nil
}

// itob returns an 8-byte big endian representation of v.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// nameKey turns an aggregate id or type into a bucket or key name. bbolt
// refuses empty names, so every name carries a prefix.
func nameKey(name string) []byte {
	return []byte("n:" + name)
}
