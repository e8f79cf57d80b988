// Package sourcing lets github.com/hallgren/eventsourcing repositories persist
// aggregates in an orthrus store.
package sourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hallgren/eventsourcing/core"

	"github.com/gehhilfe/orthrus"
	storecore "github.com/gehhilfe/orthrus/core"
)

const pageSize = 100

var ErrPayloadNotJSON = errors.New("event data must be JSON")

// envelope is the payload written for every event.
type envelope struct {
	Reason    string          `json:"reason"`
	Data      json.RawMessage `json:"data,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventStore implements core.EventStore. Versions map to revisions and global
// versions to log positions.
type EventStore struct {
	store *orthrus.Store
}

func NewEventStore(store *orthrus.Store) *EventStore {
	return &EventStore{
		store: store,
	}
}

func rawJSON(b []byte) (json.RawMessage, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if !json.Valid(b) {
		return nil, ErrPayloadNotJSON
	}
	return json.RawMessage(b), nil
}

func encode(e core.Event) (string, error) {
	data, err := rawJSON(e.Data)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", e.Reason, err)
	}
	metadata, err := rawJSON(e.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s metadata: %w", e.Reason, err)
	}

	payload, err := json.Marshal(envelope{
		Reason:    e.Reason,
		Data:      data,
		Metadata:  metadata,
		Timestamp: e.Timestamp.UTC(),
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decode(e orthrus.Event) (core.Event, error) {
	var env envelope
	if err := json.Unmarshal([]byte(e.Payload), &env); err != nil {
		return core.Event{}, fmt.Errorf("failed to decode event at position %d: %w", e.Position, err)
	}

	timestamp := env.Timestamp
	if timestamp.IsZero() {
		timestamp = e.CreatedAt
	}
	return core.Event{
		AggregateID:   e.AggregateID,
		AggregateType: e.Aggregate,
		Version:       core.Version(e.Revision),
		GlobalVersion: core.Version(e.Position),
		Timestamp:     timestamp,
		Reason:        env.Reason,
		Data:          []byte(env.Data),
		Metadata:      []byte(env.Metadata),
	}, nil
}

// Save commits events as one batch. A version that is already taken fails
// with an error matching core.ErrConcurrency. On success GlobalVersion is set
// on every event.
func (s *EventStore) Save(events []core.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := make([]orthrus.NewEvent, len(events))
	for i, e := range events {
		payload, err := encode(e)
		if err != nil {
			return err
		}
		batch[i] = orthrus.NewEvent{
			AggregateID: e.AggregateID,
			Aggregate:   e.AggregateType,
			Revision:    int64(e.Version),
			Payload:     payload,
		}
	}

	ctx := context.Background()
	err := s.store.SaveEvents(ctx, batch)
	if errors.Is(err, storecore.ErrUniqueConstraint) {
		return fmt.Errorf("%w: %w", core.ErrConcurrency, err)
	}
	if err != nil {
		return err
	}

	return s.fillGlobalVersions(ctx, events)
}

// fillGlobalVersions reads the positions the backend assigned back.
func (s *EventStore) fillGlobalVersions(ctx context.Context, events []core.Event) error {
	type span struct {
		from, to int64
	}
	spans := make(map[string]span)
	for _, e := range events {
		rev := int64(e.Version)
		sp, ok := spans[e.AggregateID]
		if !ok {
			sp = span{from: rev, to: rev}
		}
		sp.from, sp.to = min(sp.from, rev), max(sp.to, rev)
		spans[e.AggregateID] = sp
	}

	positions := make(map[string]map[int64]int64, len(spans))
	for id, sp := range spans {
		cursor, err := s.store.GetEventsByID(id, int(sp.to-sp.from+1), sp.from, storecore.UpTo(sp.to))
		if err != nil {
			return err
		}
		saved, err := storecore.Collect(ctx, storecore.Pager[orthrus.Event](cursor))
		if err != nil {
			return fmt.Errorf("failed to read back positions of %s: %w", id, err)
		}
		positions[id] = make(map[int64]int64, len(saved))
		for _, e := range saved {
			positions[id][e.Revision] = e.Position
		}
	}

	for i, e := range events {
		events[i].GlobalVersion = core.Version(positions[e.AggregateID][int64(e.Version)])
	}
	return nil
}

// Get yields the events of one aggregate after afterVersion, in version order.
// Events stored under a different aggregate type are skipped.
func (s *EventStore) Get(ctx context.Context, id string, aggregateType string, afterVersion core.Version) (core.Iterator, error) {
	cursor, err := s.store.GetEventsByID(id, pageSize, int64(afterVersion)+1, storecore.Unbounded())
	if err != nil {
		return nil, err
	}

	return func(yield func(core.Event, error) bool) {
		for page, err := range storecore.Pages(ctx, storecore.Pager[orthrus.Event](cursor)) {
			if err != nil {
				yield(core.Event{}, err)
				return
			}
			for _, e := range page.Items {
				if e.Aggregate != aggregateType {
					continue
				}
				if !yield(decode(e)) {
					return
				}
			}
		}
	}, nil
}
