package orthrus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gehhilfe/orthrus/core"
)

var ErrStaleStream = errors.New("event stream is stale, hydrate it before committing")

// EventStream stages new events for one aggregate on top of the revision it
// was hydrated at. Commit fails with a *core.UniqueConstraintError when
// another writer took one of the staged revisions first. An EventStream is
// not safe for concurrent use.
type EventStream struct {
	store       *Store
	aggregateID string
	aggregate   string

	pageSize int
	fromRev  int64
	toRev    core.Bound

	lastEvent    Event
	hasLast      bool
	nextRevision int64

	pending []NewEvent
	stale   bool
}

// Hydrate reloads the last event of the aggregate and drops anything staged.
func (s *EventStream) Hydrate(ctx context.Context) error {
	last, found, err := s.store.GetLastEvent(ctx, s.aggregateID)
	if err != nil {
		return fmt.Errorf("failed to hydrate %s: %w", s.aggregateID, err)
	}

	s.lastEvent, s.hasLast = last, found
	s.nextRevision = 1
	if found {
		s.nextRevision = last.Revision + 1
	}
	s.pending = nil
	s.stale = false
	return nil
}

func (s *EventStream) AggregateID() string {
	return s.aggregateID
}

func (s *EventStream) Aggregate() string {
	return s.aggregate
}

// Revision is the revision of the last event seen by Hydrate.
func (s *EventStream) Revision() (int64, bool) {
	if !s.hasLast {
		return 0, false
	}
	return s.lastEvent.Revision, true
}

func (s *EventStream) LastEvent() (Event, bool) {
	return s.lastEvent, s.hasLast
}

// NextRevision is the revision the next staged event will get.
func (s *EventStream) NextRevision() int64 {
	return s.nextRevision
}

// Events pages through the persisted events of the aggregate within the
// revision range the stream was opened with.
func (s *EventStream) Events() (*core.RangeCursor[Event], error) {
	return s.store.GetEventsByID(s.aggregateID, s.pageSize, s.fromRev, s.toRev)
}

func (s *EventStream) Save(payload string) NewEvent {
	e := NewEvent{
		AggregateID: s.aggregateID,
		Aggregate:   s.aggregate,
		Revision:    s.nextRevision,
		Payload:     payload,
	}
	s.nextRevision++
	s.pending = append(s.pending, e)
	return e
}

func (s *EventStream) SaveAll(payloads []string) []NewEvent {
	out := make([]NewEvent, 0, len(payloads))
	for _, payload := range payloads {
		out = append(out, s.Save(payload))
	}
	return out
}

// SaveJSON stages v encoded as JSON.
func (s *EventStream) SaveJSON(v any) (NewEvent, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return NewEvent{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	return s.Save(string(data)), nil
}

func (s *EventStream) Pending() []NewEvent {
	return slices.Clone(s.pending)
}

// Commit saves everything staged as one batch. On a conflict the staged
// events are dropped and the stream turns stale; any other error keeps them
// staged so the same batch can be retried.
func (s *EventStream) Commit(ctx context.Context) error {
	if s.stale {
		return ErrStaleStream
	}
	if len(s.pending) == 0 {
		return nil
	}

	err := s.store.SaveEvents(ctx, s.pending)
	if errors.Is(err, core.ErrUniqueConstraint) {
		s.store.loggerFrom(ctx).Debug("event stream is stale",
			slog.String("aggregateId", s.aggregateID),
			slog.Int64("nextRevision", s.pending[0].Revision))
		s.nextRevision = s.pending[0].Revision
		s.pending = nil
		s.stale = true
		return err
	}
	if err != nil {
		return err
	}

	s.pending = nil
	return nil
}
