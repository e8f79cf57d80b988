package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gehhilfe/orthrus/core"
)

// InMemoryStore keeps the log in process memory. Positions start at 1 and
// never have gaps.
type InMemoryStore struct {
	lock sync.RWMutex

	events       []core.Event
	aggregates   map[string]*aggregateBucket
	nextPosition int64

	now func() time.Time
}

var _ core.Adapter = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:       make([]core.Event, 0),
		aggregates:   make(map[string]*aggregateBucket),
		nextPosition: 1,
		now:          time.Now,
	}
}

// Destroy drops every event. The memory is the only resource held.
func (s *InMemoryStore) Destroy(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.events = make([]core.Event, 0)
	s.aggregates = make(map[string]*aggregateBucket)
	s.nextPosition = 1
	return nil
}

func (s *InMemoryStore) GetAllEvents(ctx context.Context, fromPos int64, toPos core.Bound) ([]core.Event, error) {
	if err := core.ValidateRange(fromPos, toPos); err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	start, _ := slices.BinarySearchFunc(s.events, fromPos, func(e core.Event, pos int64) int {
		return cmp.Compare(e.Position, pos)
	})

	out := make([]core.Event, 0)
	for _, event := range s.events[start:] {
		if !toPos.Contains(event.Position) {
			break
		}
		out = append(out, event)
	}
	return out, nil
}

func (s *InMemoryStore) GetEventsByType(ctx context.Context, aggregate string, limit, offset int) ([]core.Event, error) {
	if err := core.ValidateTypeQuery(limit, offset); err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make([]core.Event, 0)
	skipped := 0
	for _, event := range s.events {
		if event.Aggregate != aggregate {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) GetEventsByID(ctx context.Context, aggregateID string, fromRev int64, toRev core.Bound) ([]core.Event, error) {
	if err := core.ValidateRange(fromRev, toRev); err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make([]core.Event, 0)
	bucket, ok := s.aggregates[aggregateID]
	if !ok {
		return out, nil
	}
	for _, idx := range bucket.byRevision() {
		event := s.events[idx]
		if event.Revision < fromRev || !toRev.Contains(event.Revision) {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (s *InMemoryStore) GetLastEvent(ctx context.Context, aggregateID string) (core.Event, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	bucket, ok := s.aggregates[aggregateID]
	if !ok || len(bucket.positions) == 0 {
		return core.Event{}, false, nil
	}
	return s.events[bucket.positions[len(bucket.positions)-1]], true, nil
}

// SaveEvents checks the whole batch before touching the log, so a conflict
// leaves nothing behind.
func (s *InMemoryStore) SaveEvents(ctx context.Context, events []core.EventToSave) error {
	if len(events) == 0 {
		return nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	seen := make(map[revisionKey]struct{}, len(events))
	for _, event := range events {
		key := revisionKey{event.AggregateID, event.Revision}
		if _, dup := seen[key]; dup {
			return core.NewUniqueConstraintError(events)
		}
		seen[key] = struct{}{}
		if bucket, ok := s.aggregates[event.AggregateID]; ok && bucket.has(event.Revision) {
			return core.NewUniqueConstraintError(events)
		}
	}

	createdAt := s.now().UTC()
	for _, event := range events {
		bucket, ok := s.aggregates[event.AggregateID]
		if !ok {
			bucket = newAggregateBucket()
			s.aggregates[event.AggregateID] = bucket
		}

		bucket.add(event.Revision, len(s.events))
		s.events = append(s.events, core.Event{
			Position:    s.nextPosition,
			AggregateID: event.AggregateID,
			Aggregate:   event.Aggregate,
			CommitID:    event.CommitID,
			Revision:    event.Revision,
			CreatedAt:   createdAt,
			Payload:     event.Payload,
		})
		s.nextPosition++
	}
	return nil
}
