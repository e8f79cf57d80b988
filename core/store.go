package core

import "context"

// Adapter is the contract every storage backend implements. Backends own the
// durable state; callers only see it through these operations.
//
// Range reads return rows in ascending order of the range key (position or
// revision). Arguments are validated before any I/O and rejected with an
// *InvalidQueryError.
type Adapter interface {
	// Destroy releases the backing connection or pool. Persisted events are
	// kept.
	Destroy(ctx context.Context) error

	// GetAllEvents returns the events with fromPos <= position <= toPos.
	GetAllEvents(ctx context.Context, fromPos int64, toPos Bound) ([]Event, error)

	// GetEventsByType returns at most limit events of the aggregate type,
	// ordered by position and skipping the first offset matches.
	GetEventsByType(ctx context.Context, aggregate string, limit, offset int) ([]Event, error)

	// GetEventsByID returns the events of one aggregate with
	// fromRev <= revision <= toRev.
	GetEventsByID(ctx context.Context, aggregateID string, fromRev int64, toRev Bound) ([]Event, error)

	// GetLastEvent returns the highest-position event of the aggregate.
	// found is false when the aggregate has no events; that is not an error.
	GetLastEvent(ctx context.Context, aggregateID string) (event Event, found bool, err error)

	// SaveEvents persists the batch atomically. A duplicate (aggregate id,
	// revision) pair fails the whole batch with an *UniqueConstraintError.
	SaveEvents(ctx context.Context, events []EventToSave) error
}
