package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/gehhilfe/orthrus/core"
)

const (
	eventsBucketName     = "events"
	aggregatesBucketName = "aggregates"
	typesBucketName      = "types"
	lastBucketName       = "last"
)

// BoltStore keeps one stream in a bbolt file. Positions come from the
// sequence of the events bucket, so they never have gaps.
type BoltStore struct {
	db *bbolt.DB

	closeOnce sync.Once
	closeErr  error

	now func() time.Time
}

var _ core.Adapter = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{eventsBucketName, aggregatesBucketName, typesBucketName, lastBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{
		db:  db,
		now: time.Now,
	}, nil
}

// Destroy closes the database file. The events stay on disk. Calling it again
// is a no-op.
func (s *BoltStore) Destroy(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.db.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close bolt database: %w", err)
		}
	})
	return s.closeErr
}

func (s *BoltStore) GetAllEvents(ctx context.Context, fromPos int64, toPos core.Bound) ([]core.Event, error) {
	if err := core.ValidateRange(fromPos, toPos); err != nil {
		return nil, err
	}

	out := make([]core.Event, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(eventsBucketName)).Cursor()
		for k, v := cursor.Seek(itob(fromPos)); k != nil; k, v = cursor.Next() {
			if !toPos.Contains(btoi(k)) {
				break
			}
			event, err := decodeEvent(v)
			if err != nil {
				return err
			}
			out = append(out, event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return out, nil
}

func (s *BoltStore) GetEventsByType(ctx context.Context, aggregate string, limit, offset int) ([]core.Event, error) {
	if err := core.ValidateTypeQuery(limit, offset); err != nil {
		return nil, err
	}

	out := make([]core.Event, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		typeBucket := tx.Bucket([]byte(typesBucketName)).Bucket(nameKey(aggregate))
		if typeBucket == nil {
			return nil
		}
		events := tx.Bucket([]byte(eventsBucketName))

		cursor := typeBucket.Cursor()
		skipped := 0
		for k, _ := cursor.First(); k != nil && len(out) < limit; k, _ = cursor.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			event, err := decodeEvent(events.Get(k))
			if err != nil {
				return err
			}
			out = append(out, event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events of type %s: %w", aggregate, err)
	}
	return out, nil
}

func (s *BoltStore) GetEventsByID(ctx context.Context, aggregateID string, fromRev int64, toRev core.Bound) ([]core.Event, error) {
	if err := core.ValidateRange(fromRev, toRev); err != nil {
		return nil, err
	}

	out := make([]core.Event, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		aggregateBucket := tx.Bucket([]byte(aggregatesBucketName)).Bucket(nameKey(aggregateID))
		if aggregateBucket == nil {
			return nil
		}
		events := tx.Bucket([]byte(eventsBucketName))

		cursor := aggregateBucket.Cursor()
		for k, pos := cursor.Seek(itob(fromRev)); k != nil; k, pos = cursor.Next() {
			if !toRev.Contains(btoi(k)) {
				break
			}
			event, err := decodeEvent(events.Get(pos))
			if err != nil {
				return err
			}
			out = append(out, event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events of aggregate %s: %w", aggregateID, err)
	}
	return out, nil
}

func (s *BoltStore) GetLastEvent(ctx context.Context, aggregateID string) (core.Event, bool, error) {
	var (
		event core.Event
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		pos := tx.Bucket([]byte(lastBucketName)).Get(nameKey(aggregateID))
		if pos == nil {
			return nil
		}
		var err error
		event, err = decodeEvent(tx.Bucket([]byte(eventsBucketName)).Get(pos))
		found = err == nil
		return err
	})
	if err != nil {
		return core.Event{}, false, fmt.Errorf("failed to read last event of %s: %w", aggregateID, err)
	}
	return event, found, nil
}

// SaveEvents writes the batch in one bbolt transaction. A revision that
// already exists rolls the whole transaction back.
func (s *BoltStore) SaveEvents(ctx context.Context, events []core.EventToSave) error {
	if len(events) == 0 {
		return nil
	}

	createdAt := s.now().UTC()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		eventsBucket := tx.Bucket([]byte(eventsBucketName))
		aggregates := tx.Bucket([]byte(aggregatesBucketName))
		types := tx.Bucket([]byte(typesBucketName))
		last := tx.Bucket([]byte(lastBucketName))

		for _, event := range events {
			aggregateBucket, err := aggregates.CreateBucketIfNotExists(nameKey(event.AggregateID))
			if err != nil {
				return fmt.Errorf("could not create aggregate bucket: %w", err)
			}
			revKey := itob(event.Revision)
			if aggregateBucket.Get(revKey) != nil {
				return core.NewUniqueConstraintError(events)
			}

			typeBucket, err := types.CreateBucketIfNotExists(nameKey(event.Aggregate))
			if err != nil {
				return fmt.Errorf("could not create type bucket: %w", err)
			}

			sequence, err := eventsBucket.NextSequence()
			if err != nil {
				return fmt.Errorf("could not get next position: %w", err)
			}
			position := int64(sequence)
			posKey := itob(position)

			value, err := json.Marshal(boltEvent{
				Position:    position,
				AggregateID: event.AggregateID,
				Aggregate:   event.Aggregate,
				CommitID:    event.CommitID,
				Revision:    event.Revision,
				CreatedAt:   createdAt,
				Payload:     event.Payload,
			})
			if err != nil {
				return fmt.Errorf("could not serialize event: %w", err)
			}

			if err := eventsBucket.Put(posKey, value); err != nil {
				return fmt.Errorf("could not save event: %w", err)
			}
			if err := aggregateBucket.Put(revKey, posKey); err != nil {
				return fmt.Errorf("could not save revision pointer: %w", err)
			}
			if err := typeBucket.Put(posKey, revKey); err != nil {
				return fmt.Errorf("could not save type pointer: %w", err)
			}
			if err := last.Put(nameKey(event.AggregateID), posKey); err != nil {
				return fmt.Errorf("could not save last pointer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrUniqueConstraint) {
			return err
		}
		return fmt.Errorf("failed to save events: %w", err)
	}
	return nil
}
