// Package orthrus is an append-only event store. A Store serves one stream
// on top of a pluggable core.Adapter and hands out cursors and per-aggregate
// event streams with optimistic concurrency.
package orthrus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"

	"github.com/gehhilfe/orthrus/bus"
	"github.com/gehhilfe/orthrus/core"
)

const DefaultPageSize = 100

type Store struct {
	adapter core.Adapter
	stream  StreamIdentity

	logger *slog.Logger
	bus    *typedMessageBus

	newCommitID func() string

	lock        sync.Mutex
	nextCbID    uint64
	onCommitCbs map[uint64]func(commitID string, events []core.EventToSave)

	destroyOnce sync.Once
	destroyErr  error
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMessageBus publishes a MessageCommitted on mb after every successful
// commit. Delivery is best effort.
func WithMessageBus(mb core.MessageBus) Option {
	return func(s *Store) {
		s.bus = NewTypedMessageBus(mb)
	}
}

func New(
	adapter core.Adapter,
	stream StreamIdentity,
	opts ...Option,
) *Store {
	s := &Store{
		adapter:     adapter,
		stream:      stream,
		logger:      slog.Default(),
		newCommitID: uuid.NewString,
		onCommitCbs: make(map[uint64]func(string, []core.EventToSave)),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(slog.String("stream", stream.String()))
	if s.bus != nil {
		s.bus = NewTypedMessageBus(bus.NewBusLogger(s.bus.bus, s.logger))
	}
	return s
}

func (s *Store) Stream() StreamIdentity {
	return s.stream
}

func (s *Store) Adapter() core.Adapter {
	return s.adapter
}

// loggerFrom prefers a logger the caller put into ctx with slogctx.
func (s *Store) loggerFrom(ctx context.Context) *slog.Logger {
	if logger := slogctx.FromCtx(ctx); logger != slog.Default() {
		return logger.With(slog.String("stream", s.stream.String()))
	}
	return s.logger
}

func (s *Store) decorate(e core.Event) Event {
	return Event{
		Event:         e,
		StreamName:    s.stream.Name,
		StreamVersion: s.stream.Version,
	}
}

func (s *Store) decorateAll(events []core.Event) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = s.decorate(e)
	}
	return out
}

// GetAllEvents pages through the whole log by position.
func (s *Store) GetAllEvents(fromPos int64, toPos core.Bound, pageSize int) (*core.RangeCursor[Event], error) {
	return core.NewRangeCursor(fromPos, toPos, pageSize, func(ctx context.Context, from, to int64) ([]Event, error) {
		s.loggerFrom(ctx).Debug("reading events", slog.Int64("from", from), slog.Int64("to", to))
		events, err := s.adapter.GetAllEvents(ctx, from, core.UpTo(to))
		if err != nil {
			return nil, err
		}
		return s.decorateAll(events), nil
	})
}

// GetEventsByID pages through the events of one aggregate by revision.
func (s *Store) GetEventsByID(aggregateID string, pageSize int, fromRev int64, toRev core.Bound) (*core.RangeCursor[Event], error) {
	return core.NewRangeCursor(fromRev, toRev, pageSize, func(ctx context.Context, from, to int64) ([]Event, error) {
		s.loggerFrom(ctx).Debug("reading aggregate events", slog.String("aggregateId", aggregateID), slog.Int64("from", from), slog.Int64("to", to))
		events, err := s.adapter.GetEventsByID(ctx, aggregateID, from, core.UpTo(to))
		if err != nil {
			return nil, err
		}
		return s.decorateAll(events), nil
	})
}

// GetEventsByType pages through the events of one aggregate type by
// limit/offset. Unlike the range cursors, a page may repeat or skip events
// when the type is written to between two pulls.
func (s *Store) GetEventsByType(aggregate string, pageSize int) (*core.OffsetCursor[Event], error) {
	return core.NewOffsetCursor(pageSize, func(ctx context.Context, limit, offset int) ([]Event, error) {
		s.loggerFrom(ctx).Debug("reading events by type", slog.String("aggregate", aggregate), slog.Int("limit", limit), slog.Int("offset", offset))
		events, err := s.adapter.GetEventsByType(ctx, aggregate, limit, offset)
		if err != nil {
			return nil, err
		}
		return s.decorateAll(events), nil
	})
}

func (s *Store) GetLastEvent(ctx context.Context, aggregateID string) (Event, bool, error) {
	e, found, err := s.adapter.GetLastEvent(ctx, aggregateID)
	if err != nil || !found {
		return Event{}, false, err
	}
	return s.decorate(e), true, nil
}

func (s *Store) SaveEvent(ctx context.Context, event NewEvent) error {
	return s.SaveEvents(ctx, []NewEvent{event})
}

// SaveEvents persists events atomically under one fresh commit id. A revision
// that is already taken fails the whole batch with a *core.UniqueConstraintError.
func (s *Store) SaveEvents(ctx context.Context, events []NewEvent) error {
	if len(events) == 0 {
		return nil
	}

	commitID := s.newCommitID()
	toSave := make([]core.EventToSave, len(events))
	for i, e := range events {
		toSave[i] = core.EventToSave{
			AggregateID: e.AggregateID,
			Aggregate:   e.Aggregate,
			CommitID:    commitID,
			Revision:    e.Revision,
			Payload:     e.Payload,
		}
	}

	logger := s.loggerFrom(ctx).With(slog.String("commitId", commitID))
	if err := s.adapter.SaveEvents(ctx, toSave); err != nil {
		if errors.Is(err, core.ErrUniqueConstraint) {
			logger.Warn("commit rejected", slog.Int("events", len(toSave)), slog.Any("error", err))
		}
		return err
	}
	logger.Info("events committed", slog.Int("events", len(toSave)))

	s.committed(logger, commitID, toSave)
	return nil
}

func (s *Store) committed(logger *slog.Logger, commitID string, events []core.EventToSave) {
	s.lock.Lock()
	cbs := make([]func(string, []core.EventToSave), 0, len(s.onCommitCbs))
	for _, cb := range s.onCommitCbs {
		cbs = append(cbs, cb)
	}
	s.lock.Unlock()

	for _, cb := range cbs {
		cb(commitID, events)
	}

	if s.bus == nil {
		return
	}
	err := s.bus.Publish(&MessageCommitted{
		Stream:   s.stream,
		CommitID: commitID,
		Events:   events,
	})
	if err != nil {
		logger.Warn("failed to publish commit", slog.Any("error", err))
	}
}

// OnCommit registers cb to run after every successful commit of this store.
func (s *Store) OnCommit(cb func(commitID string, events []core.EventToSave)) core.Unsubscriber {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.nextCbID++
	id := s.nextCbID
	s.onCommitCbs[id] = cb
	return core.UnsubscribeFunc(func() error {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.onCommitCbs, id)
		return nil
	})
}

// GetEventStream hydrates a stream for one aggregate. The range arguments
// only shape what EventStream.Events returns.
func (s *Store) GetEventStream(ctx context.Context, aggregateID, aggregate string, pageSize int, fromRev int64, toRev core.Bound) (*EventStream, error) {
	if err := core.ValidateRange(fromRev, toRev); err != nil {
		return nil, err
	}
	if err := core.ValidatePageSize(pageSize); err != nil {
		return nil, err
	}

	stream := &EventStream{
		store:       s,
		aggregateID: aggregateID,
		aggregate:   aggregate,
		pageSize:    pageSize,
		fromRev:     fromRev,
		toRev:       toRev,
	}
	if err := stream.Hydrate(ctx); err != nil {
		return nil, err
	}
	return stream, nil
}

// Destroy releases the adapter. Only the first call reaches it.
func (s *Store) Destroy(ctx context.Context) error {
	s.destroyOnce.Do(func() {
		if err := s.adapter.Destroy(ctx); err != nil {
			s.destroyErr = fmt.Errorf("failed to destroy store: %w", err)
			return
		}
		s.logger.Info("store destroyed")
	})
	return s.destroyErr
}
