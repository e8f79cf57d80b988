// Package sqlstore implements core.Adapter on top of database/sql. The MySQL,
// PostgreSQL and SQLite backends only differ in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/gehhilfe/orthrus/core"
)

// Dialect carries what differs between SQL engines.
type Dialect struct {
	Flavor sqlbuilder.Flavor
	// Schema returns the statements creating the table and its indexes. They
	// must be safe to run against an existing table.
	Schema func(table, quoted string) []string
	// IsUniqueViolation reports whether err is the engine's duplicate key error.
	IsUniqueViolation func(err error) bool
}

var columns = []string{"position", "aggregate_id", "aggregate", "commit_id", "revision", "created_at", "payload"}

type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string

	destroyOnce sync.Once
	destroyErr  error

	now func() time.Time
}

var _ core.Adapter = (*Store)(nil)

// New creates the table for the stream if needed. The store owns db and
// closes it on Destroy.
func New(ctx context.Context, db *sql.DB, table string, dialect Dialect) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		table:   dialect.Flavor.Quote(table),
		now:     time.Now,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range dialect.Schema(table, s.table) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema for %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Destroy closes the pool. The table is left in place. Calling it again is a
// no-op.
func (s *Store) Destroy(ctx context.Context) error {
	s.destroyOnce.Do(func() {
		if err := s.db.Close(); err != nil {
			s.destroyErr = fmt.Errorf("failed to close database: %w", err)
		}
	})
	return s.destroyErr
}

// Drop removes the table and every event in it. The store stays open.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.table); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) GetAllEvents(ctx context.Context, fromPos int64, toPos core.Bound) ([]core.Event, error) {
	if err := core.ValidateRange(fromPos, toPos); err != nil {
		return nil, err
	}

	sb := s.selectEvents()
	sb.Where(sb.GreaterEqualThan("position", fromPos))
	if to, ok := toPos.Value(); ok {
		sb.Where(sb.LessEqualThan("position", to))
	}
	sb.OrderBy("position").Asc()

	return s.query(ctx, sb)
}

func (s *Store) GetEventsByType(ctx context.Context, aggregate string, limit, offset int) ([]core.Event, error) {
	if err := core.ValidateTypeQuery(limit, offset); err != nil {
		return nil, err
	}

	sb := s.selectEvents()
	sb.Where(sb.Equal("aggregate", aggregate))
	sb.OrderBy("position").Asc()
	sb.Limit(limit).Offset(offset)

	return s.query(ctx, sb)
}

func (s *Store) GetEventsByID(ctx context.Context, aggregateID string, fromRev int64, toRev core.Bound) ([]core.Event, error) {
	if err := core.ValidateRange(fromRev, toRev); err != nil {
		return nil, err
	}

	sb := s.selectEvents()
	sb.Where(
		sb.Equal("aggregate_id", aggregateID),
		sb.GreaterEqualThan("revision", fromRev),
	)
	if to, ok := toRev.Value(); ok {
		sb.Where(sb.LessEqualThan("revision", to))
	}
	sb.OrderBy("revision").Asc()

	return s.query(ctx, sb)
}

func (s *Store) GetLastEvent(ctx context.Context, aggregateID string) (core.Event, bool, error) {
	sb := s.selectEvents()
	sb.Where(sb.Equal("aggregate_id", aggregateID))
	sb.OrderBy("position").Desc()
	sb.Limit(1)

	events, err := s.query(ctx, sb)
	if err != nil {
		return core.Event{}, false, err
	}
	if len(events) == 0 {
		return core.Event{}, false, nil
	}
	return events[0], true, nil
}

// SaveEvents inserts the batch with one statement inside a transaction. A
// duplicate (aggregate_id, revision) aborts the whole batch.
func (s *Store) SaveEvents(ctx context.Context, events []core.EventToSave) error {
	if len(events) == 0 {
		return nil
	}

	createdAt := s.now().UTC()
	ib := s.dialect.Flavor.NewInsertBuilder()
	ib.InsertInto(s.table)
	ib.Cols("aggregate_id", "aggregate", "commit_id", "revision", "created_at", "payload")
	for _, e := range events {
		ib.Values(e.AggregateID, e.Aggregate, e.CommitID, e.Revision, createdAt, e.Payload)
	}
	query, args := ib.Build()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return core.NewUniqueConstraintError(events)
		}
		return fmt.Errorf("failed to insert events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return core.NewUniqueConstraintError(events)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) selectEvents() *sqlbuilder.SelectBuilder {
	sb := s.dialect.Flavor.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(s.table)
	return sb
}

func (s *Store) query(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]core.Event, error) {
	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := make([]core.Event, 0)
	for rows.Next() {
		var (
			e         core.Event
			createdAt timestamp
		)
		err := rows.Scan(&e.Position, &e.AggregateID, &e.Aggregate, &e.CommitID, &e.Revision, &createdAt, &e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.CreatedAt = createdAt.Time
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return out, nil
}

// MatchError reports whether err wraps a T accepted by match.
func MatchError[T error](err error, match func(T) bool) bool {
	var target T
	return errors.As(err, &target) && match(target)
}
