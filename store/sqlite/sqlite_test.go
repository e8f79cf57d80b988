package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gehhilfe/orthrus/core"
	"github.com/gehhilfe/orthrus/internal/adaptertest"
)

func TestSQLiteStore(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) core.Adapter {
		s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "events.db"), "test-stream-1-0-0")
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestSQLiteInMemory(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) core.Adapter {
		s, err := NewStore(context.Background(), ":memory:", "memory-stream-1-0-0")
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestReopenKeepsPositions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := NewStore(ctx, path, "reopen-1-0-0")
	if err != nil {
		t.Fatal(err)
	}
	adaptertest.SeedAdapter(t, s)
	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(ctx, path, "reopen-1-0-0")
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Destroy(ctx)

	err = reopened.SaveEvents(ctx, []core.EventToSave{
		{AggregateID: adaptertest.ProductA, Aggregate: "product", CommitID: "again", Revision: 4, Payload: "{}"},
	})
	if !errors.Is(err, core.ErrUniqueConstraint) {
		t.Fatalf("expected a conflict after reopening, got %v", err)
	}

	events, err := reopened.GetAllEvents(ctx, 10, core.Unbounded())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Position != 10 {
		t.Fatalf("expected position 10 to be the tail, got %+v", events)
	}
}

func TestDropRemovesTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := NewStore(ctx, path, "drop-1-0-0")
	if err != nil {
		t.Fatal(err)
	}
	adaptertest.SeedAdapter(t, s)
	if err := s.Drop(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAllEvents(ctx, 1, core.Unbounded()); err == nil {
		t.Fatal("expected reads to fail once the table is gone")
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}

	recreated, err := NewStore(ctx, path, "drop-1-0-0")
	if err != nil {
		t.Fatal(err)
	}
	defer recreated.Destroy(ctx)
	events, err := recreated.GetAllEvents(ctx, 1, core.Unbounded())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected an empty log, got %d events", len(events))
	}
}
