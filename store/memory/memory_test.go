package memory

import (
	"context"
	"testing"

	"github.com/gehhilfe/orthrus/core"
	"github.com/gehhilfe/orthrus/internal/adaptertest"
)

func TestInMemoryStore(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) core.Adapter {
		return NewInMemoryStore()
	})
}

func TestDestroyResetsPositions(t *testing.T) {
	s := NewInMemoryStore()
	adaptertest.SeedAdapter(t, s)

	if err := s.Destroy(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(context.Background()); err != nil {
		t.Fatalf("expected destroy to be idempotent, got %v", err)
	}

	err := s.SaveEvents(context.Background(), []core.EventToSave{{AggregateID: "a", Aggregate: "product", CommitID: "c", Revision: 1, Payload: "{}"}})
	if err != nil {
		t.Fatal(err)
	}
	events, err := s.GetAllEvents(context.Background(), 1, core.Unbounded())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Position != 1 {
		t.Fatalf("expected a single event at position 1, got %+v", events)
	}
}
