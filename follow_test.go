package orthrus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gehhilfe/orthrus/bus"
	"github.com/gehhilfe/orthrus/core"
	"github.com/gehhilfe/orthrus/store/memory"
)

// slowPace keeps the poll timer out of the way so only notifications wake
// the follower.
func slowPace(t *testing.T) {
	t.Helper()
	old := FollowPace
	FollowPace = time.Hour
	t.Cleanup(func() {
		FollowPace = old
	})
}

func TestFollowWakesOnLocalCommit(t *testing.T) {
	slowPace(t)
	store, _ := newSeededStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var positions []int64
	for e, err := range store.Follow(ctx, 8, 2) {
		if err != nil {
			t.Fatal(err)
		}
		positions = append(positions, e.Position)
		if e.Position == 10 {
			if err := store.SaveEvent(ctx, NewEvent{AggregateID: "order-1", Aggregate: "order", Revision: 1, Payload: "{}"}); err != nil {
				t.Fatal(err)
			}
		}
		if e.Position == 11 {
			break
		}
	}

	if ctx.Err() != nil {
		t.Fatal("follower was not woken by the commit")
	}
	want := []int64{8, 9, 10, 11}
	if len(positions) != len(want) {
		t.Fatalf("expected %v, got %v", want, positions)
	}
	for i := range want {
		if positions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, positions)
		}
	}
}

func TestFollowWakesOnBusNotification(t *testing.T) {
	slowPace(t)
	mb := bus.NewInMemoryMessageBus()
	adapter := memory.NewInMemoryStore()

	reader := New(adapter, testStream, WithMessageBus(mb))
	writer := New(adapter, testStream, WithMessageBus(mb))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = writer.SaveEvent(ctx, NewEvent{AggregateID: "order-1", Aggregate: "order", Revision: 1, Payload: "{}"})
	}()

	for e, err := range reader.Follow(ctx, 1, 10) {
		if err != nil {
			t.Fatal(err)
		}
		if e.Position != 1 || e.AggregateID != "order-1" {
			t.Fatalf("unexpected event %+v", e)
		}
		return
	}
	t.Fatal("follower ended without an event")
}

func TestFollowStopsOnCancel(t *testing.T) {
	slowPace(t)
	store, _ := newSeededStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() {
		n := 0
		for _, err := range store.Follow(ctx, 1, 3) {
			if err != nil {
				break
			}
			n++
		}
		done <- n
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case n := <-done:
		if n != 10 {
			t.Fatalf("expected all 10 seeded events, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follower did not stop after cancel")
	}
}

func TestFollowValidates(t *testing.T) {
	store, _ := newSeededStore(t)
	yields := 0
	for _, err := range store.Follow(context.Background(), 0, 10) {
		yields++
		if !errors.Is(err, core.ErrInvalidQuery) {
			t.Fatalf("expected invalid query error, got %v", err)
		}
	}
	if yields != 1 {
		t.Fatalf("expected a single error, got %d yields", yields)
	}
}

// gappedAdapter shifts every position above 3 by ten, like a log whose
// sequence burned ids on rejected batches.
type gappedAdapter struct {
	core.Adapter
}

func (a gappedAdapter) GetAllEvents(ctx context.Context, fromPos int64, toPos core.Bound) ([]core.Event, error) {
	all, err := a.Adapter.GetAllEvents(ctx, 1, core.Unbounded())
	if err != nil {
		return nil, err
	}
	out := make([]core.Event, 0)
	for _, e := range all {
		if e.Position > 3 {
			e.Position += 10
		}
		if e.Position >= fromPos && toPos.Contains(e.Position) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestFollowSkipsPositionGap(t *testing.T) {
	slowPace(t)
	inner := memory.NewInMemoryStore()
	store := New(gappedAdapter{Adapter: inner}, testStream)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 1; i <= 6; i++ {
		if err := store.SaveEvent(ctx, NewEvent{AggregateID: "order-1", Aggregate: "order", Revision: int64(i), Payload: "{}"}); err != nil {
			t.Fatal(err)
		}
	}

	var positions []int64
	for e, err := range store.Follow(ctx, 1, 2) {
		if err != nil {
			t.Fatal(err)
		}
		positions = append(positions, e.Position)
		if e.Position == 16 {
			break
		}
	}

	if ctx.Err() != nil {
		t.Fatalf("follower stalled at the gap after %v", positions)
	}
	want := []int64{1, 2, 3, 14, 15, 16}
	if len(positions) != len(want) {
		t.Fatalf("expected %v, got %v", want, positions)
	}
	for i := range want {
		if positions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, positions)
		}
	}
}
