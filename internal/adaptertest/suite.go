// Package adaptertest is the conformance suite every core.Adapter runs.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/gehhilfe/orthrus/core"
)

// Factory returns a new, empty adapter. The suite destroys it when the test
// ends, after the cleanups the factory registered on t.
type Factory func(t *testing.T) core.Adapter

const (
	ProductA = "49b1ddf5-f234-4e31-9342-75713e6b43c2"
	ProductB = "cd452c3b-7d6f-49f5-b9cb-1a906d21f7e3"
	UserA    = "0080fedc-f59d-4480-a1bc-73daf4709307"
	UserB    = "dfe2bbcc-506f-49d6-a450-0836a9aa5506"
)

// Seed is the fixture log: ten events, seven of aggregate "product", committed
// in this order so positions run from 1 to 10. Events five and six share a commit.
var Seed = [][]core.EventToSave{
	{{AggregateID: ProductA, Aggregate: "product", CommitID: "2777b538-65b0-4245-883a-8ac333cae229", Revision: 1, Payload: "{}"}},
	{{AggregateID: ProductB, Aggregate: "product", CommitID: "b2000e9f-ae72-4d60-b5b9-44de987fe82c", Revision: 1, Payload: "{}"}},
	{{AggregateID: ProductA, Aggregate: "product", CommitID: "a12602de-5857-4ef6-81da-d69d4c5d52ec", Revision: 2, Payload: "{}"}},
	{{AggregateID: UserA, Aggregate: "user", CommitID: "ce78315f-30e9-4796-a1b3-1df4451c479b", Revision: 1, Payload: "{}"}},
	{
		{AggregateID: ProductA, Aggregate: "product", CommitID: "2450014f-3acd-4290-9e2e-1dc0a4373a84", Revision: 3, Payload: "{}"},
		{AggregateID: ProductA, Aggregate: "product", CommitID: "2450014f-3acd-4290-9e2e-1dc0a4373a84", Revision: 4, Payload: "{}"},
	},
	{{AggregateID: ProductB, Aggregate: "product", CommitID: "505d2812-fa9d-4af8-8b88-fb35f7e4cea4", Revision: 2, Payload: "{}"}},
	{{AggregateID: UserA, Aggregate: "user", CommitID: "db6fe2ff-1023-4453-9b00-35b83f563c7a", Revision: 2, Payload: "{}"}},
	{{AggregateID: UserB, Aggregate: "user", CommitID: "324c360e-2367-450d-aab3-dabb9ff4b4da", Revision: 1, Payload: "{}"}},
	{{AggregateID: ProductB, Aggregate: "product", CommitID: "8e2551b1-5423-4a35-a34a-59efbc9197fe", Revision: 3, Payload: "{}"}},
}

// SeedAdapter writes Seed into a.
func SeedAdapter(t testing.TB, a core.Adapter) {
	t.Helper()
	for _, commit := range Seed {
		if err := a.SaveEvents(context.Background(), commit); err != nil {
			t.Fatalf("failed to seed events: %v", err)
		}
	}
}

// Run executes the conformance suite against fresh adapters from newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	fresh := func(t *testing.T) core.Adapter {
		t.Helper()
		var a core.Adapter
		t.Cleanup(func() {
			if a != nil {
				_ = a.Destroy(context.Background())
			}
		})
		a = newAdapter(t)
		return a
	}
	seeded := func(t *testing.T) core.Adapter {
		t.Helper()
		a := fresh(t)
		SeedAdapter(t, a)
		return a
	}

	t.Run("GetAllEvents", func(t *testing.T) {
		a := seeded(t)
		ctx := context.Background()

		for _, tt := range []struct {
			from int64
			to   core.Bound
			want []int64
		}{
			{1, core.Unbounded(), []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
			{1, core.UpTo(3), []int64{1, 2, 3}},
			{4, core.UpTo(4), []int64{4}},
			{8, core.UpTo(40), []int64{8, 9, 10}},
			{11, core.Unbounded(), nil},
		} {
			events, err := a.GetAllEvents(ctx, tt.from, tt.to)
			if err != nil {
				t.Fatalf("[%d,%s]: %v", tt.from, tt.to, err)
			}
			if got := positions(events); !slices.Equal(got, tt.want) {
				t.Fatalf("[%d,%s]: expected positions %v, got %v", tt.from, tt.to, tt.want, got)
			}
		}

		events, err := a.GetAllEvents(ctx, 5, core.UpTo(6))
		if err != nil {
			t.Fatal(err)
		}
		for i, e := range events {
			want := Seed[4][i]
			if !sameEvent(e, want) {
				t.Errorf("expected %+v, got %+v", want, e)
			}
			if e.CreatedAt.IsZero() {
				t.Errorf("expected createdAt to be assigned")
			}
		}

		expectInvalid(t, "from 0", func() error {
			_, err := a.GetAllEvents(ctx, 0, core.UpTo(2))
			return err
		})
		expectInvalid(t, "from > to", func() error {
			_, err := a.GetAllEvents(ctx, 2, core.UpTo(1))
			return err
		})
	})

	t.Run("GetEventsByID", func(t *testing.T) {
		a := seeded(t)
		ctx := context.Background()

		events, err := a.GetEventsByID(ctx, ProductA, 1, core.Unbounded())
		if err != nil {
			t.Fatal(err)
		}
		if got := revisions(events); !slices.Equal(got, []int64{1, 2, 3, 4}) {
			t.Fatalf("expected revisions 1..4, got %v", got)
		}
		if got := positions(events); !slices.Equal(got, []int64{1, 3, 5, 6}) {
			t.Fatalf("expected positions [1 3 5 6], got %v", got)
		}

		events, err = a.GetEventsByID(ctx, ProductB, 2, core.UpTo(3))
		if err != nil {
			t.Fatal(err)
		}
		if got := revisions(events); !slices.Equal(got, []int64{2, 3}) {
			t.Fatalf("expected revisions [2 3], got %v", got)
		}

		events, err = a.GetEventsByID(ctx, "unknown", 1, core.Unbounded())
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 0 {
			t.Fatalf("expected no events, got %d", len(events))
		}

		expectInvalid(t, "from 0", func() error {
			_, err := a.GetEventsByID(ctx, ProductA, 0, core.Unbounded())
			return err
		})
		expectInvalid(t, "from > to", func() error {
			_, err := a.GetEventsByID(ctx, ProductA, 3, core.UpTo(2))
			return err
		})
	})

	t.Run("GetEventsByType", func(t *testing.T) {
		a := seeded(t)
		ctx := context.Background()

		for _, tt := range []struct {
			aggregate     string
			limit, offset int
			want          []int64
		}{
			{"product", 100, 0, []int64{1, 2, 3, 5, 6, 7, 10}},
			{"product", 3, 0, []int64{1, 2, 3}},
			{"product", 3, 2, []int64{3, 5, 6}},
			{"product", 3, 6, []int64{10}},
			{"product", 3, 7, nil},
			{"user", 2, 1, []int64{8, 9}},
			{"order", 10, 0, nil},
		} {
			events, err := a.GetEventsByType(ctx, tt.aggregate, tt.limit, tt.offset)
			if err != nil {
				t.Fatal(err)
			}
			if got := positions(events); !slices.Equal(got, tt.want) {
				t.Fatalf("%s limit=%d offset=%d: expected %v, got %v", tt.aggregate, tt.limit, tt.offset, tt.want, got)
			}
		}

		expectInvalid(t, "limit 0", func() error {
			_, err := a.GetEventsByType(ctx, "product", 0, 0)
			return err
		})
		expectInvalid(t, "negative offset", func() error {
			_, err := a.GetEventsByType(ctx, "product", 1, -1)
			return err
		})
	})

	t.Run("GetLastEvent", func(t *testing.T) {
		a := seeded(t)
		ctx := context.Background()

		last, found, err := a.GetLastEvent(ctx, ProductA)
		if err != nil {
			t.Fatal(err)
		}
		if !found || last.Position != 6 || last.Revision != 4 {
			t.Fatalf("expected position 6 revision 4, got found=%v %+v", found, last)
		}

		_, found, err = a.GetLastEvent(ctx, "no-such-aggregate")
		if err != nil {
			t.Fatalf("expected no error for unknown aggregate, got %v", err)
		}
		if found {
			t.Fatal("expected no event for unknown aggregate")
		}
	})

	t.Run("SaveEvents", func(t *testing.T) {
		a := seeded(t)
		ctx := context.Background()

		payload := "{\"name\":\"Grüße\",\"tags\":[\"a\",\"b\"],\"note\":\"tab\\tquote\\\"\"}"
		batch := []core.EventToSave{
			{AggregateID: "order-1", Aggregate: "order", CommitID: "commit-a", Revision: 1, Payload: payload},
			{AggregateID: "order-1", Aggregate: "order", CommitID: "commit-a", Revision: 2, Payload: ""},
		}
		if err := a.SaveEvents(ctx, batch); err != nil {
			t.Fatal(err)
		}

		events, err := a.GetAllEvents(ctx, 11, core.Unbounded())
		if err != nil {
			t.Fatal(err)
		}
		if got := positions(events); !slices.Equal(got, []int64{11, 12}) {
			t.Fatalf("expected positions [11 12], got %v", got)
		}
		for i, e := range events {
			if !sameEvent(e, batch[i]) {
				t.Errorf("expected %+v, got %+v", batch[i], e)
			}
		}

		if err := a.SaveEvents(ctx, nil); err != nil {
			t.Fatalf("expected empty batch to be a no-op, got %v", err)
		}
	})

	t.Run("SaveEventsConflict", func(t *testing.T) {
		a := seeded(t)
		ctx := context.Background()

		before, err := a.GetAllEvents(ctx, 1, core.Unbounded())
		if err != nil {
			t.Fatal(err)
		}

		for _, batch := range [][]core.EventToSave{
			{
				{AggregateID: ProductA, Aggregate: "product", CommitID: "late", Revision: 5, Payload: "{}"},
				{AggregateID: ProductA, Aggregate: "product", CommitID: "late", Revision: 4, Payload: "{}"},
			},
			{
				{AggregateID: "fresh", Aggregate: "product", CommitID: "dup", Revision: 1, Payload: "{}"},
				{AggregateID: "fresh", Aggregate: "product", CommitID: "dup", Revision: 1, Payload: "{}"},
			},
		} {
			err := a.SaveEvents(ctx, batch)
			if !errors.Is(err, core.ErrUniqueConstraint) {
				t.Fatalf("expected unique constraint error, got %v", err)
			}
			var uce *core.UniqueConstraintError
			if !errors.As(err, &uce) {
				t.Fatalf("expected *core.UniqueConstraintError, got %T", err)
			}
			if !slices.Equal(uce.Events, batch) {
				t.Fatalf("expected the error to reference the batch, got %+v", uce.Events)
			}

			after, err := a.GetAllEvents(ctx, 1, core.Unbounded())
			if err != nil {
				t.Fatal(err)
			}
			if !sameLog(before, after) {
				t.Fatalf("expected log to be unchanged, before %v after %v", positions(before), positions(after))
			}
		}

		last, _, err := a.GetLastEvent(ctx, ProductA)
		if err != nil {
			t.Fatal(err)
		}
		if last.Revision != 4 {
			t.Fatalf("expected revision 4 to stay the last one, got %d", last.Revision)
		}
	})

	t.Run("ConcurrentWritersOneWins", func(t *testing.T) {
		a := fresh(t)
		ctx := context.Background()

		const writers = 4
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = a.SaveEvents(ctx, []core.EventToSave{{
					AggregateID: "raced",
					Aggregate:   "counter",
					CommitID:    fmt.Sprintf("writer-%d", i),
					Revision:    1,
					Payload:     "{}",
				}})
			}()
		}
		wg.Wait()

		var accepted int
		for _, err := range errs {
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, core.ErrUniqueConstraint):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if accepted != 1 {
			t.Fatalf("expected exactly one accepted commit, got %d", accepted)
		}

		events, err := a.GetEventsByID(ctx, "raced", 1, core.Unbounded())
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 {
			t.Fatalf("expected one persisted event, got %d", len(events))
		}
	})

	t.Run("EmptyNames", func(t *testing.T) {
		a := fresh(t)
		ctx := context.Background()

		batch := []core.EventToSave{{AggregateID: "", Aggregate: "", CommitID: "commit-e", Revision: 1, Payload: "{}"}}
		if err := a.SaveEvents(ctx, batch); err != nil {
			t.Fatalf("expected empty aggregate id and type to be stored, got %v", err)
		}
		if err := a.SaveEvents(ctx, batch); !errors.Is(err, core.ErrUniqueConstraint) {
			t.Fatalf("expected unique constraint error, got %v", err)
		}

		byID, err := a.GetEventsByID(ctx, "", 1, core.Unbounded())
		if err != nil {
			t.Fatal(err)
		}
		if len(byID) != 1 || !sameEvent(byID[0], batch[0]) {
			t.Fatalf("expected the stored event by id, got %+v", byID)
		}

		byType, err := a.GetEventsByType(ctx, "", 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(byType) != 1 || !sameEvent(byType[0], batch[0]) {
			t.Fatalf("expected the stored event by type, got %+v", byType)
		}

		last, found, err := a.GetLastEvent(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if !found || last.Revision != 1 {
			t.Fatalf("expected last event at revision 1, got %+v (found=%v)", last, found)
		}
	})
}

func expectInvalid(t *testing.T, name string, call func() error) {
	t.Helper()
	if err := call(); !errors.Is(err, core.ErrInvalidQuery) {
		t.Errorf("%s: expected invalid query error, got %v", name, err)
	}
}

func positions(events []core.Event) []int64 {
	var out []int64
	for _, e := range events {
		out = append(out, e.Position)
	}
	return out
}

func revisions(events []core.Event) []int64 {
	var out []int64
	for _, e := range events {
		out = append(out, e.Revision)
	}
	return out
}

func sameEvent(e core.Event, want core.EventToSave) bool {
	return e.AggregateID == want.AggregateID &&
		e.Aggregate == want.Aggregate &&
		e.CommitID == want.CommitID &&
		e.Revision == want.Revision &&
		e.Payload == want.Payload
}

func sameLog(a, b []core.Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Position != b[i].Position || a[i].AggregateID != b[i].AggregateID ||
			a[i].Revision != b[i].Revision || a[i].Payload != b[i].Payload || a[i].CommitID != b[i].CommitID {
			return false
		}
	}
	return true
}
