package orthrus

import (
	"context"
	"sync"
	"testing"

	"github.com/gehhilfe/orthrus/core"
	"github.com/gehhilfe/orthrus/internal/adaptertest"
	"github.com/gehhilfe/orthrus/store/memory"
)

var testStream = StreamIdentity{Name: "orders", Version: "1-0-0"}

// recordingAdapter counts calls and can fail the next saves.
type recordingAdapter struct {
	core.Adapter

	lock     sync.Mutex
	saves    int
	destroys int
	saveErrs []error
}

func (a *recordingAdapter) SaveEvents(ctx context.Context, events []core.EventToSave) error {
	a.lock.Lock()
	a.saves++
	var err error
	if len(a.saveErrs) > 0 {
		err, a.saveErrs = a.saveErrs[0], a.saveErrs[1:]
	}
	a.lock.Unlock()

	if err != nil {
		return err
	}
	return a.Adapter.SaveEvents(ctx, events)
}

func (a *recordingAdapter) Destroy(ctx context.Context) error {
	a.lock.Lock()
	a.destroys++
	a.lock.Unlock()
	return a.Adapter.Destroy(ctx)
}

func newSeededStore(t *testing.T, opts ...Option) (*Store, *recordingAdapter) {
	t.Helper()
	adapter := &recordingAdapter{Adapter: memory.NewInMemoryStore()}
	adaptertest.SeedAdapter(t, adapter.Adapter)
	return New(adapter, testStream, opts...), adapter
}
