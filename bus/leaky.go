package bus

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/gehhilfe/orthrus/core"
)

// LeakyBus drops a share of published messages. It stands in for a lossy
// transport in tests of consumers that must not rely on delivery.
type LeakyBus struct {
	dropPercentage int // 0-100
	bus            core.MessageBus
	dropped        atomic.Int64
}

func NewLeakyBus(
	bus core.MessageBus,
	dropPercentage int,
) *LeakyBus {
	return &LeakyBus{
		bus:            bus,
		dropPercentage: min(max(dropPercentage, 0), 100),
	}
}

func (b *LeakyBus) Publish(subject string, message []byte) error {
	if rand.IntN(100) < b.dropPercentage {
		b.dropped.Add(1)
		return nil
	}
	return b.bus.Publish(subject, message)
}

func (b *LeakyBus) Subscribe(subject string, handler func(message []byte, metadata core.Metadata) error) (core.Unsubscriber, error) {
	return b.bus.Subscribe(subject, handler)
}

// Dropped returns how many messages were swallowed so far.
func (b *LeakyBus) Dropped() int64 {
	return b.dropped.Load()
}
