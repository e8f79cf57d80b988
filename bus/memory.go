package bus

import (
	"errors"
	"sync"

	"github.com/gehhilfe/orthrus/core"
)

type handler func(message []byte, metadata core.Metadata) error

// InMemoryMessageBus delivers synchronously to every subscriber of a subject,
// inside Publish.
type InMemoryMessageBus struct {
	lock          sync.RWMutex
	nextID        uint64
	subscriptions map[string]map[uint64]handler
}

func NewInMemoryMessageBus() *InMemoryMessageBus {
	return &InMemoryMessageBus{
		subscriptions: make(map[string]map[uint64]handler),
	}
}

func (b *InMemoryMessageBus) Publish(subject string, message []byte) error {
	b.lock.RLock()
	handlers := make([]handler, 0, len(b.subscriptions[subject]))
	for _, h := range b.subscriptions[subject] {
		handlers = append(handlers, h)
	}
	b.lock.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(message, core.Metadata{"subject": subject}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryMessageBus) Subscribe(subject string, h func(message []byte, metadata core.Metadata) error) (core.Unsubscriber, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.nextID++
	id := b.nextID
	if b.subscriptions[subject] == nil {
		b.subscriptions[subject] = make(map[uint64]handler)
	}
	b.subscriptions[subject][id] = h

	return core.UnsubscribeFunc(func() error {
		b.lock.Lock()
		defer b.lock.Unlock()

		if _, ok := b.subscriptions[subject][id]; !ok {
			return errors.New("subscription not found")
		}
		delete(b.subscriptions[subject], id)
		return nil
	}), nil
}
