package orthrus

import (
	"sync"

	"github.com/gehhilfe/orthrus/core"
)

// commitNotifier turns commit notifications of one stream into wake-up
// signals. Signals coalesce: a waiter that is already woken loses nothing by
// a dropped send.
type commitNotifier struct {
	stream StreamIdentity
	signal chan struct{}

	lock sync.Mutex
	subs []core.Unsubscriber
}

func newCommitNotifier(stream StreamIdentity) *commitNotifier {
	return &commitNotifier{
		stream: stream,
		signal: make(chan struct{}, 1),
	}
}

func (n *commitNotifier) notify() {
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

func (n *commitNotifier) Committed(message *MessageCommitted, metadata core.Metadata) error {
	if message.Stream == n.stream {
		n.notify()
	}
	return nil
}

func (n *commitNotifier) listen(sub core.Unsubscriber) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.subs = append(n.subs, sub)
}

func (n *commitNotifier) C() <-chan struct{} {
	return n.signal
}

func (n *commitNotifier) Close() error {
	n.lock.Lock()
	defer n.lock.Unlock()

	var first error
	for _, sub := range n.subs {
		if err := sub.Unsubscribe(); err != nil && first == nil {
			first = err
		}
	}
	n.subs = nil
	return first
}
