package core

type Metadata map[string]string

type UnsubscribeFunc func() error

func (u UnsubscribeFunc) Unsubscribe() error {
	return u()
}

type Unsubscriber interface {
	Unsubscribe() error
}

// MessageBus carries commit notifications between processes. Delivery is best
// effort; nothing in the store depends on a message arriving.
type MessageBus interface {
	Publish(subject string, message []byte) error
	Subscribe(subject string, handler func(message []byte, metadata Metadata) error) (Unsubscriber, error)
}
