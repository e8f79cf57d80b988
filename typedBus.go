package orthrus

import (
	"encoding/json"
	"fmt"

	"github.com/gehhilfe/orthrus/core"
)

type typedMessageBus struct {
	bus core.MessageBus
}

type Typer interface {
	Type() string
}

func NewTypedMessageBus(
	bus core.MessageBus,
) *typedMessageBus {
	return &typedMessageBus{
		bus: bus,
	}
}

func (b *typedMessageBus) Publish(message Typer) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", message.Type(), err)
	}
	return b.bus.Publish(message.Type(), data)
}

type typedMessageHandler struct {
	Committed func(message *MessageCommitted, metadata core.Metadata) error
}

func (b *typedMessageBus) Subscribe(
	handler typedMessageHandler,
) (core.Unsubscriber, error) {
	return b.bus.Subscribe((&MessageCommitted{}).Type(), func(message []byte, metadata core.Metadata) error {
		var msg MessageCommitted
		if err := json.Unmarshal(message, &msg); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type(), err)
		}
		return handler.Committed(&msg, metadata)
	})
}

// SubscribeCommits decodes commit notifications published on bus by any store.
func SubscribeCommits(bus core.MessageBus, handler func(message *MessageCommitted, metadata core.Metadata) error) (core.Unsubscriber, error) {
	return NewTypedMessageBus(bus).Subscribe(typedMessageHandler{
		Committed: handler,
	})
}
