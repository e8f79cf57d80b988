package bus

import (
	"errors"
	"testing"

	"github.com/gehhilfe/orthrus/core"
)

func TestInMemoryMessageBus_Publish(t *testing.T) {
	bus := NewInMemoryMessageBus()

	received := 0
	_, err := bus.Subscribe("test", func(message []byte, metadata core.Metadata) error {
		if string(message) != "test message" {
			t.Errorf("expected 'test message', got %v", message)
		}
		if metadata["subject"] != "test" {
			t.Errorf("expected subject metadata, got %v", metadata)
		}
		received++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := bus.Publish("test", []byte("test message")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := bus.Publish("other", []byte("ignored")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if received != 1 {
		t.Errorf("expected 1 message, got %d", received)
	}
}

func TestInMemoryMessageBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryMessageBus()

	received := 0
	sub, err := bus.Subscribe("test", func(message []byte, metadata core.Metadata) error {
		received++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	bus.Publish("test", []byte("one"))
	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	bus.Publish("test", []byte("two"))

	if received != 1 {
		t.Errorf("expected 1 message before unsubscribing, got %d", received)
	}
	if err := sub.Unsubscribe(); err == nil {
		t.Error("expected second unsubscribe to fail")
	}
}

func TestInMemoryMessageBus_HandlerErrors(t *testing.T) {
	bus := NewInMemoryMessageBus()
	boom := errors.New("boom")

	delivered := 0
	bus.Subscribe("test", func(message []byte, metadata core.Metadata) error {
		return boom
	})
	bus.Subscribe("test", func(message []byte, metadata core.Metadata) error {
		delivered++
		return nil
	})

	if err := bus.Publish("test", []byte("x")); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if delivered != 1 {
		t.Errorf("expected the other handler to still run, got %d deliveries", delivered)
	}
}
