package bus

import (
	"testing"

	"github.com/gehhilfe/orthrus/core"
)

func TestLeakyBus_SubscribeInMemory(t *testing.T) {
	bus := NewInMemoryMessageBus()
	leakyBus := NewLeakyBus(bus, 50) // Drop 50% of the messages

	ctr := 0
	_, err := leakyBus.Subscribe("subject", func(message []byte, metadata core.Metadata) error {
		ctr++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10000; i++ {
		err := leakyBus.Publish("subject", []byte("message"))
		if err != nil {
			t.Fatal(err)
		}
	}

	allowedErrorPercentage := float64(5)
	receivedPercentage := float64(ctr) / 10000 * 100

	if receivedPercentage < 50-allowedErrorPercentage || receivedPercentage > 50+allowedErrorPercentage {
		t.Fatalf("Expected to receive 50%% of the messages, but received %f%%", receivedPercentage)
	}
	if int64(ctr)+leakyBus.Dropped() != 10000 {
		t.Fatalf("expected received and dropped to add up, got %d + %d", ctr, leakyBus.Dropped())
	}
}

func TestLeakyBus_Bounds(t *testing.T) {
	for _, tt := range []struct {
		drop int
		want int
	}{
		{-20, 100},
		{0, 100},
		{100, 0},
		{250, 0},
	} {
		bus := NewInMemoryMessageBus()
		leaky := NewLeakyBus(bus, tt.drop)
		got := 0
		leaky.Subscribe("s", func(message []byte, metadata core.Metadata) error {
			got++
			return nil
		})
		for i := 0; i < 100; i++ {
			leaky.Publish("s", nil)
		}
		if got != tt.want {
			t.Errorf("drop %d: expected %d deliveries, got %d", tt.drop, tt.want, got)
		}
	}
}
