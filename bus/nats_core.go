package bus

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/gehhilfe/orthrus/core"
)

// CoreNatsMessageBus publishes on plain NATS subjects, without JetStream
// persistence. Handlers run on the connection's delivery goroutine.
type CoreNatsMessageBus struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        *slog.Logger
}

func NewCoreNatsMessageBus(
	nc *nats.Conn,
	subjectPrefix string,
) *CoreNatsMessageBus {
	return &CoreNatsMessageBus{
		nc:            nc,
		subjectPrefix: subjectPrefix,
		logger:        slog.Default(),
	}
}

func (b *CoreNatsMessageBus) sub(subject string) string {
	if b.subjectPrefix == "" {
		return subject
	}
	return fmt.Sprint(b.subjectPrefix, ".", subject)
}

func (b *CoreNatsMessageBus) Publish(subject string, message []byte) error {
	return b.nc.Publish(b.sub(subject), message)
}

func (b *CoreNatsMessageBus) Subscribe(subject string, handler func(message []byte, metadata core.Metadata) error) (core.Unsubscriber, error) {
	return b.nc.Subscribe(b.sub(subject), func(m *nats.Msg) {
		metadata := core.Metadata{"subject": m.Subject}
		for k := range m.Header {
			metadata[k] = m.Header.Get(k)
		}
		if err := handler(m.Data, metadata); err != nil {
			b.logger.Warn("nats handler failed", slog.String("subject", m.Subject), slog.Any("error", err))
		}
	})
}
