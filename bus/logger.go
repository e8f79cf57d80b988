package bus

import (
	"log/slog"

	"github.com/gehhilfe/orthrus/core"
)

// BusLogger logs every message passing through bus at debug level.
type BusLogger struct {
	bus    core.MessageBus
	logger *slog.Logger
}

func NewBusLogger(
	bus core.MessageBus,
	logger *slog.Logger,
) *BusLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusLogger{
		bus:    bus,
		logger: logger.With(slog.String("component", "bus")),
	}
}

func (b *BusLogger) Publish(subject string, message []byte) error {
	b.logger.Debug("publishing message", slog.String("subject", subject), slog.Int("size", len(message)))
	if err := b.bus.Publish(subject, message); err != nil {
		b.logger.Warn("publishing message failed", slog.String("subject", subject), slog.Any("error", err))
		return err
	}
	return nil
}

func (b *BusLogger) Subscribe(subject string, handler func(message []byte, metadata core.Metadata) error) (core.Unsubscriber, error) {
	return b.bus.Subscribe(subject, func(message []byte, metadata core.Metadata) error {
		b.logger.Debug("received message", slog.String("subject", subject), slog.Int("size", len(message)), slog.Any("metadata", metadata))
		if err := handler(message, metadata); err != nil {
			b.logger.Warn("handling message failed", slog.String("subject", subject), slog.Any("error", err))
			return err
		}
		return nil
	})
}
