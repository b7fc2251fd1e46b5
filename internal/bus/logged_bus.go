package bus

import (
	"context"

	"github.com/plexcord/connstatus/internal/pkg/logger"
)

// LoggedBus wraps another Bus implementation and journals all traffic to
// disk. This is useful for debugging and replay scenarios.
type LoggedBus struct {
	inner       Bus
	eventLogger *EventLogger
	log         *logger.Logger
}

// NewLoggedBus creates a new logged bus that wraps an inner bus.
// Events are logged before being published to the inner bus.
func NewLoggedBus(inner Bus, eventLogger *EventLogger, log *logger.Logger) *LoggedBus {
	return &LoggedBus{
		inner:       inner,
		eventLogger: eventLogger,
		log:         logger.OrDefault(log),
	}
}

// Publish logs the event and then delegates to the inner bus.
func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	b.journal(topic, event)
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe delegates to the inner bus.
func (b *LoggedBus) Subscribe(ctx context.Context, topic string, handler Handler) (*Subscription, error) {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Request logs the request event and its response.
func (b *LoggedBus) Request(ctx context.Context, topic string, req Event) (Event, error) {
	req = ensureCorrelation(req)
	b.journal(topic, req)

	resp, err := b.inner.Request(ctx, topic, req)
	if err == nil {
		b.journal(ResponseTopic(topic), resp)
	}

	return resp, err
}

// Respond delegates to the inner bus. Responses are journaled by the
// requesting side.
func (b *LoggedBus) Respond(ctx context.Context, topic string, resp Event) error {
	return b.inner.Respond(ctx, topic, resp)
}

// Close closes both the event logger and the inner bus.
func (b *LoggedBus) Close() error {
	if err := b.eventLogger.Close(); err != nil {
		b.log.Warn("Failed to close event logger",
			"error", err.Error(),
		)
	}

	return b.inner.Close()
}

// EventLogger returns the journal backing this bus.
func (b *LoggedBus) EventLogger() *EventLogger {
	return b.eventLogger
}

func (b *LoggedBus) journal(topic string, event Event) {
	if err := b.eventLogger.Log(topic, event); err != nil {
		b.log.Warn("Failed to log event to disk",
			"topic", topic,
			"error", err.Error(),
		)
	}
}
