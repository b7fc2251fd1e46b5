package metrics

import (
	"context"

	"github.com/plexcord/connstatus/internal/bus"
)

// EventSubscriber counts backend push events seen on a bus.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
	subs    []*bus.Subscription
}

// NewEventSubscriber creates a new event subscriber.
func NewEventSubscriber(metrics *Metrics, eventBus bus.Bus) *EventSubscriber {
	return &EventSubscriber{
		metrics: metrics,
		bus:     eventBus,
	}
}

// SubscribeToEvents subscribes to every push topic.
func (es *EventSubscriber) SubscribeToEvents(ctx context.Context) error {
	for _, topic := range bus.PushTopics() {
		sub, err := es.bus.Subscribe(ctx, topic, es.handlePush)
		if err != nil {
			es.Close()
			return err
		}
		es.subs = append(es.subs, sub)
	}
	return nil
}

func (es *EventSubscriber) handlePush(ctx context.Context, event bus.Event) error {
	es.metrics.RecordPushEvent(event.Type)
	return nil
}

// Close releases the subscriptions.
func (es *EventSubscriber) Close() {
	for _, s := range es.subs {
		s.Unsubscribe()
	}
	es.subs = nil
}
