// Package bridge turns backend push events into calls on a per-service
// listener.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/plexcord/connstatus/internal/backend"
	"github.com/plexcord/connstatus/internal/bus"
	reqctx "github.com/plexcord/connstatus/internal/pkg/context"
	"github.com/plexcord/connstatus/internal/pkg/logger"
)

// Listener receives the push events of one service.
type Listener interface {
	OnPushConnected(ctx context.Context)
	// OnPushDisconnected receives the reported code, or "" when the event
	// carried none.
	OnPushDisconnected(ctx context.Context, code string)
	OnPushRetryState(ctx context.Context, state backend.RetryState)
}

// Topics lists the push topics of one service.
type Topics struct {
	Connected    []string
	Disconnected []string
	RetryState   []string
}

// TopicsFor returns the push topics of service. Both historical media server
// disconnect topics are included.
func TopicsFor(service string) Topics {
	if service == backend.ServiceDiscord {
		return Topics{
			Connected:    []string{bus.TopicDiscordConnected},
			Disconnected: []string{bus.TopicDiscordDisconnected},
			RetryState:   []string{bus.TopicDiscordRetryState},
		}
	}
	return Topics{
		Connected:    []string{bus.TopicPlexConnectionRestored},
		Disconnected: []string{bus.TopicPlexConnectionError, bus.TopicPlexConnectionLost},
		RetryState:   []string{bus.TopicPlexRetryState},
	}
}

// Bridge attaches listeners to a bus.
type Bridge struct {
	bus bus.Bus
	log *logger.Logger
}

// New creates a bridge over b.
func New(b bus.Bus, log *logger.Logger) *Bridge {
	return &Bridge{bus: b, log: logger.OrDefault(log).WithComponent("bridge")}
}

// Binding holds the subscriptions made for one listener. Handlers of one
// binding run one at a time, and an event older than the last one applied
// in its group (connectivity or retry state) is dropped, so topics delivered
// on separate goroutines still apply in publish order.
type Binding struct {
	service string
	subs    []*bus.Subscription

	mu        sync.Mutex
	lastConn  bus.Event
	lastRetry bus.Event
}

// Service returns the service the binding listens for.
func (b *Binding) Service() string {
	return b.service
}

// Release unsubscribes every handler. Safe to call more than once and on a
// nil binding. Must not be called from inside a push handler.
func (b *Binding) Release() {
	if b == nil {
		return
	}
	for _, s := range b.subs {
		s.Unsubscribe()
	}
}

// Attach subscribes l to the push topics of service. On failure nothing
// stays subscribed.
func (br *Bridge) Attach(ctx context.Context, service string, l Listener) (*Binding, error) {
	binding := &Binding{service: service}
	log := br.log.WithService(service)
	topics := TopicsFor(service)

	add := func(topic string, last *bus.Event, h bus.Handler) error {
		sub, err := br.bus.Subscribe(ctx, topic, func(ctx context.Context, e bus.Event) error {
			binding.mu.Lock()
			defer binding.mu.Unlock()
			if e.Before(*last) {
				log.Debug("Dropping out-of-order event", "topic", topic, "event_id", e.ID)
				return nil
			}
			*last = e

			ctx = reqctx.WithSource(ctx, service)
			if e.CorrelationID != "" {
				ctx = reqctx.WithCorrelationID(ctx, e.CorrelationID)
			}
			return h(ctx, e)
		})
		if err != nil {
			binding.Release()
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		binding.subs = append(binding.subs, sub)
		return nil
	}

	for _, topic := range topics.Connected {
		if err := add(topic, &binding.lastConn, func(ctx context.Context, _ bus.Event) error {
			l.OnPushConnected(ctx)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	for _, topic := range topics.Disconnected {
		if err := add(topic, &binding.lastConn, func(ctx context.Context, e bus.Event) error {
			p, err := bus.DecodePayload[backend.DisconnectPayload](e)
			if err != nil {
				// A malformed payload still means the connection is gone.
				log.Warn("Undecodable disconnect payload", "topic", e.Type, "error", err.Error())
			}
			l.OnPushDisconnected(ctx, p.ResolvedCode(""))
			return nil
		}); err != nil {
			return nil, err
		}
	}

	for _, topic := range topics.RetryState {
		if err := add(topic, &binding.lastRetry, func(ctx context.Context, e bus.Event) error {
			st, err := bus.DecodePayload[backend.RetryState](e)
			if err != nil {
				return fmt.Errorf("decoding retry state: %w", err)
			}
			l.OnPushRetryState(ctx, st)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	log.Debug("Push listeners attached", "subscriptions", len(binding.subs))
	return binding, nil
}
