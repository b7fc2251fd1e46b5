package backend

import (
	"context"

	"github.com/plexcord/connstatus/internal/bus"
)

// Publisher emits the backend's push events.
type Publisher struct {
	bus    bus.Bus
	source string
}

// NewPublisher creates a publisher on b.
func NewPublisher(b bus.Bus) *Publisher {
	return &Publisher{bus: b, source: "backend"}
}

func (p *Publisher) publish(ctx context.Context, topic, service string, payload any) error {
	e := bus.NewEvent(topic, p.source, payload)
	if service != "" {
		e.Source = service
	}
	return p.bus.Publish(ctx, topic, e)
}

// PlexConnectionLost reports a lost media server connection.
func (p *Publisher) PlexConnectionLost(ctx context.Context, code string) error {
	return p.publish(ctx, bus.TopicPlexConnectionLost, ServicePlex, DisconnectPayload{Code: code})
}

// PlexConnectionError reports a lost media server connection on the legacy
// topic with the legacy payload key.
func (p *Publisher) PlexConnectionError(ctx context.Context, code string) error {
	return p.publish(ctx, bus.TopicPlexConnectionError, ServicePlex, DisconnectPayload{ErrorCode: code})
}

// PlexConnectionRestored reports a restored media server connection.
func (p *Publisher) PlexConnectionRestored(ctx context.Context) error {
	return p.publish(ctx, bus.TopicPlexConnectionRestored, ServicePlex, nil)
}

// PlexRetryState reports media server retry progress.
func (p *Publisher) PlexRetryState(ctx context.Context, state RetryState) error {
	return p.publish(ctx, bus.TopicPlexRetryState, ServicePlex, state)
}

// DiscordConnected reports an established presence connection.
func (p *Publisher) DiscordConnected(ctx context.Context) error {
	return p.publish(ctx, bus.TopicDiscordConnected, ServiceDiscord, nil)
}

// DiscordDisconnected reports a lost presence connection.
func (p *Publisher) DiscordDisconnected(ctx context.Context, code, message string) error {
	return p.publish(ctx, bus.TopicDiscordDisconnected, ServiceDiscord, DisconnectPayload{Code: code, Error: message})
}

// DiscordRetryState reports presence retry progress.
func (p *Publisher) DiscordRetryState(ctx context.Context, state RetryState) error {
	return p.publish(ctx, bus.TopicDiscordRetryState, ServiceDiscord, state)
}
