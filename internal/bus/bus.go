// Package bus provides event bus implementations for the push events and
// request/response traffic between the orchestrator and its backend.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic. The returned handle stops
	// delivery when released.
	Subscribe(ctx context.Context, topic string, handler Handler) (*Subscription, error)

	// Request sends a request and waits for a response.
	Request(ctx context.Context, topic string, req Event) (Event, error)

	// Respond answers a request received on topic. The response must carry
	// the request's correlation ID.
	Respond(ctx context.Context, topic string, resp Event) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "PlexConnectionLost", "backend.plex.status").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Seq orders events created by the same process within one millisecond.
	Seq uint64 `json:"seq,omitempty"`

	// CorrelationID links related events (e.g., request/response).
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

var eventSeq atomic.Uint64

// NewEvent creates an event with a fresh ID and the current timestamp.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Seq:       eventSeq.Add(1),
		Payload:   payload,
	}
}

// Before reports whether e was created before o. Events without a timestamp
// are unordered and never before anything.
func (e Event) Before(o Event) bool {
	if e.Timestamp == 0 || o.Timestamp == 0 {
		return false
	}
	if e.Timestamp != o.Timestamp {
		return e.Timestamp < o.Timestamp
	}
	return e.Seq < o.Seq
}

// NewRequest creates a request event with a fresh correlation ID.
func NewRequest(topic, source string, payload any) Event {
	e := NewEvent(topic, source, payload)
	e.CorrelationID = uuid.NewString()
	return e
}

// ReplyTo creates the response event for req.
func ReplyTo(req Event, source string, payload any) Event {
	e := NewEvent(ResponseTopic(req.Type), source, payload)
	e.CorrelationID = req.CorrelationID
	return e
}

// ensureCorrelation fills in the identifiers Request relies on.
func ensureCorrelation(req Event) Event {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}
	return req
}

// Push topics. Fire-and-forget notifications from the backend.
const (
	// TopicPlexConnectionError and TopicPlexConnectionLost both report a lost
	// media server connection; older backends emit the former.
	TopicPlexConnectionError    = "PlexConnectionError"
	TopicPlexConnectionLost     = "PlexConnectionLost"
	TopicPlexConnectionRestored = "PlexConnectionRestored"
	TopicPlexRetryState         = "PlexRetryState"

	TopicDiscordConnected    = "DiscordConnected"
	TopicDiscordDisconnected = "DiscordDisconnected"
	TopicDiscordRetryState   = "DiscordRetryState"
)

// Request topics. Queries and commands answered by the backend.
const (
	TopicQueryPlexStatus        = "backend.plex.status"
	TopicQueryDiscordStatus     = "backend.discord.status"
	TopicQueryHistory           = "backend.history"
	TopicQueryPlexRetryState    = "backend.plex.retry_state"
	TopicQueryDiscordRetryState = "backend.discord.retry_state"
	TopicQueryErrorInfo         = "backend.error_info"

	TopicCmdPlexRetry      = "backend.plex.retry"
	TopicCmdDiscordRetry   = "backend.discord.retry"
	TopicCmdDiscordConnect = "backend.discord.connect"
)

// RequestTopics lists every request topic.
func RequestTopics() []string {
	return []string{
		TopicQueryPlexStatus,
		TopicQueryDiscordStatus,
		TopicQueryHistory,
		TopicQueryPlexRetryState,
		TopicQueryDiscordRetryState,
		TopicQueryErrorInfo,
		TopicCmdPlexRetry,
		TopicCmdDiscordRetry,
		TopicCmdDiscordConnect,
	}
}

// ResponseTopic returns the topic responses to requests on topic are sent to.
func ResponseTopic(topic string) string {
	return topic + ".response"
}

// PushTopics lists every push topic.
func PushTopics() []string {
	return []string{
		TopicPlexConnectionError,
		TopicPlexConnectionLost,
		TopicPlexConnectionRestored,
		TopicPlexRetryState,
		TopicDiscordConnected,
		TopicDiscordDisconnected,
		TopicDiscordRetryState,
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	topic string
	once  sync.Once
	stop  func()
}

func newSubscription(topic string, stop func()) *Subscription {
	return &Subscription{topic: topic, stop: stop}
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe stops delivery to the handler. Safe to call more than once and
// on a nil handle.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// DecodePayload converts an event payload into T. In-process buses deliver
// the original value; serializing buses deliver generic JSON values, which
// are re-decoded.
func DecodePayload[T any](event Event) (T, error) {
	var out T
	switch p := event.Payload.(type) {
	case nil:
		return out, nil
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
		return out, nil
	}

	data, err := json.Marshal(event.Payload)
	if err != nil {
		return out, fmt.Errorf("encoding %s payload: %w", event.Type, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding %s payload: %w", event.Type, err)
	}
	return out, nil
}
