package bus

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plexcord/connstatus/internal/pkg/logger"
)

func TestEventLogger(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "events.log")

	t.Run("NewEventLogger_Enabled", func(t *testing.T) {
		el, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer el.Close()

		if !el.IsEnabled() {
			t.Error("Expected logger to be enabled")
		}
		if el.Path() != logPath {
			t.Errorf("Path() = %s, want %s", el.Path(), logPath)
		}
	})

	t.Run("NewEventLogger_CreatesDirectory", func(t *testing.T) {
		nested := filepath.Join(tempDir, "a", "b", "events.log")
		el, err := NewEventLogger(nested, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer el.Close()

		if _, err := os.Stat(filepath.Dir(nested)); err != nil {
			t.Errorf("directory not created: %v", err)
		}
	})

	t.Run("Log_Disabled", func(t *testing.T) {
		el, err := NewEventLogger(logPath, false)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer el.Close()

		if el.IsEnabled() {
			t.Error("Expected logger to be disabled")
		}

		// Should not error, just no-op
		if err := el.Log(TopicDiscordConnected, Event{ID: "test-456"}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}

		if _, err := el.GetEvents(time.Time{}, 0); err == nil {
			t.Error("GetEvents on disabled logger should fail")
		}
	})

	t.Run("GetEvents", func(t *testing.T) {
		os.Remove(logPath)

		el, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer el.Close()

		now := time.Now()
		for i := 0; i < 5; i++ {
			event := NewEvent(TopicPlexConnectionLost, "backend", map[string]string{"code": "PLEX_UNREACHABLE"})
			if err := el.Log(TopicPlexConnectionLost, event); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		events, err := el.GetEvents(now.Add(-1*time.Minute), 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != 5 {
			t.Errorf("Expected 5 events, got %d", len(events))
		}

		events, err = el.GetEvents(now.Add(-1*time.Minute), 3)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != 3 {
			t.Errorf("Expected 3 events (limit), got %d", len(events))
		}

		events, err = el.GetEvents(time.Now().Add(time.Minute), 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("Expected no events after a future cutoff, got %d", len(events))
		}
	})

	t.Run("Tail", func(t *testing.T) {
		os.Remove(logPath)

		el, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer el.Close()

		for _, topic := range []string{TopicDiscordDisconnected, TopicDiscordConnected, TopicDiscordDisconnected, TopicPlexRetryState} {
			if err := el.Log(topic, NewEvent(topic, "backend", nil)); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		events, err := OpenEventLog(logPath).Tail(2, "")
		if err != nil {
			t.Fatalf("Tail failed: %v", err)
		}
		if len(events) != 2 || events[1].Topic != TopicPlexRetryState {
			t.Errorf("Tail(2) = %+v", events)
		}

		events, err = el.Tail(0, TopicDiscordDisconnected)
		if err != nil {
			t.Fatalf("Tail failed: %v", err)
		}
		if len(events) != 2 {
			t.Errorf("Tail(topic) returned %d events, want 2", len(events))
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		events, err := OpenEventLog(filepath.Join(tempDir, "nope.log")).GetEvents(time.Time{}, 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("Expected empty result, got %d", len(events))
		}
	})

	t.Run("WriteOnReadOnly", func(t *testing.T) {
		if err := OpenEventLog(logPath).Log("x", Event{}); err == nil {
			t.Error("Log on a read-only journal should fail")
		}
	})

	t.Run("Replay", func(t *testing.T) {
		os.Remove(logPath)

		el, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer el.Close()

		now := time.Now()
		for i := 0; i < 3; i++ {
			if err := el.Log(TopicDiscordConnected, NewEvent(TopicDiscordConnected, "backend", nil)); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}
		// Request traffic is not replayed
		if err := el.Log(TopicQueryHistory, NewRequest(TopicQueryHistory, "orchestrator", nil)); err != nil {
			t.Fatalf("Log failed: %v", err)
		}

		replayBus := NewMemoryBus()
		defer replayBus.Close()

		var eventCount atomic.Int32
		ctx := context.Background()
		_, err = replayBus.Subscribe(ctx, TopicDiscordConnected, func(ctx context.Context, event Event) error {
			eventCount.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		n, err := el.Replay(ctx, replayBus, now.Add(-1*time.Minute))
		if err != nil {
			t.Fatalf("Replay failed: %v", err)
		}
		if n != 3 {
			t.Errorf("Replay() = %d, want 3", n)
		}

		replayBus.DrainTimeout(time.Second)

		if got := eventCount.Load(); got != 3 {
			t.Errorf("Expected 3 replayed events, got %d", got)
		}
	})
}

func TestLoggedBus(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "logged_bus.log")

	t.Run("Publish_LogsEvent", func(t *testing.T) {
		innerBus := NewMemoryBus()

		el, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}

		loggedBus := NewLoggedBus(innerBus, el, logger.Discard())
		defer loggedBus.Close()

		event := Event{
			ID:     "test-pub",
			Type:   TopicPlexConnectionRestored,
			Source: "test",
		}

		ctx := context.Background()
		if err := loggedBus.Publish(ctx, TopicPlexConnectionRestored, event); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		events, err := loggedBus.EventLogger().GetEvents(time.Now().Add(-1*time.Minute), 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}

		if len(events) != 1 {
			t.Fatalf("Expected 1 logged event, got %d", len(events))
		}

		if events[0].Event.ID != "test-pub" {
			t.Errorf("Expected event ID 'test-pub', got '%s'", events[0].Event.ID)
		}
	})

	t.Run("Request_LogsRequestAndResponse", func(t *testing.T) {
		os.Remove(logPath)

		innerBus := NewMemoryBus()

		el, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}

		loggedBus := NewLoggedBus(innerBus, el, logger.Discard())
		defer loggedBus.Close()

		ctx := context.Background()

		_, err = loggedBus.Subscribe(ctx, TopicQueryHistory, func(ctx context.Context, event Event) error {
			return loggedBus.Respond(ctx, TopicQueryHistory, ReplyTo(event, "backend", nil))
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if _, err := loggedBus.Request(ctx, TopicQueryHistory, Event{Type: TopicQueryHistory}); err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		events, err := el.GetEvents(time.Now().Add(-1*time.Minute), 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}

		if len(events) != 2 {
			t.Fatalf("Expected 2 logged events (request + response), got %d", len(events))
		}
		if events[0].Event.CorrelationID == "" || events[0].Event.CorrelationID != events[1].Event.CorrelationID {
			t.Errorf("request and response should share a correlation ID: %+v", events)
		}
		if events[1].Topic != ResponseTopic(TopicQueryHistory) {
			t.Errorf("response topic = %s", events[1].Topic)
		}
	})
}

type recordingMetrics struct {
	topics []string
	errs   int
}

func (r *recordingMetrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	r.topics = append(r.topics, topic)
	if err != nil {
		r.errs++
	}
}

func TestInstrumentedBus(t *testing.T) {
	inner := NewMemoryBus()
	rec := &recordingMetrics{}
	b := NewInstrumentedBus(inner, rec)
	defer b.Close()

	ctx := context.Background()
	b.Publish(ctx, TopicDiscordConnected, Event{})
	if _, err := b.Request(ctx, "unanswered", Event{}); err == nil {
		t.Fatal("Request() without responder should fail")
	}

	if len(rec.topics) != 2 || rec.topics[0] != TopicDiscordConnected || rec.topics[1] != "unanswered" {
		t.Errorf("recorded topics = %v", rec.topics)
	}
	if rec.errs != 1 {
		t.Errorf("recorded %d errors, want 1", rec.errs)
	}
}
