package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/plexcord/connstatus/internal/backend"
	"github.com/plexcord/connstatus/internal/bus"
	"github.com/plexcord/connstatus/internal/pkg/logger"
)

type recordingListener struct {
	mu        sync.Mutex
	connected int
	codes     []string
	retry     []backend.RetryState
}

func (l *recordingListener) OnPushConnected(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected++
}

func (l *recordingListener) OnPushDisconnected(ctx context.Context, code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codes = append(l.codes, code)
}

func (l *recordingListener) OnPushRetryState(ctx context.Context, st backend.RetryState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retry = append(l.retry, st)
}

func newBus(t *testing.T) *bus.MemoryBus {
	t.Helper()
	b := bus.NewMemoryBus().WithLogger(logger.Discard())
	t.Cleanup(func() { b.Close() })
	return b
}

// publish sends one event and waits for it to be handled. Back-to-back
// events on different topics may be delivered out of order, and the bridge
// drops the older one, so tests that count deliveries go one at a time.
func publish(t *testing.T, b *bus.MemoryBus, topic string, payload any) {
	t.Helper()
	if err := b.Publish(context.Background(), topic, bus.NewEvent(topic, "backend", payload)); err != nil {
		t.Fatalf("Publish(%s) error = %v", topic, err)
	}
	if !b.DrainTimeout(time.Second) {
		t.Fatalf("%s not drained", topic)
	}
}

// stateListener keeps the connectivity the events describe.
type stateListener struct {
	mu        sync.Mutex
	connected bool
	code      string
}

func (l *stateListener) OnPushConnected(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected, l.code = true, ""
}

func (l *stateListener) OnPushDisconnected(ctx context.Context, code string) {
	// Widen the window in which a later event could overtake this one.
	time.Sleep(time.Millisecond)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected, l.code = false, code
}

func (l *stateListener) OnPushRetryState(ctx context.Context, st backend.RetryState) {}

func (l *stateListener) get() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected, l.code
}

func TestBridge_PlexTopics(t *testing.T) {
	b := newBus(t)
	l := &recordingListener{}

	binding, err := New(b, logger.Discard()).Attach(context.Background(), backend.ServicePlex, l)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer binding.Release()

	publish(t, b, bus.TopicPlexConnectionLost, backend.DisconnectPayload{Code: "PLEX_AUTH_FAILED"})
	publish(t, b, bus.TopicPlexConnectionError, map[string]any{"errorCode": "PLEX_CONN_FAILED"})
	publish(t, b, bus.TopicPlexConnectionLost, nil)
	publish(t, b, bus.TopicPlexConnectionRestored, nil)
	publish(t, b, bus.TopicPlexRetryState, backend.RetryState{AttemptNumber: 4, IsRetrying: true})
	// Events for the other service are ignored.
	publish(t, b, bus.TopicDiscordConnected, nil)

	if !b.DrainTimeout(time.Second) {
		t.Fatal("events not drained")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected != 1 {
		t.Errorf("connected = %d, want 1", l.connected)
	}
	if len(l.codes) != 3 {
		t.Fatalf("codes = %v, want 3 entries", l.codes)
	}
	want := map[string]bool{"PLEX_AUTH_FAILED": true, "PLEX_CONN_FAILED": true, "": true}
	for _, c := range l.codes {
		if !want[c] {
			t.Errorf("unexpected code %q", c)
		}
	}
	if len(l.retry) != 1 || l.retry[0].AttemptNumber != 4 {
		t.Errorf("retry = %+v", l.retry)
	}
}

func TestBridge_DiscordTopics(t *testing.T) {
	b := newBus(t)
	l := &recordingListener{}

	binding, err := New(b, nil).Attach(context.Background(), backend.ServiceDiscord, l)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer binding.Release()

	publish(t, b, bus.TopicDiscordDisconnected, backend.DisconnectPayload{Code: "DISCORD_CONN_FAILED", Error: "pipe closed"})
	publish(t, b, bus.TopicDiscordConnected, nil)

	if !b.DrainTimeout(time.Second) {
		t.Fatal("events not drained")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.codes) != 1 || l.codes[0] != "DISCORD_CONN_FAILED" {
		t.Errorf("codes = %v", l.codes)
	}
	if l.connected != 1 {
		t.Errorf("connected = %d, want 1", l.connected)
	}
}

func TestBinding_Release(t *testing.T) {
	b := newBus(t)
	l := &recordingListener{}

	binding, err := New(b, logger.Discard()).Attach(context.Background(), backend.ServiceDiscord, l)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if binding.Service() != backend.ServiceDiscord {
		t.Errorf("Service() = %q", binding.Service())
	}

	binding.Release()
	binding.Release()

	publish(t, b, bus.TopicDiscordConnected, nil)
	b.DrainTimeout(time.Second)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected != 0 {
		t.Errorf("connected = %d after Release, want 0", l.connected)
	}

	var nilBinding *Binding
	nilBinding.Release()
}

func TestBridge_AttachClosedBus(t *testing.T) {
	b := bus.NewMemoryBus().WithLogger(logger.Discard())
	b.Close()

	if _, err := New(b, nil).Attach(context.Background(), backend.ServicePlex, &recordingListener{}); err == nil {
		t.Error("Attach() on closed bus should fail")
	}
}

func TestTopicsFor(t *testing.T) {
	plex := TopicsFor(backend.ServicePlex)
	if len(plex.Disconnected) != 2 {
		t.Errorf("plex disconnect topics = %v, want both names", plex.Disconnected)
	}
	discord := TopicsFor(backend.ServiceDiscord)
	if discord.Connected[0] != bus.TopicDiscordConnected {
		t.Errorf("discord connected topics = %v", discord.Connected)
	}
}

func TestBridge_BackToBackEventsApplyInPublishOrder(t *testing.T) {
	discordLost := backend.DisconnectPayload{Code: "DISCORD_NOT_RUNNING"}
	plexLost := backend.DisconnectPayload{Code: "PLEX_UNREACHABLE"}

	tests := []struct {
		name          string
		service       string
		first, second string
		payload       any
		wantConnected bool
	}{
		{"discord lost then connected", backend.ServiceDiscord, bus.TopicDiscordDisconnected, bus.TopicDiscordConnected, discordLost, true},
		{"discord connected then lost", backend.ServiceDiscord, bus.TopicDiscordConnected, bus.TopicDiscordDisconnected, discordLost, false},
		{"plex lost then restored", backend.ServicePlex, bus.TopicPlexConnectionLost, bus.TopicPlexConnectionRestored, plexLost, true},
		{"plex restored then lost", backend.ServicePlex, bus.TopicPlexConnectionRestored, bus.TopicPlexConnectionLost, plexLost, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBus(t)
			l := &stateListener{}
			binding, err := New(b, logger.Discard()).Attach(context.Background(), tt.service, l)
			if err != nil {
				t.Fatalf("Attach() error = %v", err)
			}
			defer binding.Release()

			ctx := context.Background()
			for i := 0; i < 50; i++ {
				for _, topic := range []string{tt.first, tt.second} {
					if err := b.Publish(ctx, topic, bus.NewEvent(topic, tt.service, tt.payload)); err != nil {
						t.Fatalf("Publish(%s) error = %v", topic, err)
					}
				}
				if !b.DrainTimeout(2 * time.Second) {
					t.Fatal("events not drained")
				}

				if connected, code := l.get(); connected != tt.wantConnected {
					t.Fatalf("round %d: connected = %v (code %q), want %v", i, connected, code, tt.wantConnected)
				}
			}
		})
	}
}

func TestBridge_DropsOlderEvent(t *testing.T) {
	b := newBus(t)
	l := &recordingListener{}
	binding, err := New(b, logger.Discard()).Attach(context.Background(), backend.ServiceDiscord, l)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer binding.Release()

	ctx := context.Background()
	older := bus.NewEvent(bus.TopicDiscordDisconnected, "discord", backend.DisconnectPayload{Code: "DISCORD_NOT_RUNNING"})
	newer := bus.NewEvent(bus.TopicDiscordConnected, "discord", nil)
	retry := bus.NewEvent(bus.TopicDiscordRetryState, "discord", backend.RetryState{AttemptNumber: 2})

	// Retry state is ordered on its own, so it still applies after newer.
	for _, e := range []bus.Event{newer, older, retry} {
		if err := b.Publish(ctx, e.Type, e); err != nil {
			t.Fatalf("Publish(%s) error = %v", e.Type, err)
		}
		if !b.DrainTimeout(time.Second) {
			t.Fatal("events not drained")
		}
	}

	// Events without a timestamp carry no order and always apply.
	untimed := bus.Event{ID: "legacy", Type: bus.TopicDiscordDisconnected}
	if err := b.Publish(ctx, untimed.Type, untimed); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	b.DrainTimeout(time.Second)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected != 1 {
		t.Errorf("connected = %d, want 1", l.connected)
	}
	if len(l.codes) != 1 || l.codes[0] != "" {
		t.Errorf("codes = %v, want only the untimed event", l.codes)
	}
	if len(l.retry) != 1 || l.retry[0].AttemptNumber != 2 {
		t.Errorf("retry = %+v", l.retry)
	}
}
