package reconnect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plexcord/connstatus/internal/pkg/logger"
)

type fakeTarget struct {
	needs   atomic.Bool
	calls   atomic.Int32
	err     error
	blockCh chan struct{}
}

func (f *fakeTarget) Service() string { return "plex" }

func (f *fakeTarget) NeedsReconnect() bool { return f.needs.Load() }

func (f *fakeTarget) Reconnect(ctx context.Context) error {
	f.calls.Add(1)
	if f.blockCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.blockCh:
		}
	}
	return f.err
}

type outcomes struct {
	mu  sync.Mutex
	got []string
}

func (o *outcomes) RecordReconnect(service, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, service+":"+outcome)
}

func wait(t *testing.T, s *Supervisor) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not finish")
	}
}

func TestSupervisor_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		needs     bool
		err       error
		want      string
		wantCalls int32
	}{
		{"connected target is skipped", false, nil, OutcomeSkipped, 0},
		{"disconnected target reconnects", true, nil, OutcomeSucceeded, 1},
		{"failure is swallowed", true, errors.New("unreachable"), OutcomeFailed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &fakeTarget{err: tt.err}
			target.needs.Store(tt.needs)
			rec := &outcomes{}

			s := New(target, 10*time.Millisecond, logger.Discard(), rec)
			s.Start(context.Background())
			wait(t, s)

			if got := s.Outcome(); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
			if got := target.calls.Load(); got != tt.wantCalls {
				t.Errorf("Reconnect calls = %d, want %d", got, tt.wantCalls)
			}
			rec.mu.Lock()
			if len(rec.got) != 1 || rec.got[0] != "plex:"+tt.want {
				t.Errorf("recorded = %v", rec.got)
			}
			rec.mu.Unlock()
		})
	}
}

func TestSupervisor_StartOnce(t *testing.T) {
	target := &fakeTarget{}
	target.needs.Store(true)

	s := New(target, 5*time.Millisecond, logger.Discard(), nil)
	s.Start(context.Background())
	s.Start(context.Background())
	wait(t, s)
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	if got := target.calls.Load(); got != 1 {
		t.Errorf("Reconnect calls = %d, want 1", got)
	}
}

func TestSupervisor_CancelBeforeFire(t *testing.T) {
	target := &fakeTarget{}
	target.needs.Store(true)

	s := New(target, time.Hour, logger.Discard(), nil)
	s.Start(context.Background())
	s.Cancel()
	wait(t, s)

	if got := s.Outcome(); got != OutcomeCancelled {
		t.Errorf("Outcome() = %q, want %q", got, OutcomeCancelled)
	}
	if target.calls.Load() != 0 {
		t.Error("Reconnect called after Cancel")
	}
}

func TestSupervisor_CancelWithoutStart(t *testing.T) {
	s := New(&fakeTarget{}, 0, nil, nil)
	s.Cancel()
	wait(t, s)
	s.Start(context.Background())
	s.Cancel()

	if got := s.Outcome(); got != OutcomeCancelled {
		t.Errorf("Outcome() = %q, want %q", got, OutcomeCancelled)
	}
}

func TestSupervisor_CancelAbortsAttempt(t *testing.T) {
	target := &fakeTarget{blockCh: make(chan struct{})}
	target.needs.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	s := New(target, time.Millisecond, logger.Discard(), nil)
	s.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for target.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	wait(t, s)

	if got := s.Outcome(); got != OutcomeCancelled {
		t.Errorf("Outcome() = %q, want %q", got, OutcomeCancelled)
	}
}

func TestNew_DefaultDelay(t *testing.T) {
	s := New(&fakeTarget{}, -1, nil, nil)
	if s.delay != DefaultSettleDelay {
		t.Errorf("delay = %v, want %v", s.delay, DefaultSettleDelay)
	}
}
