// Package reconnect issues the single automatic reconnection attempt made
// after a tracker's first refresh.
package reconnect

import (
	"context"
	"sync"
	"time"

	"github.com/plexcord/connstatus/internal/pkg/logger"
)

// DefaultSettleDelay is how long the supervisor waits before evaluating.
const DefaultSettleDelay = 500 * time.Millisecond

// Outcomes reported to a Recorder.
const (
	OutcomeSkipped   = "skipped"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Target is the tracker being supervised.
type Target interface {
	Service() string
	// NeedsReconnect reports whether an attempt should be made now.
	NeedsReconnect() bool
	// Reconnect makes one attempt.
	Reconnect(ctx context.Context) error
}

// Recorder observes supervisor decisions. metrics.Metrics implements it.
type Recorder interface {
	RecordReconnect(service, outcome string)
}

// Supervisor evaluates its target once, after a settle delay.
type Supervisor struct {
	target  Target
	delay   time.Duration
	log     *logger.Logger
	metrics Recorder

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	outcome string
}

// New creates a supervisor for target. A non-positive delay selects
// DefaultSettleDelay.
func New(target Target, delay time.Duration, log *logger.Logger, rec Recorder) *Supervisor {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Supervisor{
		target:  target,
		delay:   delay,
		log:     logger.OrDefault(log).WithComponent("reconnect").WithService(target.Service()),
		metrics: rec,
		done:    make(chan struct{}),
	}
}

// Start arms the timer. Only the first call has an effect. Cancelling ctx or
// calling Cancel stops a pending evaluation and aborts a running attempt.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Cancel stops a pending evaluation. It does not wait; use Done for that.
func (s *Supervisor) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		s.outcome = OutcomeCancelled
		close(s.done)
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed once the supervisor has finished, whatever the outcome.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Outcome returns how the evaluation ended, or "" while pending.
func (s *Supervisor) Outcome() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *Supervisor) run(ctx context.Context) {
	outcome := s.evaluate(ctx)

	s.mu.Lock()
	s.outcome = outcome
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordReconnect(s.target.Service(), outcome)
	}
	close(s.done)
}

func (s *Supervisor) evaluate(ctx context.Context) string {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return OutcomeCancelled
	case <-timer.C:
	}

	if !s.target.NeedsReconnect() {
		return OutcomeSkipped
	}

	s.log.Info("Auto-reconnecting after startup")
	if err := s.target.Reconnect(ctx); err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		s.log.WithError(err).Info("Auto-reconnect failed")
		return OutcomeFailed
	}
	return OutcomeSucceeded
}
