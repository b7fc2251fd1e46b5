package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/logger"
)

// MemoryBus is an in-memory event bus. Each subscription receives its events
// in publish order on a dedicated goroutine.
type MemoryBus struct {
	mu       sync.RWMutex
	subs     map[string][]*memorySub
	pending  map[string]chan Event
	closed   bool
	timeout  time.Duration
	nextID   uint64
	inflight atomic.Int64 // queued or running deliveries
	log      *logger.Logger
}

type delivery struct {
	ctx   context.Context
	event Event
}

type memorySub struct {
	id      uint64
	topic   string
	handler Handler

	mu       sync.Mutex
	queue    []delivery
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryBus creates a new in-memory event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:    make(map[string][]*memorySub),
		pending: make(map[string]chan Event),
		timeout: 30 * time.Second,
		log:     logger.Default(),
	}
}

// WithLogger sets the logger used for handler failures.
func (b *MemoryBus) WithLogger(log *logger.Logger) *MemoryBus {
	if log != nil {
		b.log = log
	}
	return b
}

// WithTimeout sets the upper bound Request waits for a response.
func (b *MemoryBus) WithTimeout(d time.Duration) *MemoryBus {
	if d > 0 {
		b.timeout = d
	}
	return b
}

// Publish queues an event for every subscriber of a topic. Handlers run with
// a context detached from the publisher's cancellation.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeClosed, "bus is closed")
	}

	subs := b.subs[topic]
	if len(subs) == 0 {
		return nil // No subscribers, not an error
	}

	hctx := context.WithoutCancel(ctx)
	for _, s := range subs {
		b.inflight.Add(1)
		s.enqueue(delivery{ctx: hctx, event: event})
	}

	return nil
}

// Subscribe registers a handler for events on a topic.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New(errors.CodeClosed, "bus is closed")
	}

	b.nextID++
	s := &memorySub{
		id:      b.nextID,
		topic:   topic,
		handler: handler,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], s)
	go s.run(b)

	return newSubscription(topic, func() { b.unsubscribe(s) }), nil
}

func (b *MemoryBus) unsubscribe(s *memorySub) {
	b.mu.Lock()
	subs := b.subs[s.topic]
	for i, cur := range subs {
		if cur.id == s.id {
			b.subs[s.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[s.topic]) == 0 {
		delete(b.subs, s.topic)
	}
	b.mu.Unlock()

	s.halt()
}

// Request sends a request and waits for a response.
func (b *MemoryBus) Request(ctx context.Context, topic string, req Event) (Event, error) {
	req = ensureCorrelation(req)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Event{}, errors.New(errors.CodeClosed, "bus is closed")
	}

	responseChan := make(chan Event, 1)
	b.pending[req.CorrelationID] = responseChan
	hasResponder := len(b.subs[topic]) > 0
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.CorrelationID)
		b.mu.Unlock()
	}()

	if !hasResponder {
		return Event{}, errors.ServiceUnavailableError(topic)
	}

	if err := b.Publish(ctx, topic, req); err != nil {
		return Event{}, err
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Event{}, errors.Wrap(errors.CodeTimeout, "request timeout", ctx.Err())
	case <-timer.C:
		return Event{}, errors.TimeoutError(topic)
	case resp := <-responseChan:
		return resp, nil
	}
}

// Respond delivers a response to the pending request with the same
// correlation ID.
func (b *MemoryBus) Respond(ctx context.Context, topic string, resp Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeClosed, "bus is closed")
	}

	ch, ok := b.pending[resp.CorrelationID]
	if !ok {
		return errors.NotFoundError("pending request for correlation ID")
	}

	select {
	case ch <- resp:
		return nil
	default:
		return errors.New(errors.CodeInternal, "response already delivered")
	}
}

// Close closes the bus, waiting for queued deliveries to complete.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if !b.DrainTimeout(10 * time.Second) {
		b.log.Warn("bus: event drain timeout reached, some handlers may not have completed",
			"inflight", b.InFlightCount(),
		)
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string][]*memorySub)
	b.pending = make(map[string]chan Event)
	b.mu.Unlock()

	for _, list := range subs {
		for _, s := range list {
			s.halt()
		}
	}

	return nil
}

// DrainTimeout waits until no deliveries are queued or running.
func (b *MemoryBus) DrainTimeout(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for b.inflight.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
	return true
}

// InFlightCount returns the number of queued or running deliveries.
func (b *MemoryBus) InFlightCount() int {
	return int(b.inflight.Load())
}

func (s *memorySub) enqueue(d delivery) {
	s.mu.Lock()
	s.queue = append(s.queue, d)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// halt stops the delivery goroutine and waits for a running handler to
// return. Must not be called from the subscription's own handler.
func (s *memorySub) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *memorySub) next() (delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return delivery{}, false
	}
	d := s.queue[0]
	s.queue[0] = delivery{}
	s.queue = s.queue[1:]
	return d, true
}

func (s *memorySub) run(b *MemoryBus) {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			s.mu.Lock()
			dropped := len(s.queue)
			s.queue = nil
			s.mu.Unlock()
			b.inflight.Add(-int64(dropped))
			return
		case <-s.wake:
		}

		for {
			d, ok := s.next()
			if !ok {
				break
			}
			if err := s.handler(d.ctx, d.event); err != nil {
				b.log.Warn("Event handler failed",
					"topic", s.topic,
					"event_id", d.event.ID,
					"error", err.Error(),
				)
			}
			b.inflight.Add(-1)
		}
	}
}
