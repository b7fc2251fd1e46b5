// Package tracker keeps the connection state of one backend service,
// reconciling push events with pulled snapshots and user commands.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/plexcord/connstatus/internal/backend"
	"github.com/plexcord/connstatus/internal/bridge"
	"github.com/plexcord/connstatus/internal/catalog"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/logger"
	"github.com/plexcord/connstatus/internal/pkg/security"
	"github.com/plexcord/connstatus/internal/pkg/timefmt"
	"github.com/plexcord/connstatus/internal/reconnect"
)

// Attacher subscribes a listener to the push events of a service.
type Attacher interface {
	Attach(ctx context.Context, service string, l bridge.Listener) (*bridge.Binding, error)
}

// Resolver turns an error code into a record. It must not fail.
type Resolver interface {
	Resolve(ctx context.Context, code, service string) catalog.ErrorRecord
}

// ErrorSink mirrors the active error of each service. alerts.Manager
// implements it. Calls are made with the tracker lock held and must not
// call back into the tracker.
type ErrorSink interface {
	Put(source string, rec catalog.ErrorRecord)
	Remove(source string)
}

// Recorder observes transitions. metrics.Metrics implements it.
type Recorder interface {
	reconnect.Recorder
	RecordTransition(service string, connected bool)
}

// Options configures a Tracker. Every field is optional.
type Options struct {
	Bridge        Attacher
	Resolver      Resolver
	Errors        ErrorSink
	AutoReconnect bool
	SettleDelay   time.Duration
	Logger        *logger.Logger
	Metrics       Recorder
	// OnChange is called after every state change, without locks held.
	OnChange func(service string)
}

// Tracker holds the state of one service.
type Tracker[X any] struct {
	be   backend.Backend
	svc  Service[X]
	opts Options
	log  *logger.Logger
	now  func() time.Time

	mu          sync.Mutex
	state       State[X]
	initialized bool
	epoch       uint64 // bumped by Initialize and Teardown
	refreshSeq  uint64 // last refresh issued
	appliedSeq  uint64 // last refresh applied
	transitions uint64 // push and pull connectivity transitions
	binding     *bridge.Binding
	supervisor  *reconnect.Supervisor
	cancel      context.CancelFunc
}

// New creates a tracker for svc backed by be.
func New[X any](be backend.Backend, svc Service[X], opts Options) *Tracker[X] {
	return &Tracker[X]{
		be:   be,
		svc:  svc,
		opts: opts,
		log:  logger.OrDefault(opts.Logger).WithComponent("tracker").WithService(svc.Name()),
		now:  time.Now,
	}
}

// NewPlex creates the media server tracker.
func NewPlex(be backend.Backend, opts Options) *Tracker[PlexExtras] {
	return New[PlexExtras](be, PlexService{}, opts)
}

// NewDiscord creates the presence tracker.
func NewDiscord(be backend.Backend, opts Options) *Tracker[NoExtras] {
	return New[NoExtras](be, DiscordService{}, opts)
}

// Service returns the tracked service name.
func (t *Tracker[X]) Service() string {
	return t.svc.Name()
}

// Initialize attaches push listeners, performs one refresh and arms the
// auto-reconnect supervisor. Later calls do nothing until Teardown. A refresh
// failure is logged and the previous state kept.
func (t *Tracker[X]) Initialize(ctx context.Context) error {
	t.mu.Lock()
	if t.initialized {
		t.mu.Unlock()
		return nil
	}
	t.initialized = true
	t.epoch++
	epoch := t.epoch
	t.mu.Unlock()

	var binding *bridge.Binding
	if t.opts.Bridge != nil {
		b, err := t.opts.Bridge.Attach(ctx, t.svc.Name(), t)
		if err != nil {
			t.mu.Lock()
			if t.epoch == epoch {
				t.initialized = false
			}
			t.mu.Unlock()
			return apperrors.Wrap(apperrors.CodeInternal, "attaching push listeners", err)
		}
		binding = b
	}

	t.mu.Lock()
	if t.epoch != epoch {
		// Torn down while attaching.
		t.mu.Unlock()
		binding.Release()
		return nil
	}
	t.binding = binding
	t.mu.Unlock()

	if err := t.Refresh(ctx); err != nil {
		t.log.WithError(err).Warn("Initial refresh failed")
	}

	if t.opts.AutoReconnect {
		t.mu.Lock()
		if t.epoch == epoch {
			life, cancel := context.WithCancel(context.WithoutCancel(ctx))
			sup := reconnect.New(t, t.opts.SettleDelay, t.opts.Logger, t.opts.Metrics)
			t.supervisor = sup
			t.cancel = cancel
			sup.Start(life)
		}
		t.mu.Unlock()
	}

	t.log.Debug("Tracker initialized")
	return nil
}

// Teardown releases the push listeners and cancels a pending
// auto-reconnect. The state is kept. Safe to call more than once.
func (t *Tracker[X]) Teardown() {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return
	}
	t.initialized = false
	t.epoch++
	binding, sup, cancel := t.binding, t.supervisor, t.cancel
	t.binding, t.supervisor, t.cancel = nil, nil, nil
	t.mu.Unlock()

	if sup != nil {
		sup.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	binding.Release()

	t.log.Debug("Tracker torn down")
}

// Initialized reports whether Initialize has run since the last Teardown.
func (t *Tracker[X]) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// Supervisor returns the auto-reconnect supervisor of the current
// initialization, or nil.
func (t *Tracker[X]) Supervisor() *reconnect.Supervisor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supervisor
}

// Refresh pulls an authoritative snapshot. Local state changes only when
// every backend call succeeds, and a response is dropped when a refresh
// issued after it has already been applied.
func (t *Tracker[X]) Refresh(ctx context.Context) error {
	t.mu.Lock()
	t.refreshSeq++
	seq := t.refreshSeq
	t.mu.Unlock()

	snap, err := t.svc.Fetch(ctx, t.be)
	if err != nil {
		t.log.WithContext(ctx).WithError(err).Warn("Failed to refresh status")
		code := apperrors.CodeOf(err)
		if code == "" {
			code = apperrors.CodeUnavailable
		}
		return apperrors.Wrap(code, "refreshing "+t.svc.Name()+" status", err)
	}

	t.mu.Lock()
	if seq < t.appliedSeq {
		t.mu.Unlock()
		t.log.Debug("Discarding stale refresh", "seq", seq)
		return nil
	}

	t.appliedSeq = seq
	was := t.state.Connected
	t.state.Connected = snap.Connected
	t.state.Extras = snap.Extras
	t.state.LastConnectedAt = snap.LastConnectedAt
	t.state.RetryState = snap.RetryState.Clone()
	if snap.Connected {
		t.clearErrorLocked()
	}
	if was != snap.Connected {
		t.transitions++
	}
	t.mu.Unlock()

	if was != snap.Connected {
		t.recordTransition(snap.Connected)
	}
	t.changed()
	return nil
}

// Retry asks the backend to retry the connection. It fails with a BUSY error
// while another retry or connect is in flight. Connected is not touched; the
// outcome arrives as a push event.
func (t *Tracker[X]) Retry(ctx context.Context) error {
	if err := t.acquire(); err != nil {
		return err
	}
	defer t.release()

	if err := t.svc.Retry(ctx, t.be); err != nil {
		t.log.WithContext(ctx).WithError(err).Info("Retry failed")
		return err
	}
	return nil
}

// Connect connects with clientID ("" selects the default). On failure the
// error becomes the active error and is returned.
func (t *Tracker[X]) Connect(ctx context.Context, clientID string) error {
	if !t.svc.SupportsConnect() {
		return t.svc.Connect(ctx, t.be, clientID)
	}

	if err := t.acquire(); err != nil {
		return err
	}
	defer t.release()

	t.mu.Lock()
	gen := t.transitions
	t.mu.Unlock()

	err := t.svc.Connect(ctx, t.be, clientID)
	if err == nil {
		return nil
	}

	code := apperrors.CodeOf(err)
	if code == "" {
		code = t.svc.ConnectFailureCode()
	}
	rec := catalog.Fallback(code, t.svc.Name())

	t.mu.Lock()
	if !t.state.Connected && t.transitions == gen {
		t.setErrorLocked(rec)
	}
	t.mu.Unlock()
	t.changed()

	t.log.WithContext(ctx).WithError(err).Info("Connect failed",
		"code", code,
		"client_id", security.MaskMiddle(clientID),
	)
	return err
}

func (t *Tracker[X]) acquire() error {
	t.mu.Lock()
	if t.state.Busy {
		t.mu.Unlock()
		return apperrors.BusyError(t.svc.Name())
	}
	t.state.Busy = true
	t.mu.Unlock()
	t.changed()
	return nil
}

func (t *Tracker[X]) release() {
	t.mu.Lock()
	t.state.Busy = false
	t.mu.Unlock()
	t.changed()
}

// OnPushConnected implements bridge.Listener.
func (t *Tracker[X]) OnPushConnected(ctx context.Context) {
	t.mu.Lock()
	was := t.state.Connected
	t.state.Connected = true
	t.svc.OnConnected(&t.state.Extras)
	t.clearErrorLocked()
	if !was || t.state.LastConnectedAt == nil {
		now := t.now()
		t.state.LastConnectedAt = &now
	}
	if !was {
		t.transitions++
	}
	t.mu.Unlock()

	if !was {
		t.log.WithContext(ctx).Info("Connection restored")
		t.recordTransition(true)
	}
	t.changed()
}

// OnPushDisconnected implements bridge.Listener. The code is resolved
// through the catalog; a restoration that arrives meanwhile wins.
func (t *Tracker[X]) OnPushDisconnected(ctx context.Context, code string) {
	t.mu.Lock()
	was := t.state.Connected
	t.state.Connected = false
	t.svc.OnDisconnected(&t.state.Extras)
	t.transitions++
	gen := t.transitions
	t.mu.Unlock()

	if code == "" {
		code = backend.DefaultDisconnectCode(t.svc.Name())
	}
	t.log.WithContext(ctx).Info("Connection lost", "code", code)
	if was {
		t.recordTransition(false)
	}
	t.changed()

	var rec catalog.ErrorRecord
	if t.opts.Resolver != nil {
		rec = t.opts.Resolver.Resolve(ctx, code, t.svc.Name())
	} else {
		rec = catalog.Fallback(code, t.svc.Name())
	}

	t.mu.Lock()
	if t.transitions != gen || t.state.Connected {
		t.mu.Unlock()
		return
	}
	t.setErrorLocked(rec)
	t.mu.Unlock()
	t.changed()
}

// OnPushRetryState implements bridge.Listener.
func (t *Tracker[X]) OnPushRetryState(ctx context.Context, st backend.RetryState) {
	t.mu.Lock()
	t.state.RetryState = st.Clone()
	t.mu.Unlock()
	t.changed()
}

func (t *Tracker[X]) setErrorLocked(rec catalog.ErrorRecord) {
	t.state.ActiveError = &rec
	if t.opts.Errors != nil {
		t.opts.Errors.Put(t.svc.Name(), rec)
	}
}

func (t *Tracker[X]) clearErrorLocked() {
	if t.state.ActiveError == nil {
		return
	}
	t.state.ActiveError = nil
	if t.opts.Errors != nil {
		t.opts.Errors.Remove(t.svc.Name())
	}
}

// NeedsReconnect implements reconnect.Target.
func (t *Tracker[X]) NeedsReconnect() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.svc.NeedsReconnect(t.state) && !t.state.Busy && !t.state.IsRetrying()
}

// Reconnect implements reconnect.Target.
func (t *Tracker[X]) Reconnect(ctx context.Context) error {
	if t.svc.SupportsConnect() {
		return t.Connect(ctx, "")
	}
	return t.Retry(ctx)
}

// State returns a copy of the current state.
func (t *Tracker[X]) State() State[X] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Connected reports whether the service is connected.
func (t *Tracker[X]) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Connected
}

// Busy reports whether a retry or connect is in flight.
func (t *Tracker[X]) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Busy
}

// IsRetrying reports whether the backend is retrying.
func (t *Tracker[X]) IsRetrying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.IsRetrying()
}

// HasError reports whether the service is in an error state.
func (t *Tracker[X]) HasError() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.svc.HasError(t.state)
}

// ActiveError returns a copy of the active error, or nil.
func (t *Tracker[X]) ActiveError() *catalog.ErrorRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.ActiveError == nil {
		return nil
	}
	rec := *t.state.ActiveError
	return &rec
}

// StatusLabel returns the display label of the current state.
func (t *Tracker[X]) StatusLabel() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.svc.Label(t.state)
}

// LastConnectedRelative formats the last connection time, e.g. "5 minutes ago".
func (t *Tracker[X]) LastConnectedRelative() string {
	t.mu.Lock()
	last := t.state.LastConnectedAt
	t.mu.Unlock()
	return timefmt.RelativeTo(last, t.now())
}

func (t *Tracker[X]) recordTransition(connected bool) {
	if t.opts.Metrics != nil {
		t.opts.Metrics.RecordTransition(t.svc.Name(), connected)
	}
}

func (t *Tracker[X]) changed() {
	if t.opts.OnChange != nil {
		t.opts.OnChange(t.svc.Name())
	}
}

var (
	_ bridge.Listener  = (*Tracker[NoExtras])(nil)
	_ reconnect.Target = (*Tracker[PlexExtras])(nil)
)
