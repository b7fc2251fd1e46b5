package backend

import (
	"context"
	"sync"
	"time"

	"github.com/plexcord/connstatus/internal/catalog"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/security"
)

// Operation names accepted by StaticBackend.FailNext and Calls.
const (
	OpPlexStatus        = "GetPlexConnectionStatus"
	OpDiscordStatus     = "IsDiscordConnected"
	OpHistory           = "GetConnectionHistory"
	OpPlexRetryState    = "GetPlexRetryState"
	OpDiscordRetryState = "GetDiscordRetryState"
	OpErrorInfo         = "GetErrorInfo"
	OpRetryPlex         = "RetryPlexConnection"
	OpRetryDiscord      = "RetryDiscordConnection"
	OpConnectDiscord    = "ConnectDiscord"
)

// StaticBackend is an in-memory Backend. It keeps the state a real backend
// would report, lets callers inject failures and counts calls. With a
// Publisher attached, the Simulate* methods and successful commands also
// emit the matching push events.
type StaticBackend struct {
	mu sync.Mutex

	plex           PlexStatus
	discord        bool
	discordRunning bool
	plexReachable  bool
	history        ConnectionHistory
	plexRetry      RetryState
	discordRetry   RetryState

	delay time.Duration
	fail  map[string]error
	calls map[string]int

	pub *Publisher
	now func() time.Time
}

// NewStaticBackend creates a simulator with both services disconnected but
// reachable.
func NewStaticBackend() *StaticBackend {
	return &StaticBackend{
		discordRunning: true,
		plexReachable:  true,
		fail:           make(map[string]error),
		calls:          make(map[string]int),
		now:            time.Now,
	}
}

// WithPublisher attaches a publisher for push events.
func (s *StaticBackend) WithPublisher(p *Publisher) *StaticBackend {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pub = p
	return s
}

// WithDelay makes every call wait d before answering.
func (s *StaticBackend) WithDelay(d time.Duration) *StaticBackend {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	return s
}

// SetPlexStatus replaces the media server snapshot.
func (s *StaticBackend) SetPlexStatus(st PlexStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plex = st
	if st.Connected {
		t := s.now()
		s.history.PlexLastConnected = &t
	}
}

// SetDiscordConnected sets the presence connection flag.
func (s *StaticBackend) SetDiscordConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discord = connected
	if connected {
		t := s.now()
		s.history.DiscordLastConnected = &t
	}
}

// SetHistory replaces the connection history.
func (s *StaticBackend) SetHistory(h ConnectionHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = h
}

// SetRetryState replaces the retry snapshot of service.
func (s *StaticBackend) SetRetryState(service string, st RetryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if service == ServiceDiscord {
		s.discordRetry = st
	} else {
		s.plexRetry = st
	}
}

// SetDiscordRunning controls whether connect attempts can succeed.
func (s *StaticBackend) SetDiscordRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discordRunning = running
}

// SetPlexReachable controls whether retry attempts can succeed.
func (s *StaticBackend) SetPlexReachable(reachable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plexReachable = reachable
}

// Fail makes op return err until cleared with Fail(op, nil).
func (s *StaticBackend) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Calls returns how many times op was invoked.
func (s *StaticBackend) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter counts the call, applies the configured delay and returns the
// injected failure for op.
func (s *StaticBackend) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	err := s.fail[op]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return apperrors.TimeoutError(op)
		case <-timer.C:
		}
	}
	return err
}

// GetPlexConnectionStatus implements Backend.
func (s *StaticBackend) GetPlexConnectionStatus(ctx context.Context) (PlexStatus, error) {
	if err := s.enter(ctx, OpPlexStatus); err != nil {
		return PlexStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plex, nil
}

// IsDiscordConnected implements Backend.
func (s *StaticBackend) IsDiscordConnected(ctx context.Context) (bool, error) {
	if err := s.enter(ctx, OpDiscordStatus); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discord, nil
}

// GetConnectionHistory implements Backend.
func (s *StaticBackend) GetConnectionHistory(ctx context.Context) (ConnectionHistory, error) {
	if err := s.enter(ctx, OpHistory); err != nil {
		return ConnectionHistory{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConnectionHistory{
		PlexLastConnected:    copyTime(s.history.PlexLastConnected),
		DiscordLastConnected: copyTime(s.history.DiscordLastConnected),
	}, nil
}

// GetPlexRetryState implements Backend.
func (s *StaticBackend) GetPlexRetryState(ctx context.Context) (RetryState, error) {
	if err := s.enter(ctx, OpPlexRetryState); err != nil {
		return RetryState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.plexRetry.Clone(), nil
}

// GetDiscordRetryState implements Backend.
func (s *StaticBackend) GetDiscordRetryState(ctx context.Context) (RetryState, error) {
	if err := s.enter(ctx, OpDiscordRetryState); err != nil {
		return RetryState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.discordRetry.Clone(), nil
}

// GetErrorInfo implements Backend from the built-in catalog table.
func (s *StaticBackend) GetErrorInfo(ctx context.Context, code string) (catalog.ErrorRecord, error) {
	if err := s.enter(ctx, OpErrorInfo); err != nil {
		return catalog.ErrorRecord{}, err
	}
	return catalog.Lookup(code), nil
}

// RetryPlexConnection implements Backend. When the server is reachable the
// connection comes back and a restoration is published.
func (s *StaticBackend) RetryPlexConnection(ctx context.Context) error {
	if err := s.enter(ctx, OpRetryPlex); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.plexReachable {
		s.mu.Unlock()
		return apperrors.New(apperrors.CodePlexUnreachable, "Plex server is unreachable")
	}
	s.setPlexConnectedLocked()
	pub := s.pub
	s.mu.Unlock()

	if pub != nil {
		return pub.PlexConnectionRestored(ctx)
	}
	return nil
}

// RetryDiscordConnection implements Backend.
func (s *StaticBackend) RetryDiscordConnection(ctx context.Context) error {
	if err := s.enter(ctx, OpRetryDiscord); err != nil {
		return err
	}
	return s.connectDiscord(ctx)
}

// ConnectDiscord implements Backend.
func (s *StaticBackend) ConnectDiscord(ctx context.Context, clientID string) error {
	if err := s.enter(ctx, OpConnectDiscord); err != nil {
		return err
	}
	if err := security.ValidateClientID(clientID); err != nil {
		return err
	}
	return s.connectDiscord(ctx)
}

func (s *StaticBackend) connectDiscord(ctx context.Context) error {
	s.mu.Lock()
	if !s.discordRunning {
		s.mu.Unlock()
		return apperrors.New(apperrors.CodeDiscordNotRunning, "Discord is not running")
	}
	s.discord = true
	t := s.now()
	s.history.DiscordLastConnected = &t
	s.discordRetry = RetryState{}
	pub := s.pub
	s.mu.Unlock()

	if pub != nil {
		return pub.DiscordConnected(ctx)
	}
	return nil
}

func (s *StaticBackend) setPlexConnectedLocked() {
	s.plex.Connected = true
	s.plex.Polling = true
	s.plex.InErrorState = false
	t := s.now()
	s.history.PlexLastConnected = &t
	s.plexRetry = RetryState{}
}

// SimulatePlexLost drops the media server connection and publishes the loss
// with code.
func (s *StaticBackend) SimulatePlexLost(ctx context.Context, code string) error {
	s.mu.Lock()
	s.plex.Connected = false
	s.plex.Polling = false
	s.plex.InErrorState = true
	pub := s.pub
	s.mu.Unlock()

	if pub == nil {
		return nil
	}
	return pub.PlexConnectionLost(ctx, code)
}

// SimulatePlexRestored brings the media server connection back.
func (s *StaticBackend) SimulatePlexRestored(ctx context.Context) error {
	s.mu.Lock()
	s.setPlexConnectedLocked()
	pub := s.pub
	s.mu.Unlock()

	if pub == nil {
		return nil
	}
	return pub.PlexConnectionRestored(ctx)
}

// SimulateDiscordDisconnected drops the presence connection.
func (s *StaticBackend) SimulateDiscordDisconnected(ctx context.Context, code, message string) error {
	s.mu.Lock()
	s.discord = false
	pub := s.pub
	s.mu.Unlock()

	if pub == nil {
		return nil
	}
	return pub.DiscordDisconnected(ctx, code, message)
}

// SimulateRetryState publishes a retry snapshot for service and stores it.
func (s *StaticBackend) SimulateRetryState(ctx context.Context, service string, st RetryState) error {
	s.SetRetryState(service, st)

	s.mu.Lock()
	pub := s.pub
	s.mu.Unlock()

	if pub == nil {
		return nil
	}
	if service == ServiceDiscord {
		return pub.DiscordRetryState(ctx, st)
	}
	return pub.PlexRetryState(ctx, st)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

var _ Backend = (*StaticBackend)(nil)
var _ Backend = (*BusClient)(nil)
