package tracker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/plexcord/connstatus/internal/backend"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
)

// Status labels.
const (
	LabelConnected    = "Connected"
	LabelConnecting   = "Connecting..."
	LabelRetrying     = "Retrying..."
	LabelDisconnected = "Disconnected"
	LabelNotConnected = "Not Connected"
)

// Service holds what differs between the tracked services.
type Service[X any] interface {
	Name() string
	Fetch(ctx context.Context, be backend.Backend) (Snapshot[X], error)
	Retry(ctx context.Context, be backend.Backend) error
	// Connect is only supported by services that report SupportsConnect.
	Connect(ctx context.Context, be backend.Backend, clientID string) error
	SupportsConnect() bool
	// ConnectFailureCode is the code recorded when a connect error carries
	// none.
	ConnectFailureCode() string

	OnConnected(x *X)
	OnDisconnected(x *X)

	// NeedsReconnect decides from state alone; busy and retrying are
	// checked by the tracker.
	NeedsReconnect(s State[X]) bool
	HasError(s State[X]) bool
	Label(s State[X]) string
}

// PlexService tracks the media server connection.
type PlexService struct{}

// Name implements Service.
func (PlexService) Name() string { return backend.ServicePlex }

// Fetch implements Service.
func (PlexService) Fetch(ctx context.Context, be backend.Backend) (Snapshot[PlexExtras], error) {
	var (
		status  backend.PlexStatus
		history backend.ConnectionHistory
		retry   backend.RetryState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		status, err = be.GetPlexConnectionStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		history, err = be.GetConnectionHistory(gctx)
		return err
	})
	g.Go(func() (err error) {
		retry, err = be.GetPlexRetryState(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot[PlexExtras]{}, err
	}

	return Snapshot[PlexExtras]{
		Connected: status.Connected,
		Extras: PlexExtras{
			Polling:      status.Polling,
			InErrorState: status.InErrorState,
			Server: ServerIdentity{
				URL:      status.ServerURL,
				UserID:   status.UserID,
				UserName: status.UserName,
			},
		},
		LastConnectedAt: history.PlexLastConnected,
		RetryState:      retry,
	}, nil
}

// Retry implements Service.
func (PlexService) Retry(ctx context.Context, be backend.Backend) error {
	return be.RetryPlexConnection(ctx)
}

// Connect implements Service. The media server has no connect command.
func (PlexService) Connect(ctx context.Context, be backend.Backend, clientID string) error {
	return apperrors.ValidationError("plex does not support connect")
}

// SupportsConnect implements Service.
func (PlexService) SupportsConnect() bool { return false }

// ConnectFailureCode implements Service.
func (PlexService) ConnectFailureCode() string { return apperrors.CodePlexConnFailed }

// OnConnected implements Service.
func (PlexService) OnConnected(x *PlexExtras) { x.InErrorState = false }

// OnDisconnected implements Service.
func (PlexService) OnDisconnected(x *PlexExtras) { x.InErrorState = true }

// NeedsReconnect implements Service. A connected server that is not being
// polled also needs a retry.
func (PlexService) NeedsReconnect(s State[PlexExtras]) bool {
	return !s.Connected || !s.Extras.Polling
}

// HasError implements Service.
func (PlexService) HasError(s State[PlexExtras]) bool {
	return s.Extras.InErrorState || s.ActiveError != nil
}

// Label implements Service.
func (PlexService) Label(s State[PlexExtras]) string {
	switch {
	case s.Connected && s.Extras.Polling:
		return LabelConnected
	case s.Busy:
		return LabelConnecting
	case s.IsRetrying():
		return LabelRetrying
	case s.Extras.InErrorState || s.ActiveError != nil:
		return LabelDisconnected
	}
	return LabelNotConnected
}

// DiscordService tracks the presence connection.
type DiscordService struct{}

// Name implements Service.
func (DiscordService) Name() string { return backend.ServiceDiscord }

// Fetch implements Service.
func (DiscordService) Fetch(ctx context.Context, be backend.Backend) (Snapshot[NoExtras], error) {
	var (
		connected bool
		history   backend.ConnectionHistory
		retry     backend.RetryState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		connected, err = be.IsDiscordConnected(gctx)
		return err
	})
	g.Go(func() (err error) {
		history, err = be.GetConnectionHistory(gctx)
		return err
	})
	g.Go(func() (err error) {
		retry, err = be.GetDiscordRetryState(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot[NoExtras]{}, err
	}

	return Snapshot[NoExtras]{
		Connected:       connected,
		LastConnectedAt: history.DiscordLastConnected,
		RetryState:      retry,
	}, nil
}

// Retry implements Service.
func (DiscordService) Retry(ctx context.Context, be backend.Backend) error {
	return be.RetryDiscordConnection(ctx)
}

// Connect implements Service.
func (DiscordService) Connect(ctx context.Context, be backend.Backend, clientID string) error {
	return be.ConnectDiscord(ctx, clientID)
}

// SupportsConnect implements Service.
func (DiscordService) SupportsConnect() bool { return true }

// ConnectFailureCode implements Service.
func (DiscordService) ConnectFailureCode() string { return apperrors.CodeDiscordConnFailed }

// OnConnected implements Service.
func (DiscordService) OnConnected(*NoExtras) {}

// OnDisconnected implements Service.
func (DiscordService) OnDisconnected(*NoExtras) {}

// NeedsReconnect implements Service.
func (DiscordService) NeedsReconnect(s State[NoExtras]) bool { return !s.Connected }

// HasError implements Service.
func (DiscordService) HasError(s State[NoExtras]) bool { return s.ActiveError != nil }

// Label implements Service.
func (DiscordService) Label(s State[NoExtras]) string {
	switch {
	case s.Connected:
		return LabelConnected
	case s.Busy:
		return LabelConnecting
	case s.IsRetrying():
		return LabelRetrying
	case s.ActiveError != nil:
		return LabelDisconnected
	}
	return LabelNotConnected
}

var (
	_ Service[PlexExtras] = PlexService{}
	_ Service[NoExtras]   = DiscordService{}
)
