// Package backend defines the query, command and event boundary between the
// orchestrator and the process that owns the media server and presence
// connections.
package backend

import (
	"context"
	"time"

	"github.com/plexcord/connstatus/internal/catalog"
)

// Service identifiers used as event sources and error tags.
const (
	ServicePlex    = "plex"
	ServiceDiscord = "discord"
)

// Backend is the set of queries and commands the orchestrator relies on.
type Backend interface {
	GetPlexConnectionStatus(ctx context.Context) (PlexStatus, error)
	IsDiscordConnected(ctx context.Context) (bool, error)
	GetConnectionHistory(ctx context.Context) (ConnectionHistory, error)
	GetPlexRetryState(ctx context.Context) (RetryState, error)
	GetDiscordRetryState(ctx context.Context) (RetryState, error)
	GetErrorInfo(ctx context.Context, code string) (catalog.ErrorRecord, error)
	RetryPlexConnection(ctx context.Context) error
	RetryDiscordConnection(ctx context.Context) error
	// ConnectDiscord connects with clientID; empty selects the default ID.
	ConnectDiscord(ctx context.Context, clientID string) error
}

// PlexStatus is the media server status snapshot.
type PlexStatus struct {
	Connected    bool   `json:"connected"`
	Polling      bool   `json:"polling"`
	InErrorState bool   `json:"inErrorState"`
	ServerURL    string `json:"serverUrl"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

// ConnectionHistory holds the last successful connection per service.
type ConnectionHistory struct {
	PlexLastConnected    *time.Time `json:"plexLastConnected"`
	DiscordLastConnected *time.Time `json:"discordLastConnected"`
}

// RetryState is the backend's retry progress for one service. The
// orchestrator only displays it.
type RetryState struct {
	AttemptNumber      int           `json:"attemptNumber"`
	IsRetrying         bool          `json:"isRetrying"`
	NextRetryAt        *time.Time    `json:"nextRetryAt,omitempty"`
	NextRetryIn        time.Duration `json:"nextRetryIn"`
	LastError          string        `json:"lastError,omitempty"`
	LastErrorCode      string        `json:"lastErrorCode,omitempty"`
	MaxIntervalReached bool          `json:"maxIntervalReached"`
}

// Clone returns a copy that shares no pointers with s.
func (s *RetryState) Clone() *RetryState {
	if s == nil {
		return nil
	}
	c := *s
	if s.NextRetryAt != nil {
		t := *s.NextRetryAt
		c.NextRetryAt = &t
	}
	return &c
}
