package tracker

import (
	"time"

	"github.com/plexcord/connstatus/internal/backend"
	"github.com/plexcord/connstatus/internal/catalog"
)

// ServerIdentity identifies the media server and the signed-in user.
type ServerIdentity struct {
	URL      string `json:"url"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// PlexExtras is the media server specific part of the state.
type PlexExtras struct {
	Polling      bool           `json:"polling"`
	Server       ServerIdentity `json:"server"`
	InErrorState bool           `json:"inErrorState"`
}

// NoExtras is used by services without extra state.
type NoExtras struct{}

// State is the tracked connection state of one service. Connected and a
// non-nil ActiveError are never observed together.
type State[X any] struct {
	Connected       bool                 `json:"connected"`
	Extras          X                    `json:"extras"`
	LastConnectedAt *time.Time           `json:"lastConnectedAt,omitempty"`
	RetryState      *backend.RetryState  `json:"retryState,omitempty"`
	ActiveError     *catalog.ErrorRecord `json:"activeError,omitempty"`
	Busy            bool                 `json:"busy"`
}

// clone returns a copy that shares no pointers with s.
func (s State[X]) clone() State[X] {
	c := s
	if s.LastConnectedAt != nil {
		t := *s.LastConnectedAt
		c.LastConnectedAt = &t
	}
	c.RetryState = s.RetryState.Clone()
	if s.ActiveError != nil {
		e := *s.ActiveError
		c.ActiveError = &e
	}
	return c
}

// IsRetrying reports whether the backend is retrying the connection.
func (s State[X]) IsRetrying() bool {
	return s.RetryState != nil && s.RetryState.IsRetrying
}

// Snapshot is the result of one authoritative refresh.
type Snapshot[X any] struct {
	Connected       bool
	Extras          X
	LastConnectedAt *time.Time
	RetryState      backend.RetryState
}
