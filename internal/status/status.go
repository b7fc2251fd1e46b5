// Package status derives the combined view of both connections.
package status

import (
	"github.com/plexcord/connstatus/internal/catalog"
)

// Health classifies both connections together.
type Health string

const (
	HealthHealthy Health = "healthy"
	HealthPartial Health = "partial"
	HealthError   Health = "error"
	HealthUnknown Health = "unknown"
)

// View is the read side of a tracker.
type View interface {
	Service() string
	Connected() bool
	Busy() bool
	HasError() bool
	IsRetrying() bool
	StatusLabel() string
	LastConnectedRelative() string
	ActiveError() *catalog.ErrorRecord
}

// SourcedError is an active error tagged with its service.
type SourcedError struct {
	Source string `json:"source"`
	catalog.ErrorRecord
}

// Aggregator combines the media server and presence views. It holds no
// state; every method reads the trackers afresh.
type Aggregator struct {
	plex    View
	discord View
}

// New creates an aggregator over the two views.
func New(plex, discord View) *Aggregator {
	return &Aggregator{plex: plex, discord: discord}
}

// AllConnected reports whether both services are connected.
func (a *Aggregator) AllConnected() bool {
	return a.plex.Connected() && a.discord.Connected()
}

// AnyConnected reports whether at least one service is connected.
func (a *Aggregator) AnyConnected() bool {
	return a.plex.Connected() || a.discord.Connected()
}

// HasErrors reports whether either service is in an error state.
func (a *Aggregator) HasErrors() bool {
	return a.plex.HasError() || a.discord.HasError()
}

// IsLoading reports whether a command is in flight for either service.
func (a *Aggregator) IsLoading() bool {
	return a.plex.Busy() || a.discord.Busy()
}

// Health classifies the pair of connections.
func (a *Aggregator) Health() Health {
	return Classify(a.plex.Connected(), a.discord.Connected(), a.HasErrors())
}

// Classify returns the health for the given connectivity and error flags.
func Classify(plexConnected, discordConnected, hasErrors bool) Health {
	switch {
	case plexConnected && discordConnected:
		return HealthHealthy
	case hasErrors:
		return HealthError
	case plexConnected != discordConnected:
		return HealthPartial
	}
	return HealthUnknown
}

// Errors returns the active errors, media server first.
func (a *Aggregator) Errors() []SourcedError {
	var out []SourcedError
	for _, v := range []View{a.plex, a.discord} {
		if rec := v.ActiveError(); rec != nil {
			out = append(out, SourcedError{Source: v.Service(), ErrorRecord: *rec})
		}
	}
	return out
}

// ServiceSummary is the display state of one service.
type ServiceSummary struct {
	Service       string               `json:"service"`
	Connected     bool                 `json:"connected"`
	Loading       bool                 `json:"loading"`
	Retrying      bool                 `json:"retrying"`
	Status        string               `json:"status"`
	LastConnected string               `json:"lastConnected"`
	Error         *catalog.ErrorRecord `json:"error,omitempty"`
}

// Summary is a point-in-time copy of everything the aggregator derives.
type Summary struct {
	Plex         ServiceSummary `json:"plex"`
	Discord      ServiceSummary `json:"discord"`
	AllConnected bool           `json:"allConnected"`
	AnyConnected bool           `json:"anyConnected"`
	HasErrors    bool           `json:"hasErrors"`
	IsLoading    bool           `json:"isLoading"`
	Health       Health         `json:"health"`
	Errors       []SourcedError `json:"errors"`
}

// Summary captures the current combined state.
func (a *Aggregator) Summary() Summary {
	return Summary{
		Plex:         summarize(a.plex),
		Discord:      summarize(a.discord),
		AllConnected: a.AllConnected(),
		AnyConnected: a.AnyConnected(),
		HasErrors:    a.HasErrors(),
		IsLoading:    a.IsLoading(),
		Health:       a.Health(),
		Errors:       a.Errors(),
	}
}

func summarize(v View) ServiceSummary {
	return ServiceSummary{
		Service:       v.Service(),
		Connected:     v.Connected(),
		Loading:       v.Busy(),
		Retrying:      v.IsRetrying(),
		Status:        v.StatusLabel(),
		LastConnected: v.LastConnectedRelative(),
		Error:         v.ActiveError(),
	}
}
