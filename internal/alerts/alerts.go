// Package alerts keeps the deduplicated, source-tagged list of connection
// errors shown to the user.
package alerts

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/plexcord/connstatus/internal/catalog"
	"github.com/plexcord/connstatus/internal/pkg/logger"
)

// Resolver turns a code into a displayable record. It must not fail.
type Resolver interface {
	Resolve(ctx context.Context, code, service string) catalog.ErrorRecord
}

// Entry is one error shown for a source.
type Entry struct {
	Source    string              `json:"source"`
	Info      catalog.ErrorRecord `json:"info"`
	Dismissed bool                `json:"dismissed"`
	Timestamp time.Time           `json:"timestamp"`
}

// Manager holds at most one entry per source.
type Manager struct {
	mu       sync.RWMutex
	entries  []Entry
	resolver Resolver
	log      *logger.Logger
	now      func() time.Time
}

// NewManager creates a manager that resolves codes with resolver. A nil
// resolver uses the generic fallback record.
func NewManager(resolver Resolver, log *logger.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		log:      logger.OrDefault(log).WithComponent("alerts"),
		now:      time.Now,
	}
}

// Add resolves code and records it as the error of source, replacing any
// previous entry for that source.
func (m *Manager) Add(ctx context.Context, source, code string) catalog.ErrorRecord {
	var rec catalog.ErrorRecord
	if m.resolver != nil {
		rec = m.resolver.Resolve(ctx, code, source)
	} else {
		rec = catalog.Fallback(code, source)
	}

	m.Put(source, rec)
	return rec
}

// Put records an already resolved error for source.
func (m *Manager) Put(source string, rec catalog.ErrorRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(source)
	m.entries = append(m.entries, Entry{
		Source:    source,
		Info:      rec,
		Timestamp: m.now(),
	})

	m.log.Debug("Error recorded", "service", source, "code", rec.Code)
}

// Remove drops the entry for source.
func (m *Manager) Remove(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(source)
}

func (m *Manager) removeLocked(source string) {
	m.entries = slices.DeleteFunc(m.entries, func(e Entry) bool {
		return e.Source == source
	})
}

// Dismiss hides the entry for source from Active and For. It stays in All.
func (m *Manager) Dismiss(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].Source == source {
			m.entries[i].Dismissed = true
		}
	}
}

// ClearAll drops every entry.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// Active returns the entries that have not been dismissed, oldest first.
func (m *Manager) Active() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.Dismissed {
			out = append(out, e)
		}
	}
	return out
}

// All returns every entry including dismissed ones.
func (m *Manager) All() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries)
}

// For returns the non-dismissed entry of source.
func (m *Manager) For(source string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Source == source && !e.Dismissed {
			return e, true
		}
	}
	return Entry{}, false
}
