package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/plexcord/connstatus/internal/pkg/errors"
)

// LoggedEvent represents an event that has been journaled to disk.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger journals bus traffic to disk for debugging and replay.
// Events are written as JSON lines (one JSON object per line).
type EventLogger struct {
	logPath string
	mu      sync.Mutex
	file    *os.File
	enabled bool
	encoder *json.Encoder
}

// NewEventLogger creates a new event logger.
// If enabled is false, the logger will be created but will not write events.
func NewEventLogger(logPath string, enabled bool) (*EventLogger, error) {
	logger := &EventLogger{
		logPath: logPath,
		enabled: enabled,
	}

	if !enabled {
		return logger, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger.file = file
	logger.encoder = json.NewEncoder(file)

	return logger, nil
}

// OpenEventLog opens an existing journal for reading only.
func OpenEventLog(logPath string) *EventLogger {
	return &EventLogger{logPath: logPath, enabled: true}
}

// Log writes an event to the log file.
// If the logger is disabled, this is a no-op.
func (l *EventLogger) Log(topic string, event Event) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeInternal, "event logger not open for writing")
	}

	loggedEvent := LoggedEvent{
		Event:     event,
		Topic:     topic,
		Timestamp: time.Now(),
	}

	if err := l.encoder.Encode(loggedEvent); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	// Flush so a crash leaves a complete journal
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	return nil
}

// GetEvents reads events from the log file.
// Returns events that occurred after the 'since' timestamp, in chronological
// order. If limit > 0, returns at most that many events.
func (l *EventLogger) GetEvents(since time.Time, limit int) ([]LoggedEvent, error) {
	events, err := l.scan(func(e LoggedEvent) bool { return e.Timestamp.After(since) }, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Tail returns the last n events, optionally restricted to one topic.
func (l *EventLogger) Tail(n int, topic string) ([]LoggedEvent, error) {
	events, err := l.scan(func(e LoggedEvent) bool { return topic == "" || e.Topic == topic }, 0)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

func (l *EventLogger) scan(keep func(LoggedEvent) bool, limit int) ([]LoggedEvent, error) {
	if !l.enabled {
		return nil, errors.New(errors.CodeUnavailable, "event logging is disabled")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []LoggedEvent{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	events := []LoggedEvent{}
	scanner := bufio.NewScanner(file)

	const maxScanTokenSize = 1024 * 1024 // 1MB
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		var loggedEvent LoggedEvent
		if err := json.Unmarshal(scanner.Bytes(), &loggedEvent); err != nil {
			// Skip malformed lines
			continue
		}

		if !keep(loggedEvent) {
			continue
		}
		events = append(events, loggedEvent)
		if limit > 0 && len(events) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}

	return events, nil
}

// Replay reads push events from the log file and publishes them to the bus.
// Request and response traffic is skipped since nobody is waiting for it.
// Only events that occurred after 'since' will be replayed.
func (l *EventLogger) Replay(ctx context.Context, bus Bus, since time.Time) (int, error) {
	events, err := l.GetEvents(since, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to get events: %w", err)
	}

	push := make(map[string]bool)
	for _, t := range PushTopics() {
		push[t] = true
	}

	replayed := 0
	for _, loggedEvent := range events {
		if !push[loggedEvent.Topic] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		if err := bus.Publish(ctx, loggedEvent.Topic, loggedEvent.Event); err != nil {
			return replayed, fmt.Errorf("failed to replay event %s: %w", loggedEvent.Event.ID, err)
		}
		replayed++
	}

	return replayed, nil
}

// Close closes the log file.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.file = nil
		l.encoder = nil
	}

	return nil
}

// IsEnabled returns true if the logger is enabled.
func (l *EventLogger) IsEnabled() bool {
	return l.enabled
}

// Path returns the journal location.
func (l *EventLogger) Path() string {
	return l.logPath
}
