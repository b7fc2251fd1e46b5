package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
)

// Limiter provides per-key rate limiting.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
}

// Config configures the limiter.
type Config struct {
	// RequestsPerSecond is the rate limit per key. 0 disables limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size.
	Burst int
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 20,
		Burst:             10,
	}
}

// New creates a new limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    limit,
		burst:   burst,
	}
}

// bucket returns the limiter for a key, creating one if needed.
func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether a call for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Wait blocks until a call for key may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.bucket(key).Wait(ctx); err != nil {
		return apperrors.Wrap(apperrors.CodeTimeout, "rate limit wait for "+key, err)
	}
	return nil
}

// Keys returns the number of keys with a bucket.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
