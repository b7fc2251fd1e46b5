package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plexcord/connstatus/internal/config"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/logger"
)

type fakeSource struct {
	calls atomic.Int32
	rec   ErrorRecord
	err   error
}

func (f *fakeSource) GetErrorInfo(ctx context.Context, code string) (ErrorRecord, error) {
	f.calls.Add(1)
	if f.err != nil {
		return ErrorRecord{}, f.err
	}
	rec := f.rec
	if rec.Code == "" {
		rec = Lookup(code)
	}
	return rec, nil
}

type countingRecorder struct {
	outcomes map[string]int
}

func (c *countingRecorder) RecordCatalogLookup(outcome string) {
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}

func TestFallback(t *testing.T) {
	tests := []struct {
		code    string
		service string
		want    string
	}{
		{apperrors.CodeDiscordNotRunning, "discord", "Failed to connect to Discord"},
		{apperrors.CodePlexUnreachable, "plex", "Failed to connect to Plex"},
		{"X", "jellyfin", "Failed to connect to Jellyfin"},
	}

	for _, tt := range tests {
		rec := Fallback(tt.code, tt.service)
		if rec.Code != tt.code {
			t.Errorf("Fallback().Code = %s, want %s", rec.Code, tt.code)
		}
		if rec.Title != "Connection Error" {
			t.Errorf("Fallback().Title = %s", rec.Title)
		}
		if rec.Description != tt.want {
			t.Errorf("Fallback().Description = %s, want %s", rec.Description, tt.want)
		}
		if rec.Suggestion != "Please check your connection and try again." {
			t.Errorf("Fallback().Suggestion = %s", rec.Suggestion)
		}
		if !rec.Retryable {
			t.Error("Fallback().Retryable = false, want true")
		}
	}
}

func TestLookup(t *testing.T) {
	rec := Lookup(apperrors.CodePlexAuthFailed)
	if rec.Title != "Plex Authentication Failed" || rec.Retryable {
		t.Errorf("Lookup(PLEX_AUTH_FAILED) = %+v", rec)
	}

	rec = Lookup("SOMETHING_NEW")
	if rec.Code != "SOMETHING_NEW" {
		t.Errorf("Lookup(unknown).Code = %s, want SOMETHING_NEW", rec.Code)
	}
	if rec.Title != "Unexpected Error" {
		t.Errorf("Lookup(unknown).Title = %s, want Unexpected Error", rec.Title)
	}
	if Known("SOMETHING_NEW") {
		t.Error("Known(unknown) = true")
	}
}

func TestCodeHelpers(t *testing.T) {
	tests := []struct {
		code       string
		retryable  bool
		auth       bool
		connection bool
	}{
		{apperrors.CodePlexUnreachable, true, false, true},
		{apperrors.CodePlexAuthFailed, false, true, false},
		{apperrors.CodeDiscordNotRunning, true, false, true},
		{apperrors.CodeDiscordClientIDInvalid, false, false, false},
		{apperrors.CodeDecryptionFailed, false, true, false},
		{apperrors.CodeTimeout, true, false, true},
		{"NEVER_SEEN", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := IsRetryable(tt.code); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsAuthError(tt.code); got != tt.auth {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.auth)
			}
			if got := IsConnectionError(tt.code); got != tt.connection {
				t.Errorf("IsConnectionError() = %v, want %v", got, tt.connection)
			}
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("backend answer", func(t *testing.T) {
		src := &fakeSource{}
		rec := NewResolver(src, Options{Logger: logger.Discard()}).Resolve(ctx, apperrors.CodeDiscordNotRunning, "discord")
		if rec.Title != "Discord Not Running" {
			t.Errorf("Resolve() = %+v", rec)
		}
	})

	t.Run("backend failure falls back", func(t *testing.T) {
		src := &fakeSource{err: errors.New("bus closed")}
		rec := NewResolver(src, Options{Logger: logger.Discard()}).Resolve(ctx, apperrors.CodeDiscordNotRunning, "discord")
		want := Fallback(apperrors.CodeDiscordNotRunning, "discord")
		if rec != want {
			t.Errorf("Resolve() = %+v, want %+v", rec, want)
		}
	})

	t.Run("nil source falls back", func(t *testing.T) {
		rec := NewResolver(nil, Options{Logger: logger.Discard()}).Resolve(ctx, apperrors.CodePlexUnreachable, "plex")
		if rec.Description != "Failed to connect to Plex" {
			t.Errorf("Resolve() = %+v", rec)
		}
	})

	t.Run("empty code", func(t *testing.T) {
		rec := NewResolver(nil, Options{Logger: logger.Discard()}).Resolve(ctx, "", "plex")
		if rec.Code != apperrors.CodeUnknown {
			t.Errorf("Resolve(\"\").Code = %s, want %s", rec.Code, apperrors.CodeUnknown)
		}
	})

	t.Run("partial backend answer", func(t *testing.T) {
		src := &fakeSource{rec: ErrorRecord{Code: "CUSTOM", Retryable: false}}
		rec := NewResolver(src, Options{Logger: logger.Discard()}).Resolve(ctx, "CUSTOM", "plex")
		if rec.Title != FallbackTitle || rec.Description != "Failed to connect to Plex" {
			t.Errorf("Resolve() = %+v, want fallback texts", rec)
		}
		if rec.Retryable {
			t.Error("Resolve() should keep the backend's retryable flag")
		}
	})
}

func TestResolver_Cache(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	rec := &countingRecorder{}
	r := NewResolver(src, Options{
		Cache:   NewMemoryCache(),
		TTL:     time.Minute,
		Logger:  logger.Discard(),
		Metrics: rec,
	})

	for i := 0; i < 3; i++ {
		r.Resolve(ctx, apperrors.CodePlexUnreachable, "plex")
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("source called %d times, want 1", got)
	}
	if rec.outcomes[OutcomeBackend] != 1 || rec.outcomes[OutcomeCache] != 2 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}

	// Fallback records are never cached
	failing := &fakeSource{err: errors.New("down")}
	cache := NewMemoryCache()
	r = NewResolver(failing, Options{Cache: cache, Logger: logger.Discard()})
	r.Resolve(ctx, apperrors.CodeDiscordConnFailed, "discord")
	if cache.Len() != 0 {
		t.Errorf("cache holds %d entries after a fallback, want 0", cache.Len())
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(ctx, Lookup(apperrors.CodeTimeout), time.Second)
	if _, ok, _ := c.Get(ctx, apperrors.CodeTimeout); !ok {
		t.Fatal("Get() before expiry = miss")
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := c.Get(ctx, apperrors.CodeTimeout); ok {
		t.Error("Get() after expiry = hit")
	}

	c.Set(ctx, Lookup(apperrors.CodeUnknown), 0)
	now = now.Add(24 * time.Hour)
	if _, ok, _ := c.Get(ctx, apperrors.CodeUnknown); !ok {
		t.Error("Get() for entry without ttl = miss")
	}
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(config.CatalogConfig{CacheType: "none"})
	if err != nil || c != nil {
		t.Errorf("NewCache(none) = %v, %v", c, err)
	}

	c, err = NewCache(config.CatalogConfig{CacheType: "memory"})
	if err != nil {
		t.Fatalf("NewCache(memory) error = %v", err)
	}
	if _, ok := c.(*MemoryCache); !ok {
		t.Errorf("NewCache(memory) = %T", c)
	}

	if _, err := NewCache(config.CatalogConfig{CacheType: "memcached"}); err == nil {
		t.Error("NewCache(unknown) should fail")
	}
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url"); err == nil {
		t.Error("NewRedisCache() with invalid URL should fail")
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	c, err := NewRedisCache("redis://localhost:6379/15")
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer c.Close()

	ctx := context.Background()
	defer c.Clear(ctx)

	want := Lookup(apperrors.CodeDiscordNotRunning)
	if err := c.Set(ctx, want, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, want.Code)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	if _, ok, err := c.Get(ctx, "MISSING"); ok || err != nil {
		t.Errorf("Get(missing) = %v, %v", ok, err)
	}
}
