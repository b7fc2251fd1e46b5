package catalog

import (
	"context"
	"time"

	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/logger"
)

// Source answers error-info queries. The backend client implements it.
type Source interface {
	GetErrorInfo(ctx context.Context, code string) (ErrorRecord, error)
}

// Lookup outcomes reported to a Recorder.
const (
	OutcomeCache    = "cache"
	OutcomeBackend  = "backend"
	OutcomeFallback = "fallback"
)

// Recorder observes lookups. metrics.Metrics implements it.
type Recorder interface {
	RecordCatalogLookup(outcome string)
}

// Options configures a Resolver.
type Options struct {
	Cache   Cache
	TTL     time.Duration
	Logger  *logger.Logger
	Metrics Recorder
}

// Resolver turns error codes into records, consulting the cache and then the
// source, and degrading to Fallback.
type Resolver struct {
	source  Source
	cache   Cache
	ttl     time.Duration
	log     *logger.Logger
	metrics Recorder
}

// NewResolver creates a resolver over source. A nil source always falls back.
func NewResolver(source Source, opts Options) *Resolver {
	return &Resolver{
		source:  source,
		cache:   opts.Cache,
		ttl:     opts.TTL,
		log:     logger.OrDefault(opts.Logger).WithComponent("catalog"),
		metrics: opts.Metrics,
	}
}

// Resolve returns the record for code as seen by service. It never fails.
func (r *Resolver) Resolve(ctx context.Context, code, service string) ErrorRecord {
	if code == "" {
		code = apperrors.CodeUnknown
	}

	if r.cache != nil {
		rec, ok, err := r.cache.Get(ctx, code)
		if err != nil {
			r.log.Debug("Catalog cache read failed", "code", code, "error", err.Error())
		} else if ok {
			r.record(OutcomeCache)
			return rec
		}
	}

	if r.source == nil {
		r.record(OutcomeFallback)
		return Fallback(code, service)
	}

	rec, err := r.source.GetErrorInfo(ctx, code)
	if err != nil {
		r.log.Warn("Failed to get error info",
			"code", code,
			"service", service,
			"error", err.Error(),
		)
		r.record(OutcomeFallback)
		return Fallback(code, service)
	}

	rec = complete(rec, code, service)
	r.record(OutcomeBackend)

	if r.cache != nil {
		if err := r.cache.Set(ctx, rec, r.ttl); err != nil {
			r.log.Debug("Catalog cache write failed", "code", code, "error", err.Error())
		}
	}

	return rec
}

// complete fills the fields a partial backend answer left empty.
func complete(rec ErrorRecord, code, service string) ErrorRecord {
	if rec.Code == "" {
		rec.Code = code
	}
	if rec.Title == "" {
		fb := Fallback(rec.Code, service)
		rec.Title = fb.Title
		if rec.Description == "" {
			rec.Description = fb.Description
		}
		if rec.Suggestion == "" {
			rec.Suggestion = fb.Suggestion
		}
	}
	return rec
}

func (r *Resolver) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordCatalogLookup(outcome)
	}
}
