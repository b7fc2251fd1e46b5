// Package orchestrator wires the connection trackers, the error manager and
// the status aggregator into one explicit instance.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/plexcord/connstatus/internal/alerts"
	"github.com/plexcord/connstatus/internal/backend"
	"github.com/plexcord/connstatus/internal/bridge"
	"github.com/plexcord/connstatus/internal/bus"
	"github.com/plexcord/connstatus/internal/catalog"
	"github.com/plexcord/connstatus/internal/config"
	"github.com/plexcord/connstatus/internal/metrics"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/logger"
	"github.com/plexcord/connstatus/internal/pkg/ratelimit"
	"github.com/plexcord/connstatus/internal/reconnect"
	"github.com/plexcord/connstatus/internal/status"
	"github.com/plexcord/connstatus/internal/tracker"
)

// Options configures an Orchestrator. Nil fields are built from Config.
type Options struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	// Bus carries push events and backend requests. When nil a bus is
	// created from Config.Bus and closed by Close.
	Bus bus.Bus

	// Backend answers queries and commands. When nil a bus client is used.
	Backend backend.Backend

	// Cache overrides the catalog cache chosen by Config.Catalog.
	Cache catalog.Cache
}

// Orchestrator owns one tracker per service and everything they share.
type Orchestrator struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics

	bus       bus.Bus
	ownsBus   bool
	backend   backend.Backend
	cache     catalog.Cache
	ownsCache bool
	events    *metrics.EventSubscriber

	alerts  *alerts.Manager
	plex    *tracker.Tracker[tracker.PlexExtras]
	discord *tracker.Tracker[tracker.NoExtras]
	status  *status.Aggregator

	changes chan string
}

// New builds an orchestrator. Nothing is subscribed until Initialize.
func New(opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := logger.OrDefault(opts.Logger).WithComponent("orchestrator")

	o := &Orchestrator{
		cfg:     cfg,
		log:     log,
		metrics: opts.Metrics,
		bus:     opts.Bus,
		backend: opts.Backend,
		cache:   opts.Cache,
		changes: make(chan string, 1),
	}

	if o.bus == nil {
		b, err := bus.NewBus(cfg.Bus, cfg.Backend.RequestTimeout, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		if o.metrics != nil {
			b = bus.NewInstrumentedBus(b, o.metrics)
		}
		o.bus = b
		o.ownsBus = true
	}

	if o.backend == nil {
		o.backend = backend.NewBusClient(o.bus, backend.ClientConfig{
			Source:  "orchestrator",
			Timeout: cfg.Backend.RequestTimeout,
			RateLimit: ratelimit.Config{
				RequestsPerSecond: cfg.Backend.RateLimit,
				Burst:             cfg.Backend.RateBurst,
			},
			Logger: opts.Logger,
		})
	}

	if o.cache == nil {
		cache, err := catalog.NewCache(cfg.Catalog)
		if err != nil {
			o.closeBus()
			return nil, fmt.Errorf("failed to create catalog cache: %w", err)
		}
		o.cache = cache
		o.ownsCache = true
	}

	resolverOpts := catalog.Options{
		Cache:  o.cache,
		TTL:    cfg.Catalog.TTL,
		Logger: opts.Logger,
	}
	trackerOpts := tracker.Options{
		Bridge:        bridge.New(o.bus, opts.Logger),
		AutoReconnect: cfg.Reconnect.Enabled,
		SettleDelay:   cfg.Reconnect.SettleDelay,
		Logger:        opts.Logger,
		OnChange:      o.notify,
	}
	if o.metrics != nil {
		resolverOpts.Metrics = o.metrics
		trackerOpts.Metrics = o.metrics
		o.events = metrics.NewEventSubscriber(o.metrics, o.bus)
	}

	resolver := catalog.NewResolver(o.backend, resolverOpts)
	o.alerts = alerts.NewManager(resolver, opts.Logger)

	trackerOpts.Resolver = resolver
	trackerOpts.Errors = o.alerts
	o.plex = tracker.NewPlex(o.backend, trackerOpts)
	o.discord = tracker.NewDiscord(o.backend, trackerOpts)
	o.status = status.New(o.plex, o.discord)

	return o, nil
}

// Initialize starts both trackers concurrently.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.events != nil {
		if err := o.events.SubscribeToEvents(ctx); err != nil {
			return fmt.Errorf("failed to subscribe push metrics: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.plex.Initialize(gctx) })
	g.Go(func() error { return o.discord.Initialize(gctx) })
	if err := g.Wait(); err != nil {
		o.Teardown()
		return err
	}

	o.log.Info("Connection trackers initialized",
		"plex", o.plex.StatusLabel(),
		"discord", o.discord.StatusLabel(),
	)
	return nil
}

// Refresh pulls a fresh snapshot for both services. Both refreshes run to
// completion and the first error is returned.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return o.plex.Refresh(ctx) })
	g.Go(func() error { return o.discord.Refresh(ctx) })
	return g.Wait()
}

// Retry asks the backend to reconnect source ("plex" or "discord").
func (o *Orchestrator) Retry(ctx context.Context, source string) error {
	switch strings.ToLower(source) {
	case backend.ServicePlex:
		return o.plex.Retry(ctx)
	case backend.ServiceDiscord:
		return o.discord.Retry(ctx)
	default:
		return apperrors.ValidationError(fmt.Sprintf("unknown service %q", source)).
			WithDetails(map[string]string{
				"service": source,
				"allowed": backend.ServicePlex + ", " + backend.ServiceDiscord,
			})
	}
}

// ConnectDiscord connects the presence service. An empty clientID falls back
// to the configured one, and then to the backend's default.
func (o *Orchestrator) ConnectDiscord(ctx context.Context, clientID string) error {
	if clientID == "" {
		clientID = o.cfg.Discord.ClientID
	}
	return o.discord.Connect(ctx, clientID)
}

// WaitSettled blocks until any armed auto-reconnect has finished.
func (o *Orchestrator) WaitSettled(ctx context.Context) error {
	for _, sup := range []*reconnect.Supervisor{o.plex.Supervisor(), o.discord.Supervisor()} {
		if sup == nil {
			continue
		}
		select {
		case <-sup.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Changes delivers the name of a service whose state changed. Bursts are
// coalesced: while one notification is pending, later ones are dropped.
func (o *Orchestrator) Changes() <-chan string {
	return o.changes
}

func (o *Orchestrator) notify(service string) {
	select {
	case o.changes <- service:
	default:
	}
}

// Status returns the aggregate view.
func (o *Orchestrator) Status() *status.Aggregator {
	return o.status
}

// Summary returns a point-in-time summary of both services.
func (o *Orchestrator) Summary() status.Summary {
	return o.status.Summary()
}

// Alerts returns the error manager.
func (o *Orchestrator) Alerts() *alerts.Manager {
	return o.alerts
}

// Plex returns the media server tracker.
func (o *Orchestrator) Plex() *tracker.Tracker[tracker.PlexExtras] {
	return o.plex
}

// Discord returns the presence tracker.
func (o *Orchestrator) Discord() *tracker.Tracker[tracker.NoExtras] {
	return o.discord
}

// Bus returns the event bus the orchestrator listens on.
func (o *Orchestrator) Bus() bus.Bus {
	return o.bus
}

// Teardown releases subscriptions and pending reconnects. Tracker state
// stays readable, and Initialize may be called again.
func (o *Orchestrator) Teardown() {
	o.plex.Teardown()
	o.discord.Teardown()
	if o.events != nil {
		o.events.Close()
	}
}

// Close tears down and then closes the bus and cache New created. The
// orchestrator cannot be initialized again afterwards.
func (o *Orchestrator) Close() {
	o.Teardown()
	if c, ok := o.cache.(io.Closer); ok && o.ownsCache {
		o.ownsCache = false
		if err := c.Close(); err != nil {
			o.log.Warn("Failed to close catalog cache", "error", err)
		}
	}
	o.closeBus()
}

func (o *Orchestrator) closeBus() {
	if !o.ownsBus {
		return
	}
	o.ownsBus = false
	if err := o.bus.Close(); err != nil {
		o.log.Warn("Failed to close event bus", "error", err)
	}
}
