package backend

import (
	"context"
	"time"

	"github.com/plexcord/connstatus/internal/bus"
	"github.com/plexcord/connstatus/internal/catalog"
	reqctx "github.com/plexcord/connstatus/internal/pkg/context"
	"github.com/plexcord/connstatus/internal/pkg/logger"
	"github.com/plexcord/connstatus/internal/pkg/ratelimit"
)

// BusClient implements Backend by sending requests over a bus.
type BusClient struct {
	bus     bus.Bus
	source  string
	timeout time.Duration
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

// ClientConfig configures a BusClient.
type ClientConfig struct {
	// Source tags outgoing requests.
	Source string
	// Timeout bounds each request. 0 leaves the caller's deadline alone.
	Timeout   time.Duration
	RateLimit ratelimit.Config
	Logger    *logger.Logger
}

// NewBusClient creates a client that talks to a backend served on b.
func NewBusClient(b bus.Bus, cfg ClientConfig) *BusClient {
	if cfg.Source == "" {
		cfg.Source = "orchestrator"
	}
	return &BusClient{
		bus:     b,
		source:  cfg.Source,
		timeout: cfg.Timeout,
		limiter: ratelimit.New(cfg.RateLimit),
		log:     logger.OrDefault(cfg.Logger).WithComponent("backend-client"),
	}
}

// call sends payload on topic and decodes the reply into T.
func call[T any](ctx context.Context, c *BusClient, topic string, payload any) (T, error) {
	var zero T

	if err := c.limiter.Wait(ctx, topic); err != nil {
		return zero, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := bus.NewRequest(topic, c.source, payload)
	ctx = reqctx.WithCorrelationID(ctx, req.CorrelationID)

	resp, err := c.bus.Request(ctx, topic, req)
	if err != nil {
		c.log.WithContext(ctx).Debug("Backend request failed", "topic", topic, "error", err.Error())
		return zero, err
	}

	return decodeReply[T](resp)
}

// GetPlexConnectionStatus implements Backend.
func (c *BusClient) GetPlexConnectionStatus(ctx context.Context) (PlexStatus, error) {
	return call[PlexStatus](ctx, c, bus.TopicQueryPlexStatus, nil)
}

// IsDiscordConnected implements Backend.
func (c *BusClient) IsDiscordConnected(ctx context.Context) (bool, error) {
	return call[bool](ctx, c, bus.TopicQueryDiscordStatus, nil)
}

// GetConnectionHistory implements Backend.
func (c *BusClient) GetConnectionHistory(ctx context.Context) (ConnectionHistory, error) {
	return call[ConnectionHistory](ctx, c, bus.TopicQueryHistory, nil)
}

// GetPlexRetryState implements Backend.
func (c *BusClient) GetPlexRetryState(ctx context.Context) (RetryState, error) {
	return call[RetryState](ctx, c, bus.TopicQueryPlexRetryState, nil)
}

// GetDiscordRetryState implements Backend.
func (c *BusClient) GetDiscordRetryState(ctx context.Context) (RetryState, error) {
	return call[RetryState](ctx, c, bus.TopicQueryDiscordRetryState, nil)
}

// GetErrorInfo implements Backend and catalog.Source.
func (c *BusClient) GetErrorInfo(ctx context.Context, code string) (catalog.ErrorRecord, error) {
	return call[catalog.ErrorRecord](ctx, c, bus.TopicQueryErrorInfo, ErrorInfoQuery{Code: code})
}

// RetryPlexConnection implements Backend.
func (c *BusClient) RetryPlexConnection(ctx context.Context) error {
	_, err := call[struct{}](ctx, c, bus.TopicCmdPlexRetry, nil)
	return err
}

// RetryDiscordConnection implements Backend.
func (c *BusClient) RetryDiscordConnection(ctx context.Context) error {
	_, err := call[struct{}](ctx, c, bus.TopicCmdDiscordRetry, nil)
	return err
}

// ConnectDiscord implements Backend.
func (c *BusClient) ConnectDiscord(ctx context.Context, clientID string) error {
	_, err := call[struct{}](ctx, c, bus.TopicCmdDiscordConnect, ConnectCommand{ClientID: clientID})
	return err
}
