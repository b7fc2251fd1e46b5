package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/plexcord/connstatus/internal/bus"
	reqctx "github.com/plexcord/connstatus/internal/pkg/context"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/logger"
	"github.com/plexcord/connstatus/internal/pkg/security"
)

// Server answers bus requests with a Backend implementation.
type Server struct {
	bus    bus.Bus
	impl   Backend
	source string
	log    *logger.Logger
	subs   []*bus.Subscription
}

// Serve subscribes impl to every request topic on b. Close the returned
// server to stop answering.
func Serve(ctx context.Context, b bus.Bus, impl Backend, log *logger.Logger) (*Server, error) {
	s := &Server{
		bus:    b,
		impl:   impl,
		source: "backend",
		log:    logger.OrDefault(log).WithComponent("backend-server"),
	}

	for _, topic := range bus.RequestTopics() {
		sub, err := b.Subscribe(ctx, topic, s.handle)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		s.subs = append(s.subs, sub)
	}

	return s, nil
}

// Close stops answering requests.
func (s *Server) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Server) handle(ctx context.Context, req bus.Event) error {
	ctx = reqctx.WithCorrelationID(ctx, req.CorrelationID)
	ctx = reqctx.WithSource(ctx, req.Source)

	data, err := s.dispatch(ctx, req)
	if err != nil {
		args := []any{"topic", req.Type, "error", err.Error()}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && len(appErr.Details) > 0 {
			args = append(args, "details", security.MaskSensitiveMap(appErr.Details))
		}
		s.log.WithContext(ctx).Debug("Backend call failed", args...)
	}

	err = s.bus.Respond(ctx, req.Type, bus.ReplyTo(req, s.source, replyFor(data, err)))
	if apperrors.IsNotFound(err) {
		// The requester gave up before the reply was ready.
		s.log.WithContext(ctx).Debug("Dropping late reply", "topic", req.Type)
		return nil
	}
	return err
}

func (s *Server) dispatch(ctx context.Context, req bus.Event) (any, error) {
	switch req.Type {
	case bus.TopicQueryPlexStatus:
		return s.impl.GetPlexConnectionStatus(ctx)
	case bus.TopicQueryDiscordStatus:
		return s.impl.IsDiscordConnected(ctx)
	case bus.TopicQueryHistory:
		return s.impl.GetConnectionHistory(ctx)
	case bus.TopicQueryPlexRetryState:
		return s.impl.GetPlexRetryState(ctx)
	case bus.TopicQueryDiscordRetryState:
		return s.impl.GetDiscordRetryState(ctx)
	case bus.TopicQueryErrorInfo:
		q, err := bus.DecodePayload[ErrorInfoQuery](req)
		if err != nil {
			return nil, err
		}
		return s.impl.GetErrorInfo(ctx, q.Code)
	case bus.TopicCmdPlexRetry:
		return nil, s.impl.RetryPlexConnection(ctx)
	case bus.TopicCmdDiscordRetry:
		return nil, s.impl.RetryDiscordConnection(ctx)
	case bus.TopicCmdDiscordConnect:
		cmd, err := bus.DecodePayload[ConnectCommand](req)
		if err != nil {
			return nil, err
		}
		return nil, s.impl.ConnectDiscord(ctx, cmd.ClientID)
	}
	return nil, fmt.Errorf("unknown request type %q", req.Type)
}
