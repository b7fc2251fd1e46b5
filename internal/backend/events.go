package backend

import (
	"errors"

	"github.com/plexcord/connstatus/internal/bus"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
)

// DisconnectPayload is carried by the disconnect push events. Older media
// server events use ErrorCode instead of Code.
type DisconnectPayload struct {
	Code      string `json:"code,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ResolvedCode returns the reported code, or def when none was sent.
func (p DisconnectPayload) ResolvedCode(def string) string {
	switch {
	case p.Code != "":
		return p.Code
	case p.ErrorCode != "":
		return p.ErrorCode
	}
	return def
}

// DefaultDisconnectCode returns the code assumed when a disconnect event for
// service carries none.
func DefaultDisconnectCode(service string) string {
	if service == ServiceDiscord {
		return apperrors.CodeDiscordNotRunning
	}
	return apperrors.CodePlexUnreachable
}

// ErrorInfoQuery is the payload of an error-info request.
type ErrorInfoQuery struct {
	Code string `json:"code"`
}

// ConnectCommand is the payload of a presence connect request.
type ConnectCommand struct {
	ClientID string `json:"clientId,omitempty"`
}

// Reply wraps every response. Exactly one of Data and Error is meaningful.
type Reply struct {
	Data  any         `json:"data,omitempty"`
	Error *ReplyError `json:"error,omitempty"`
}

// ReplyError is a failure carried across the bus.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func replyFor(data any, err error) Reply {
	if err == nil {
		return Reply{Data: data}
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.InternalError(err.Error(), err)
	}
	return Reply{Error: &ReplyError{Code: appErr.Code, Message: appErr.Message}}
}

// AsError converts a carried failure back into an AppError.
func (e *ReplyError) AsError() error {
	if e == nil {
		return nil
	}
	return apperrors.New(e.Code, e.Message)
}

// decodeReply unwraps a response event into T.
func decodeReply[T any](resp bus.Event) (T, error) {
	var zero T
	reply, err := bus.DecodePayload[Reply](resp)
	if err != nil {
		return zero, apperrors.Wrap(apperrors.CodeInternal, "malformed reply", err)
	}
	if reply.Error != nil {
		return zero, reply.Error.AsError()
	}
	data, err := bus.DecodePayload[T](bus.Event{Type: resp.Type, Payload: reply.Data})
	if err != nil {
		return zero, apperrors.Wrap(apperrors.CodeInternal, "malformed reply data", err)
	}
	return data, nil
}
