package handlers

import (
	"context"
	"time"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	metadatapkg "github.com/drblury/guildrelay/internal/runtime/metadata"
)

// ReplyPrefix is the first segment of default reply channels.
const ReplyPrefix = "REPLY"

// ReplyOptions tune a single Respond call.
type ReplyOptions struct {
	Channel string
}

type ReplyOption func(*ReplyOptions)

// WithChannel publishes the reply on ch instead of REPLY:<nonce>.
func WithChannel(ch string) ReplyOption {
	return func(o *ReplyOptions) { o.Channel = ch }
}

// ReplyChannel resolves where a reply goes. Without a nonce or an explicit
// channel there is nowhere to route it.
func ReplyChannel(nonce string, opts ...ReplyOption) (string, error) {
	var o ReplyOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.Channel != "" {
		return o.Channel, nil
	}
	if nonce == "" {
		return "", errspkg.ErrReplyChannelRequired
	}
	return ReplyPrefix + ":" + nonce, nil
}

// Responder publishes replies on behalf of a request.
type Responder interface {
	Respond(ctx context.Context, req RequestInfo, data any, opts ...ReplyOption) error
}

// RequestInfo is the payload-independent part of a request.
type RequestInfo struct {
	ReceivedAt time.Time
	Nonce      string
	Channel    string
	Metadata   metadatapkg.Metadata
}

// Request is one decoded request, owned by a single handler invocation.
type Request[T any] struct {
	RequestInfo
	Payload T
	Logger  loggingpkg.ServiceLogger

	responder Responder
}

// NewRequest binds a request to the responder that will publish its replies.
func NewRequest[T any](info RequestInfo, payload T, logger loggingpkg.ServiceLogger, responder Responder) Request[T] {
	if logger == nil {
		logger = loggingpkg.Nop()
	}
	return Request[T]{RequestInfo: info, Payload: payload, Logger: logger, responder: responder}
}

// Respond publishes data as the reply to this request.
func (r Request[T]) Respond(ctx context.Context, data any, opts ...ReplyOption) error {
	if r.responder == nil {
		return errspkg.ErrPublisherRequired
	}
	return r.responder.Respond(ctx, r.RequestInfo, data, opts...)
}

// Elapsed is the time since the request was received, or zero when the
// receipt time is unknown.
func (i RequestInfo) Elapsed() time.Duration {
	if i.ReceivedAt.IsZero() {
		return 0
	}
	return time.Since(i.ReceivedAt)
}
