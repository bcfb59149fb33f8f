package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	metadatapkg "github.com/drblury/guildrelay/internal/runtime/metadata"
	"github.com/drblury/guildrelay/internal/runtime/relaypath"
)

var errAlreadyRunning = errors.New("relay: service is already running")

type delivery struct {
	topic string
	msg   *message.Message
}

// Run subscribes to every endpoint channel and dispatches requests until ctx
// is cancelled or every subscription closes. Messages are taken off the bus
// by this single loop in arrival order; handlers run detached on the task
// group, so they complete in any order.
func (s *Service) Run(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return errAlreadyRunning
	}
	s.running = true
	s.runMu.Unlock()
	defer func() {
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
	}()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	channels := s.registry.Channels()
	in := make(chan delivery)
	var wg sync.WaitGroup
	for _, ch := range channels {
		msgs, err := s.subscriber.Subscribe(subCtx, ch)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
		wg.Add(1)
		go func(topic string, msgs <-chan *message.Message) {
			defer wg.Done()
			for msg := range msgs {
				select {
				case in <- delivery{topic: topic, msg: msg}:
				case <-subCtx.Done():
					msg.Nack()
					return
				}
			}
		}(ch, msgs)
	}
	go func() {
		wg.Wait()
		close(in)
	}()

	s.Logger.Info("Listening for messages", loggingpkg.LogFields{"channels": channels})

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("Dispatch loop stopped", loggingpkg.LogFields{"cause": context.Cause(ctx).Error()})
			return nil
		case d, ok := <-in:
			if !ok {
				s.Logger.Warn("All subscriptions closed, dispatch loop stopped", nil)
				return nil
			}
			s.handleMessage(d)
		}
	}
}

// handleMessage decodes and routes one bus message, then hands it to the
// task group. It never blocks on handler work.
func (s *Service) handleMessage(d delivery) {
	defer d.msg.Ack()
	receivedAt := time.Now()

	env, err := DecodeEnvelope(d.topic, d.msg)
	if err != nil {
		s.drop(DropDecode, "Failed to decode envelope", err, loggingpkg.LogFields{"channel": d.topic, "message_uuid": d.msg.UUID})
		return
	}
	if env.Type != EnvelopeMessage {
		s.Logger.Trace("Ignored envelope", loggingpkg.LogFields{"channel": env.Channel, "type": env.Type})
		s.metrics.Dropped(DropNotMessage)
		return
	}

	body, err := env.Body()
	if err != nil {
		s.drop(DropDecode, "Failed to decode request body", err, loggingpkg.LogFields{"channel": env.Channel})
		return
	}

	fields := loggingpkg.LogFields{"channel": env.Channel, "nonce": body.Nonce}
	path, err := relaypath.Parse(env.Channel)
	if err != nil {
		s.drop(DropDecode, "Invalid request channel", err, fields)
		return
	}
	endpoint, ok := s.registry.Lookup(path.Segment(0))
	if !ok {
		s.Logger.Warn("Ignored request, no suitable endpoints", fields)
		s.metrics.Dropped(DropNoRoute)
		return
	}
	fields["endpoint"] = endpoint.Name()

	payload, err := endpoint.decode(body.Data)
	if err != nil {
		decodeErr := &errspkg.DecodeError{Channel: env.Channel, Err: err}
		fields["payload_type"] = endpoint.PayloadType
		s.drop(DropPayload, "Failed to decode request payload", decodeErr, fields)
		return
	}

	info := handlerpkg.RequestInfo{
		ReceivedAt: receivedAt,
		Nonce:      body.Nonce,
		Channel:    env.Channel,
		Metadata:   metadatapkg.FromWatermill(d.msg.Metadata),
	}
	logger := s.Logger.With(fields)
	req := handlerpkg.NewRequest[any](info, payload, logger, s.responder)

	prefix := "dispatch-" + strings.ToLower(endpoint.Name())
	if _, err := s.group.Go(prefix, func(ctx context.Context) error {
		s.invoke(ctx, endpoint, req)
		return nil
	}); err != nil {
		s.Logger.Warn("Dropped request, service is shutting down", fields)
	}
}

func (s *Service) drop(reason, msg string, err error, fields loggingpkg.LogFields) {
	s.Logger.Error(msg, err, fields)
	s.metrics.Dropped(reason)
}

// invoke runs the middleware chain and publishes the reply. Nothing escapes:
// every failure ends as a log record.
func (s *Service) invoke(ctx context.Context, e Endpoint, req handlerpkg.Request[any]) {
	call := &Call{ctx: ctx, Endpoint: e, Request: req}
	out, err := s.handler(call)

	if err != nil {
		fields := loggingpkg.LogFields{"error_kind": errorKind(err)}
		switch {
		case errors.Is(err, errspkg.ErrProcessTimeout):
			req.Logger.Error("Endpoint exceeded process time", err, fields)
		case ctx.Err() != nil && errors.Is(err, context.Canceled):
			req.Logger.Debug("Endpoint cancelled", fields)
		default:
			var panicErr *errspkg.HandlerPanicError
			if errors.As(err, &panicErr) {
				fields["stack"] = panicErr.Stack
			}
			req.Logger.Error("Endpoint failed", err, fields)
		}
		return
	}
	if out == nil {
		return
	}
	// Respond logs its own failures. The chain may have added metadata.
	_ = call.Request.Respond(ctx, out)
}

// errorKind names the innermost wrapped error type.
func errorKind(err error) string {
	var panicErr *errspkg.HandlerPanicError
	if errors.As(err, &panicErr) {
		return fmt.Sprintf("%T", panicErr)
	}
	for {
		var next error
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next = u.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := u.Unwrap(); len(errs) > 0 {
				next = errs[len(errs)-1]
			}
		}
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
