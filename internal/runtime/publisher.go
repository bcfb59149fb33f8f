package runtime

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	idspkg "github.com/drblury/guildrelay/internal/runtime/ids"
	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	metadatapkg "github.com/drblury/guildrelay/internal/runtime/metadata"
)

// replyPublisher implements handlers.Responder on top of the bus publisher.
// Failures are logged here with full context and returned; nothing is
// retried.
type replyPublisher struct {
	publisher message.Publisher
	clusterID int
	logger    loggingpkg.ServiceLogger
	metrics   *Metrics
}

func (p *replyPublisher) Respond(ctx context.Context, info handlerpkg.RequestInfo, data any, opts ...handlerpkg.ReplyOption) error {
	fields := loggingpkg.LogFields{"nonce": info.Nonce, "request_channel": info.Channel}

	channel, err := handlerpkg.ReplyChannel(info.Nonce, opts...)
	if err != nil {
		p.logger.Error("Cannot route response", err, fields)
		p.metrics.Reply(ReplyNoChannel)
		return err
	}
	fields["channel"] = channel

	payload, err := jsoncodec.Marshal(handlerpkg.Wrap(info.Nonce, data, p.clusterID))
	if err != nil {
		fields["payload"] = fmt.Sprintf("%+v", data)
		p.logger.Error("Failed to encode response", err, fields)
		p.metrics.Reply(ReplyEncodeError)
		return fmt.Errorf("encode reply for %s: %w", channel, err)
	}

	msg := NewReplyMessage(payload, channel, info, p.clusterID)
	msg.SetContext(ctx)
	if err := p.publisher.Publish(channel, msg); err != nil {
		fields["payload"] = string(payload)
		p.logger.Error("Failed to publish response", err, fields)
		p.metrics.Reply(ReplyPublishError)
		return fmt.Errorf("publish reply to %s: %w", channel, err)
	}

	p.metrics.Reply(ReplyPublished)
	if elapsed := info.Elapsed(); elapsed > 0 {
		fields["elapsed_ms"] = float64(elapsed.Microseconds()) / 1000
	}
	p.logger.Info("Published response", fields)
	return nil
}

// NewReplyMessage builds the bus message for an encoded reply. Trace ids of
// the request are carried over so the caller can join the trace.
func NewReplyMessage(payload []byte, channel string, info handlerpkg.RequestInfo, clusterID int) *message.Message {
	md := metadatapkg.Metadata{
		handlerpkg.MetadataKeyChannel: channel,
		handlerpkg.MetadataKeyNode:    strconv.Itoa(clusterID),
	}
	if info.Nonce != "" {
		md = md.With(handlerpkg.MetadataKeyNonce, info.Nonce)
	}
	for _, key := range []string{handlerpkg.MetadataKeyTraceID, handlerpkg.MetadataKeySpanID} {
		if v := info.Metadata.Get(key); v != "" {
			md = md.With(key, v)
		}
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	return msg
}

// PublishRequest sends a request envelope to an endpoint channel, the way
// external services talk to the relay.
func PublishRequest(ctx context.Context, publisher message.Publisher, channel, nonce string, data any) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}

	var raw jsoncodec.RawMessage
	if data != nil {
		encoded, err := jsoncodec.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode request data: %w", err)
		}
		raw = encoded
	}

	env, err := NewEnvelope(channel, RequestBody{Nonce: nonce, Data: raw})
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	payload, err := jsoncodec.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata.Set(handlerpkg.MetadataKeyChannel, channel)
	if nonce != "" {
		msg.Metadata.Set(handlerpkg.MetadataKeyNonce, nonce)
	}
	msg.SetContext(ctx)
	return publisher.Publish(channel, msg)
}
