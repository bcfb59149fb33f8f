package runtime

import (
	"bytes"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
	"github.com/drblury/guildrelay/transport"
)

// Envelope types. Only messages carry requests.
const (
	EnvelopeMessage   = "message"
	EnvelopeSubscribe = "subscribe"
)

// Envelope is the outer wire message. Data holds the request body either as
// a JSON string or as an embedded object.
type Envelope struct {
	Type    string               `json:"type"`
	Channel string               `json:"channel"`
	Pattern *string              `json:"pattern"`
	Data    jsoncodec.RawMessage `json:"data"`
}

// RequestBody is what callers put inside an envelope.
type RequestBody struct {
	Nonce string               `json:"nonce"`
	Data  jsoncodec.RawMessage `json:"data"`
}

// NewEnvelope wraps a request body for publishing on channel.
func NewEnvelope(channel string, body RequestBody) (Envelope, error) {
	raw, err := jsoncodec.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	quoted, err := jsoncodec.Marshal(string(raw))
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: EnvelopeMessage, Channel: channel, Data: quoted}, nil
}

// DecodeEnvelope reads the envelope from a bus message received on topic.
// Payloads without a type field are taken as a bare request body.
func DecodeEnvelope(topic string, msg *message.Message) (Envelope, error) {
	channel := msg.Metadata.Get(transport.ChannelMetadataKey)
	if channel == "" {
		channel = topic
	}

	var env Envelope
	if err := jsoncodec.Unmarshal(msg.Payload, &env); err != nil {
		return Envelope{}, &errspkg.DecodeError{Channel: channel, Err: err}
	}
	if env.Type == "" {
		return Envelope{Type: EnvelopeMessage, Channel: channel, Data: jsoncodec.RawMessage(msg.Payload)}, nil
	}
	if env.Channel == "" {
		env.Channel = channel
	}
	return env, nil
}

// Body decodes the request body carried in Data.
func (e Envelope) Body() (RequestBody, error) {
	var body RequestBody
	raw := bytes.TrimSpace(e.Data)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := jsoncodec.Unmarshal(raw, &inner); err != nil {
			return RequestBody{}, &errspkg.DecodeError{Channel: e.Channel, Err: err}
		}
		if err := jsoncodec.UnmarshalString(inner, &body); err != nil {
			return RequestBody{}, &errspkg.DecodeError{Channel: e.Channel, Err: err}
		}
		return body, nil
	}

	if err := jsoncodec.Unmarshal(raw, &body); err != nil {
		return RequestBody{}, &errspkg.DecodeError{Channel: e.Channel, Err: err}
	}
	return body, nil
}
