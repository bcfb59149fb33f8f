package handlers

import (
	"context"
	"fmt"
	"reflect"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
)

// Handler processes one typed request. A nil reply means nothing is published.
type Handler[T any] func(ctx context.Context, req Request[T]) (any, error)

// DecodeFunc turns a request's raw data into the endpoint's payload shape.
type DecodeFunc func(raw jsoncodec.RawMessage) (any, error)

// Func is a type-erased Handler.
type Func func(ctx context.Context, req Request[any]) (any, error)

// Typed is a handler split into its decode and handle halves so the
// dispatch loop can decode before it detaches.
type Typed struct {
	PayloadType string
	Decode      DecodeFunc
	Handle      Func
}

// BuildJSON erases a typed handler. Absent or null data decodes to the zero
// value of T.
func BuildJSON[T any](handler Handler[T]) (Typed, error) {
	if handler == nil {
		return Typed{}, errspkg.ErrHandlerRequired
	}

	decode := func(raw jsoncodec.RawMessage) (any, error) {
		var payload T
		if jsoncodec.IsNull(raw) {
			return payload, nil
		}
		if err := jsoncodec.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	handle := func(ctx context.Context, req Request[any]) (any, error) {
		payload, ok := req.Payload.(T)
		if !ok && req.Payload != nil {
			return nil, fmt.Errorf("relay: handler expects %s, got %T", payloadTypeName[T](), req.Payload)
		}
		typed := Request[T]{RequestInfo: req.RequestInfo, Payload: payload, Logger: req.Logger, responder: req.responder}
		return handler(ctx, typed)
	}

	return Typed{PayloadType: payloadTypeName[T](), Decode: decode, Handle: handle}, nil
}

func payloadTypeName[T any]() string {
	typ := reflect.TypeFor[T]()
	if typ.Name() == "" {
		return typ.String()
	}
	return typ.Name()
}
