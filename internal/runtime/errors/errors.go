package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrEmptyPath            = sterrors.New("relay: path must have at least one segment")
	ErrPathNotString        = sterrors.New("relay: path must be a string")
	ErrHandlerRequired      = sterrors.New("relay: handler function is required")
	ErrEndpointRequired     = sterrors.New("relay: endpoint descriptor is required")
	ErrReplyChannelRequired = sterrors.New("relay: channel must be provided if lacking nonce")
	ErrProcessTimeout       = sterrors.New("relay: endpoint exceeded process time")
	ErrPublisherRequired    = sterrors.New("relay: publisher is required")
	ErrSubscriberRequired   = sterrors.New("relay: subscriber is required")
	ErrConfigRequired       = sterrors.New("relay: config is required")
	ErrLoggerRequired       = sterrors.New("relay: logger is required")
	ErrGroupClosed          = sterrors.New("relay: task group is shut down")
	ErrJobCancelled         = sterrors.New("relay: job cancelled")
	ErrChunkFailed          = sterrors.New("relay: chunk rejected by backend")
	ErrInvalidChunkLimit    = sterrors.New("relay: chunk limit must be positive")
	ErrNotFound             = sterrors.New("relay: key not found")
	ErrHandlerPanic         = sterrors.New("relay: handler panicked")
)

// DecodeError reports a malformed envelope or a payload that does not match
// the endpoint's declared shape. It only ever aborts a single dispatch cycle.
type DecodeError struct {
	Channel string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("relay: cannot decode message on %s: %v", e.Channel, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// HandlerPanicError carries a recovered panic value and the goroutine stack.
type HandlerPanicError struct {
	Value any
	Stack string
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("relay: handler panicked: %v", e.Value)
}

func (e *HandlerPanicError) Unwrap() error { return ErrHandlerPanic }

// StatusError is returned by the backend client when a call completes with a
// non-success status code.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay: %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// ConfigValidationError wraps the joined validation failures of a config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("relay: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil for a nil err.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
