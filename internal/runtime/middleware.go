package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
)

const tracerName = "github.com/drblury/guildrelay"

// Call is one handler invocation as seen by middleware.
type Call struct {
	ctx      context.Context
	Endpoint Endpoint
	Request  handlerpkg.Request[any]
}

// Context returns the invocation context.
func (c *Call) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// SetContext replaces the invocation context for the rest of the chain.
func (c *Call) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// HandlerFunc runs a call and returns the value to reply with.
type HandlerFunc func(call *Call) (any, error)

type Middleware func(HandlerFunc) HandlerFunc

// MiddlewareBuilder constructs a middleware using the service it is
// registered on. Returning a nil Middleware skips it.
type MiddlewareBuilder func(*Service) (Middleware, error)

// MiddlewareRegistration names a middleware and provides it directly or
// through a builder.
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares is the standard chain, outermost first.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		LogCallsMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		StatsMiddleware(),
		TimeoutMiddleware(0),
		RecovererMiddleware(),
	}
}

// LogCallsMiddleware logs every call at debug level.
func LogCallsMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_calls",
		Builder: func(s *Service) (Middleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errspkg.ErrLoggerRequired
			}
			return logCallsMiddleware(l), nil
		},
	}
}

func logCallsMiddleware(logger loggingpkg.ServiceLogger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(call *Call) (any, error) {
			logger.Debug("Processing request", loggingpkg.LogFields{
				"endpoint":     call.Endpoint.Name(),
				"channel":      call.Request.Channel,
				"nonce":        call.Request.Nonce,
				"payload_type": call.Endpoint.PayloadType,
			})
			return next(call)
		}
	}
}

// TracerMiddleware wraps each call in an OpenTelemetry consumer span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "tracer",
		Middleware: tracerMiddleware,
	}
}

func tracerMiddleware(next HandlerFunc) HandlerFunc {
	return func(call *Call) (any, error) {
		ctx, span := otel.Tracer(tracerName).Start(
			call.Context(),
			"relay.dispatch "+call.Endpoint.Name(),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("relay.endpoint", call.Endpoint.Name()),
				attribute.String("relay.channel", call.Request.Channel),
				attribute.String("relay.nonce", call.Request.Nonce),
			),
		)
		defer span.End()
		call.SetContext(ctx)
		if sc := span.SpanContext(); sc.IsValid() {
			call.Request.Metadata = call.Request.Metadata.
				With(handlerpkg.MetadataKeyTraceID, sc.TraceID().String()).
				With(handlerpkg.MetadataKeySpanID, sc.SpanID().String())
		}

		out, err := next(call)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}

// MetricsMiddleware records request counts and durations. Skipped when
// metrics are disabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (Middleware, error) {
			if s.metrics == nil {
				return nil, nil
			}
			return metricsMiddleware(s.metrics), nil
		},
	}
}

func metricsMiddleware(m *Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(call *Call) (any, error) {
			start := time.Now()
			out, err := next(call)
			m.ObserveRequest(call.Endpoint.Name(), outcomeOf(err), time.Since(start))
			return out, err
		}
	}
}

// StatsMiddleware feeds the per-endpoint stats served over HTTP.
func StatsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "stats",
		Builder: func(s *Service) (Middleware, error) {
			return s.statsMiddleware(), nil
		},
	}
}

func (s *Service) statsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(call *Call) (any, error) {
			stats, ok := s.stats[call.Endpoint.Name()]
			if !ok {
				return next(call)
			}
			stats.onStart()
			start := time.Now()
			out, err := next(call)
			stats.onFinish(time.Since(start), err, s.getErrorClassifier())
			return out, err
		}
	}
}

// TimeoutMiddleware bounds each call. A zero timeout uses the configured
// process timeout. Handlers must honour their context; once the deadline
// passes their error is reported as ErrProcessTimeout and no reply is sent.
func TimeoutMiddleware(timeout time.Duration) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "timeout",
		Builder: func(s *Service) (Middleware, error) {
			d := timeout
			if d <= 0 && s.Conf != nil {
				d = s.Conf.ProcessTimeout
			}
			if d <= 0 {
				return nil, nil
			}
			return timeoutMiddleware(d), nil
		},
	}
}

func timeoutMiddleware(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(call *Call) (any, error) {
			parent := call.Context()
			ctx, cancel := context.WithTimeout(parent, d)
			defer cancel()
			call.SetContext(ctx)
			defer call.SetContext(parent)

			out, err := next(call)
			if ctx.Err() == context.DeadlineExceeded && parent.Err() == nil {
				if err == nil {
					err = context.DeadlineExceeded
				}
				return nil, fmt.Errorf("%w after %s: %w", errspkg.ErrProcessTimeout, d, err)
			}
			return out, err
		}
	}
}

// RecovererMiddleware turns handler panics into HandlerPanicError.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: recovererMiddleware,
	}
}

func recovererMiddleware(next HandlerFunc) HandlerFunc {
	return func(call *Call) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				out = nil
				err = &errspkg.HandlerPanicError{Value: r, Stack: string(debug.Stack())}
			}
		}()
		return next(call)
	}
}

// RegisterMiddleware appends a middleware inside the ones already
// registered. It must be called before Run.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	var mw Middleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}
	s.middlewares = append(s.middlewares, mw)
	return nil
}

// buildChain composes registered middleware around the endpoint handler;
// the first registered runs outermost.
func (s *Service) buildChain() HandlerFunc {
	h := HandlerFunc(func(call *Call) (any, error) {
		return call.Endpoint.handle(call.Context(), call.Request)
	})
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}
	return h
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, errspkg.ErrProcessTimeout):
		return OutcomeTimeout
	case errors.Is(err, errspkg.ErrHandlerPanic):
		return OutcomePanic
	default:
		return OutcomeError
	}
}
