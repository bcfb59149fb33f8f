package runtime

import (
	"time"

	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
)

// DispatchContext describes one handler invocation to hooks.
type DispatchContext struct {
	Endpoint  string
	Channel   string
	Nonce     string
	StartedAt time.Time
	// Duration is set for OnDone and OnError.
	Duration time.Duration
}

// DispatchHooks observe handler invocations. Nil hooks are skipped.
type DispatchHooks struct {
	OnStart func(ctx DispatchContext)
	OnDone  func(ctx DispatchContext)
	OnError func(ctx DispatchContext, err error)
}

// Merge returns hooks that call h first and then other.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnStart: chain1(h.OnStart, other.OnStart),
		OnDone:  chain1(h.OnDone, other.OnDone),
		OnError: chain2(h.OnError, other.OnError),
	}
}

func chain1[A any](a, b func(A)) func(A) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A) {
		a(x)
		b(x)
	}
}

func chain2[A, B any](a, b func(A, B)) func(A, B) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A, y B) {
		a(x, y)
		b(x, y)
	}
}

// HooksMiddleware invokes hooks around every handler call.
func HooksMiddleware(hooks DispatchHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "dispatch_hooks",
		Middleware: hooksMiddleware(hooks),
	}
}

func hooksMiddleware(hooks DispatchHooks) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(call *Call) (any, error) {
			dc := DispatchContext{
				Endpoint:  call.Endpoint.Name(),
				Channel:   call.Request.Channel,
				Nonce:     call.Request.Nonce,
				StartedAt: time.Now(),
			}
			if hooks.OnStart != nil {
				hooks.OnStart(dc)
			}

			out, err := next(call)

			dc.Duration = time.Since(dc.StartedAt)
			switch {
			case err != nil && hooks.OnError != nil:
				hooks.OnError(dc, err)
			case err == nil && hooks.OnDone != nil:
				hooks.OnDone(dc)
			}
			return out, err
		}
	}
}

// LoggingHooks log every invocation at debug level.
func LoggingHooks(logger loggingpkg.ServiceLogger) DispatchHooks {
	return DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			logger.Debug("Endpoint started", loggingpkg.LogFields{
				"endpoint": ctx.Endpoint,
				"channel":  ctx.Channel,
				"nonce":    ctx.Nonce,
			})
		},
		OnDone: func(ctx DispatchContext) {
			logger.Debug("Endpoint completed", loggingpkg.LogFields{
				"endpoint":    ctx.Endpoint,
				"channel":     ctx.Channel,
				"nonce":       ctx.Nonce,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// AlertingHooks call alert for every failed invocation.
func AlertingHooks(alert func(ctx DispatchContext, err error)) DispatchHooks {
	return DispatchHooks{OnError: alert}
}
