// Package tasks supervises detached goroutines: handler invocations and
// batch jobs spawned by the dispatch loop. Every task gets a name for its log
// records, panics are recovered into errors, and Shutdown cancels and awaits
// whatever is still running.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/ids"
	"github.com/drblury/guildrelay/internal/runtime/logging"
)

// Func is the body of a supervised task. It must return once ctx is done.
type Func func(ctx context.Context) error

// Hooks observe task lifecycle. Both are optional.
type Hooks struct {
	OnStart func(name string)
	OnDone  func(name string, elapsed time.Duration, err error)
}

// Group owns a set of running tasks.
type Group struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	logger logging.ServiceLogger
	hooks  Hooks

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	active map[string]time.Time
}

// ErrShutdown is the cancellation cause seen by tasks when the group stops.
var ErrShutdown = errors.New("tasks: group shutting down")

// NewGroup returns a Group whose tasks inherit parent's values and are
// cancelled when parent is or when Shutdown is called.
func NewGroup(parent context.Context, logger logging.ServiceLogger, hooks Hooks) *Group {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		hooks:  hooks,
		active: make(map[string]time.Time),
	}
}

// Go starts fn under supervision and returns the unique task name. It fails
// with ErrGroupClosed once Shutdown has begun.
func (g *Group) Go(prefix string, fn Func) (string, error) {
	name := ids.TaskName(prefix)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", errspkg.ErrGroupClosed
	}
	g.active[name] = time.Now()
	g.wg.Add(1)
	g.mu.Unlock()

	go g.run(name, fn)
	return name, nil
}

func (g *Group) run(name string, fn Func) {
	started := time.Now()
	defer g.wg.Done()

	if g.hooks.OnStart != nil {
		g.hooks.OnStart(name)
	}

	err := g.invoke(fn)

	g.mu.Lock()
	delete(g.active, name)
	g.mu.Unlock()

	elapsed := time.Since(started)
	if g.hooks.OnDone != nil {
		g.hooks.OnDone(name, elapsed, err)
	}

	fields := logging.LogFields{"task": name, "elapsed": elapsed.String()}
	switch {
	case err == nil:
		g.logger.Trace("Task finished", fields)
	case errors.Is(err, context.Canceled):
		g.logger.Debug("Task cancelled", fields)
	default:
		var panicErr *errspkg.HandlerPanicError
		if errors.As(err, &panicErr) {
			fields["stack"] = panicErr.Stack
		}
		g.logger.Error("Task failed", err, fields)
	}
}

func (g *Group) invoke(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.HandlerPanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(g.ctx)
}

// Active reports how many tasks are still running.
func (g *Group) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// Running lists the names of running tasks, oldest first.
func (g *Group) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.active))
	for name := range g.active {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return g.active[names[i]].Before(g.active[names[j]])
	})
	return names
}

// Shutdown refuses new tasks, cancels running ones and waits for them to
// return. If ctx expires first the names of the stragglers are reported.
func (g *Group) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel(ErrShutdown)

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks: %d still running %v: %w", g.Active(), g.Running(), ctx.Err())
	}
}
