package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/logging/logtest"
)

func TestGoRunsTaskAndNamesIt(t *testing.T) {
	g := NewGroup(context.Background(), logtest.New(), Hooks{})
	done := make(chan struct{})

	name, err := g.Go("verifyall", func(ctx context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, name, "verifyall-")

	<-done
	require.NoError(t, g.Shutdown(context.Background()))
	assert.Zero(t, g.Active())
}

func TestPanicIsRecoveredAndLogged(t *testing.T) {
	rec := logtest.New()
	var gotErr atomic.Value
	g := NewGroup(context.Background(), rec, Hooks{
		OnDone: func(name string, elapsed time.Duration, err error) { gotErr.Store(err) },
	})

	_, err := g.Go("boom", func(ctx context.Context) error { panic("kaboom") })
	require.NoError(t, err)
	require.NoError(t, g.Shutdown(context.Background()))

	stored, _ := gotErr.Load().(error)
	assert.ErrorIs(t, stored, errspkg.ErrHandlerPanic)
	entries := rec.Find("error", "Task failed")
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Fields["stack"])
}

func TestErrorIsLoggedCancellationIsNot(t *testing.T) {
	rec := logtest.New()
	g := NewGroup(context.Background(), rec, Hooks{})

	_, _ = g.Go("fails", func(ctx context.Context) error { return errors.New("backend down") })
	_, _ = g.Go("waits", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, g.Shutdown(context.Background()))

	assert.Len(t, rec.Find("error", "Task failed"), 1)
	assert.True(t, rec.Has("debug", "Task cancelled"))
}

func TestShutdownCancelsWithCause(t *testing.T) {
	g := NewGroup(context.Background(), nil, Hooks{})
	started := make(chan struct{})
	var cause atomic.Value

	_, err := g.Go("long", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cause.Store(context.Cause(ctx))
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started
	assert.Equal(t, 1, g.Active())

	require.NoError(t, g.Shutdown(context.Background()))
	assert.Equal(t, ErrShutdown, cause.Load())

	_, err = g.Go("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, errspkg.ErrGroupClosed)
}

func TestShutdownTimesOutOnStubbornTask(t *testing.T) {
	g := NewGroup(context.Background(), nil, Hooks{})
	release := make(chan struct{})
	defer close(release)

	_, err := g.Go("stubborn", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = g.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "stubborn-")
}

func TestRunningIsOrderedByStart(t *testing.T) {
	g := NewGroup(context.Background(), nil, Hooks{})
	release := make(chan struct{})
	first, _ := g.Go("first", func(ctx context.Context) error { <-release; return nil })
	time.Sleep(2 * time.Millisecond)
	second, _ := g.Go("second", func(ctx context.Context) error { <-release; return nil })

	assert.Equal(t, []string{first, second}, g.Running())
	close(release)
	require.NoError(t, g.Shutdown(context.Background()))
}
