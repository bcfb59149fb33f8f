package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/logging/logtest"
	"github.com/drblury/guildrelay/internal/runtime/progress"
)

// recordingLedger keeps every saved record and lets a test raise the
// cancellation flag once a given chunk has been written.
type recordingLedger struct {
	mu          sync.Mutex
	saves       []progress.Record
	stored      map[string]progress.Record
	cancelAfter int
	saveErr     error
}

func newRecordingLedger() *recordingLedger {
	return &recordingLedger{stored: map[string]progress.Record{}, cancelAfter: -1}
}

func (l *recordingLedger) Load(_ context.Context, nonce string) (progress.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.stored[nonce]
	if !ok {
		return progress.Record{}, errspkg.ErrNotFound
	}
	return rec, nil
}

func (l *recordingLedger) Save(_ context.Context, nonce string, rec progress.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saveErr != nil {
		return l.saveErr
	}
	l.saves = append(l.saves, rec)
	l.stored[nonce] = rec
	return nil
}

func (l *recordingLedger) Cancelled(_ context.Context, nonce string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelAfter >= 0 && l.stored[nonce].CurrentChunk >= l.cancelAfter, nil
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func members(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func newTestEngine(ledger Ledger, sleeper *sleepRecorder, opts ...Option) *Engine {
	base := []Option{
		WithSleep(sleeper.Sleep),
		WithClock(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }),
	}
	return NewEngine(ledger, logtest.New(), append(base, opts...)...)
}

func TestTotalChunksAndSplit(t *testing.T) {
	assert.Equal(t, 4, TotalChunks(10, 3))
	assert.Equal(t, 1, TotalChunks(3, 3))
	assert.Equal(t, 0, TotalChunks(0, 3))

	chunks, err := Split(members(10), 3)
	require.NoError(t, err)
	sizes := make([]int, len(chunks))
	for i, c := range chunks {
		sizes[i] = len(c)
	}
	assert.Equal(t, []int{3, 3, 3, 1}, sizes)

	_, err = Split(members(3), 0)
	assert.ErrorIs(t, err, errspkg.ErrInvalidChunkLimit)
}

func TestSplitChunksDoNotAlias(t *testing.T) {
	chunks, err := Split(members(4), 2)
	require.NoError(t, err)
	chunks[0] = append(chunks[0], 99)
	assert.Equal(t, []int{3, 4}, chunks[1])
}

func TestRunCompletesTenMembersInFourChunks(t *testing.T) {
	ledger := newRecordingLedger()
	sleeper := &sleepRecorder{}
	engine := newTestEngine(ledger, sleeper)

	var sent [][]int
	res, err := Run(context.Background(), engine, "n1", members(10), 3, false, func(ctx context.Context, index int, chunk []int) error {
		assert.Equal(t, len(sent)+1, index)
		sent = append(sent, chunk)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, sent, 4)
	assert.Equal(t, 4, res.Record.CurrentChunk)
	assert.Equal(t, 4, res.Record.TotalChunks)
	assert.Equal(t, 10, res.Record.MembersProcessed)
	require.NotNil(t, res.Record.EndedAt)

	require.Len(t, ledger.saves, 5)
	initial := ledger.saves[0]
	assert.Equal(t, 0, initial.MembersProcessed)
	assert.Equal(t, 10, initial.TotalMembers)
	assert.Equal(t, 0, initial.CurrentChunk)
	assert.Equal(t, 4, initial.TotalChunks)
	assert.Nil(t, initial.EndedAt)

	assert.Len(t, sleeper.calls, 3, "no pause after the last chunk")
	for _, d := range sleeper.calls {
		assert.Equal(t, DefaultDelay, d)
	}
}

func TestRunProgressIsMonotonicAndClamped(t *testing.T) {
	ledger := newRecordingLedger()
	engine := newTestEngine(ledger, &sleepRecorder{})

	_, err := Run(context.Background(), engine, "n", members(7), 2, false, func(context.Context, int, []int) error { return nil })
	require.NoError(t, err)

	prev := -1
	for _, rec := range ledger.saves {
		assert.GreaterOrEqual(t, rec.MembersProcessed, prev)
		assert.LessOrEqual(t, rec.MembersProcessed, rec.TotalMembers)
		prev = rec.MembersProcessed
	}
	for _, rec := range ledger.saves[:len(ledger.saves)-1] {
		assert.Nil(t, rec.EndedAt)
	}
}

func TestRunStopsWhenCancelledAfterSecondChunk(t *testing.T) {
	ledger := newRecordingLedger()
	ledger.cancelAfter = 2
	engine := newTestEngine(ledger, &sleepRecorder{})

	var started []int
	res, err := Run(context.Background(), engine, "n", members(10), 3, false, func(ctx context.Context, index int, chunk []int) error {
		started = append(started, index)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, []int{1, 2}, started, "chunk 3 never starts")

	stored, err := ledger.Load(context.Background(), "n")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentChunk)
	assert.Equal(t, 6, stored.MembersProcessed)
	assert.Nil(t, stored.EndedAt)
}

func TestRunCancelledBeforeFirstChunk(t *testing.T) {
	ledger := newRecordingLedger()
	ledger.cancelAfter = 0
	engine := newTestEngine(ledger, &sleepRecorder{})

	res, err := Run(context.Background(), engine, "n", members(5), 2, false, func(context.Context, int, []int) error {
		t.Fatal("no chunk should be sent")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Len(t, ledger.saves, 1)
}

func TestRunStopsOnRejectedChunk(t *testing.T) {
	ledger := newRecordingLedger()
	rec := logtest.New()
	engine := NewEngine(ledger, rec, WithSleep((&sleepRecorder{}).Sleep))
	backendErr := &errspkg.StatusError{Method: "POST", Path: "/api/users/update", Status: 500}

	var attempts int
	res, err := Run(context.Background(), engine, "n", members(10), 3, false, func(ctx context.Context, index int, chunk []int) error {
		attempts++
		if index == 2 {
			return backendErr
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, errspkg.ErrChunkFailed)
	var statusErr *errspkg.StatusError
	assert.ErrorAs(t, res.Err, &statusErr)
	assert.Equal(t, 2, attempts, "no retry, no further chunks")
	assert.Equal(t, 1, res.Record.CurrentChunk)
	assert.Equal(t, 3, res.Record.MembersProcessed)
	assert.True(t, rec.Has("error", "Chunk rejected"))
}

func TestRunResumesAfterRecordedChunks(t *testing.T) {
	ledger := newRecordingLedger()
	started := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	ledger.stored["n"] = progress.Record{StartedAt: started, MembersProcessed: 6, TotalMembers: 10, CurrentChunk: 2, TotalChunks: 4}
	engine := newTestEngine(ledger, &sleepRecorder{})

	var sent []int
	res, err := Run(context.Background(), engine, "n", members(10), 3, true, func(ctx context.Context, index int, chunk []int) error {
		sent = append(sent, index)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 4}, sent)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 10, res.Record.MembersProcessed)
	assert.True(t, res.Record.StartedAt.Equal(started))
	assert.NotNil(t, res.Record.EndedAt)
}

func TestRunIgnoresMismatchedRecordOnResume(t *testing.T) {
	ledger := newRecordingLedger()
	ledger.stored["n"] = progress.Record{TotalMembers: 99, TotalChunks: 33, CurrentChunk: 5}
	engine := newTestEngine(ledger, &sleepRecorder{})

	var sent int
	res, err := Run(context.Background(), engine, "n", members(4), 2, true, func(context.Context, int, []int) error {
		sent++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Zero(t, res.Skipped)
}

func TestRunRejectsInvalidLimit(t *testing.T) {
	engine := newTestEngine(newRecordingLedger(), &sleepRecorder{})
	_, err := Run(context.Background(), engine, "n", members(3), 0, false, func(context.Context, int, []int) error { return nil })
	assert.ErrorIs(t, err, errspkg.ErrInvalidChunkLimit)
}

func TestRunEmptyCollection(t *testing.T) {
	ledger := newRecordingLedger()
	engine := newTestEngine(ledger, &sleepRecorder{})
	res, err := Run(context.Background(), engine, "n", []int{}, 3, false, func(context.Context, int, []int) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Nil(t, res.Record.EndedAt, "zero chunks never stamp ended_at")
	assert.Len(t, ledger.saves, 1)
}

func TestRunSurfacesLedgerFailure(t *testing.T) {
	ledger := newRecordingLedger()
	ledger.saveErr = errors.New("store unavailable")
	engine := newTestEngine(ledger, &sleepRecorder{})
	_, err := Run(context.Background(), engine, "n", members(3), 1, false, func(context.Context, int, []int) error { return nil })
	assert.ErrorContains(t, err, "store unavailable")
}

func TestRunStopsWhenParentContextEnds(t *testing.T) {
	ledger := newRecordingLedger()
	ctx, cancel := context.WithCancel(context.Background())
	engine := NewEngine(ledger, nil, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	var sent int
	_, err := Run(ctx, engine, "n", members(6), 2, false, func(context.Context, int, []int) error {
		sent++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sent)
}

func TestRunHooks(t *testing.T) {
	var chunks []int
	var finished Result
	engine := newTestEngine(newRecordingLedger(), &sleepRecorder{}, WithHooks(Hooks{
		OnChunk:  func(nonce string, rec progress.Record) { chunks = append(chunks, rec.CurrentChunk) },
		OnFinish: func(nonce string, res Result) { finished = res },
	}))
	_, err := Run(context.Background(), engine, "n", members(5), 2, false, func(context.Context, int, []int) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, chunks)
	assert.Equal(t, StatusCompleted, finished.Status)
}

func TestRunWithRealLedger(t *testing.T) {
	ctx := context.Background()
	ledger := progress.NewLedger(progress.NewMemoryStore(), 0)
	engine := newTestEngine(ledger, &sleepRecorder{}, WithDelay(time.Millisecond))

	_, err := Run(ctx, engine, "real", members(10), 3, false, func(context.Context, int, []int) error { return nil })
	require.NoError(t, err)

	rec, err := ledger.Load(ctx, "real")
	require.NoError(t, err)
	assert.True(t, rec.Finished())
	assert.NotNil(t, rec.EndedAt)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
