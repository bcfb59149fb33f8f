// Package jobs runs long fan-out work in sequential chunks, persisting
// progress after every chunk and stopping cooperatively when an operator
// raises the job's cancellation flag.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/logging"
	"github.com/drblury/guildrelay/internal/runtime/progress"
)

// DefaultDelay is the pause between two chunks.
const DefaultDelay = 3 * time.Second

// Ledger persists progress records and exposes the cancellation flag.
// *progress.Ledger implements it.
type Ledger interface {
	Load(ctx context.Context, nonce string) (progress.Record, error)
	Save(ctx context.Context, nonce string, rec progress.Record) error
	Cancelled(ctx context.Context, nonce string) (bool, error)
}

// ChunkFunc delivers one chunk downstream. index is 1-based. A non-nil
// error means the chunk was not accepted and the job stops.
type ChunkFunc[T any] func(ctx context.Context, index int, chunk []T) error

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Status is how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Result summarises a run.
type Result struct {
	Status Status
	Record progress.Record
	// Err is the chunk failure when Status is StatusFailed.
	Err error
	// Skipped counts chunks already recorded by an earlier run.
	Skipped int
}

// Hooks observe a run. Both are optional.
type Hooks struct {
	OnChunk  func(nonce string, rec progress.Record)
	OnFinish func(nonce string, res Result)
}

// Engine holds what every run shares.
type Engine struct {
	ledger Ledger
	logger logging.ServiceLogger
	delay  time.Duration
	sleep  SleepFunc
	now    func() time.Time
	hooks  Hooks
}

// Option customises an Engine.
type Option func(*Engine)

// WithDelay overrides DefaultDelay; zero disables the pause.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithSleep replaces the context-aware timer, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHooks installs run observers.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// NewEngine builds an Engine writing to ledger.
func NewEngine(ledger Ledger, logger logging.ServiceLogger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Engine{
		ledger: ledger,
		logger: logger,
		delay:  DefaultDelay,
		sleep:  Sleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sleep waits for d unless ctx finishes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TotalChunks is ceil(n / limit).
func TotalChunks(n, limit int) int {
	if n <= 0 || limit <= 0 {
		return 0
	}
	return (n + limit - 1) / limit
}

// Split cuts items into consecutive chunks of at most limit elements.
// The chunks share items' backing array.
func Split[T any](items []T, limit int) ([][]T, error) {
	if limit <= 0 {
		return nil, errspkg.ErrInvalidChunkLimit
	}
	chunks := make([][]T, 0, TotalChunks(len(items), limit))
	for start := 0; start < len(items); start += limit {
		end := min(start+limit, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks, nil
}

// Run processes items in chunks of at most limit, strictly in order.
//
// An initial record is written before the first chunk and an updated one
// after each accepted chunk; the cancellation flag is read after every write.
// A raised flag cancels the run's context with errors.ErrJobCancelled as the
// cause and the run ends with StatusCancelled. A rejected chunk is logged and
// ends the run with StatusFailed. Either way the last record stands.
//
// With resume set, an unfinished record for the same nonce and totals makes
// the run continue after the last recorded chunk.
//
// The returned error is reserved for faults outside the job itself: an
// invalid limit, a ledger failure, or the parent context ending.
func Run[T any](ctx context.Context, e *Engine, nonce string, items []T, limit int, resume bool, send ChunkFunc[T]) (Result, error) {
	chunks, err := Split(items, limit)
	if err != nil {
		return Result{}, err
	}
	total := len(chunks)
	log := e.logger.With(logging.LogFields{"nonce": nonce, "total_chunks": total})

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	rec := progress.Record{
		StartedAt:    e.now().UTC(),
		TotalMembers: len(items),
		TotalChunks:  total,
	}

	skipped := 0
	if resume {
		if prev, ok := e.resumable(ctx, nonce, rec); ok {
			rec = prev
			skipped = prev.CurrentChunk
			log.Info("Resuming job", logging.LogFields{"chunk": skipped})
		}
	}

	finish := func(res Result) (Result, error) {
		res.Record = rec
		res.Skipped = skipped
		if e.hooks.OnFinish != nil {
			e.hooks.OnFinish(nonce, res)
		}
		return res, nil
	}

	if err := e.record(ctx, cancel, nonce, rec); err != nil {
		return Result{Record: rec}, err
	}
	if errors.Is(context.Cause(ctx), errspkg.ErrJobCancelled) {
		log.Info("Job cancelled before first chunk", nil)
		return finish(Result{Status: StatusCancelled})
	}

	for i := skipped; i < total; i++ {
		index := i + 1
		chunk := chunks[i]
		chunkLog := log.With(logging.LogFields{"chunk": index})
		chunkLog.Debug("Sending chunk", logging.LogFields{"size": len(chunk)})

		if err := send(ctx, index, chunk); err != nil {
			if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
				return Result{Record: rec}, cause
			}
			chunkLog.Error("Chunk rejected, stopping job", err, nil)
			return finish(Result{Status: StatusFailed, Err: fmt.Errorf("%w: %w", errspkg.ErrChunkFailed, err)})
		}

		rec.CurrentChunk = index
		rec.MembersProcessed = min(rec.MembersProcessed+len(chunk), rec.TotalMembers)
		if rec.Finished() {
			ended := e.now().UTC()
			rec.EndedAt = &ended
		}

		if err := e.record(ctx, cancel, nonce, rec); err != nil {
			return Result{Record: rec}, err
		}
		if e.hooks.OnChunk != nil {
			e.hooks.OnChunk(nonce, rec)
		}
		if errors.Is(context.Cause(ctx), errspkg.ErrJobCancelled) {
			chunkLog.Info("Job cancelled", logging.LogFields{"members_processed": rec.MembersProcessed})
			return finish(Result{Status: StatusCancelled})
		}

		if index < total {
			if err := e.sleep(ctx, e.delay); err != nil {
				return Result{Record: rec}, err
			}
		}
	}

	log.Info("Job completed", logging.LogFields{"members_processed": rec.MembersProcessed})
	return finish(Result{Status: StatusCompleted})
}

// record persists rec and then polls the cancellation flag, cancelling ctx
// with ErrJobCancelled when it is raised.
func (e *Engine) record(ctx context.Context, cancel context.CancelCauseFunc, nonce string, rec progress.Record) error {
	if err := e.ledger.Save(ctx, nonce, rec); err != nil {
		return err
	}
	cancelled, err := e.ledger.Cancelled(ctx, nonce)
	if err != nil {
		return err
	}
	if cancelled {
		cancel(errspkg.ErrJobCancelled)
	}
	return nil
}

func (e *Engine) resumable(ctx context.Context, nonce string, fresh progress.Record) (progress.Record, bool) {
	prev, err := e.ledger.Load(ctx, nonce)
	if err != nil {
		if !errors.Is(err, errspkg.ErrNotFound) {
			e.logger.Warn("Cannot read previous progress, starting over", logging.LogFields{"nonce": nonce, "error": err.Error()})
		}
		return progress.Record{}, false
	}
	if prev.Finished() || prev.TotalMembers != fresh.TotalMembers || prev.TotalChunks != fresh.TotalChunks {
		return progress.Record{}, false
	}
	if prev.CurrentChunk < 0 || prev.CurrentChunk > prev.TotalChunks {
		return progress.Record{}, false
	}
	return prev, true
}
