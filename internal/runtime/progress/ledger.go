package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
)

// Ledger reads and writes progress records and cancellation flags.
// Writes are last-writer-wins; one job per nonce is assumed.
type Ledger struct {
	store Store
	ttl   time.Duration
}

// NewLedger wraps store. A non-positive ttl falls back to DefaultTTL.
func NewLedger(store Store, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{store: store, ttl: ttl}
}

// TTL is the expiry applied to every write.
func (l *Ledger) TTL() time.Duration { return l.ttl }

// Load returns the record of nonce or errors.ErrNotFound.
func (l *Ledger) Load(ctx context.Context, nonce string) (Record, error) {
	raw, err := l.store.Get(ctx, RecordKey(nonce))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := jsoncodec.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("progress: decode record %s: %w", nonce, err)
	}
	return rec, nil
}

// Save overwrites the record of nonce.
func (l *Ledger) Save(ctx context.Context, nonce string, rec Record) error {
	raw, err := jsoncodec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("progress: encode record %s: %w", nonce, err)
	}
	if err := l.store.Set(ctx, RecordKey(nonce), raw, l.ttl); err != nil {
		return fmt.Errorf("progress: save record %s: %w", nonce, err)
	}
	return nil
}

// Cancel raises the cancellation flag of nonce.
func (l *Ledger) Cancel(ctx context.Context, nonce string) error {
	if err := l.store.Set(ctx, CancelKey(nonce), []byte("1"), l.ttl); err != nil {
		return fmt.Errorf("progress: cancel %s: %w", nonce, err)
	}
	return nil
}

// Cancelled reports whether a non-empty flag is set for nonce.
func (l *Ledger) Cancelled(ctx context.Context, nonce string) (bool, error) {
	raw, err := l.store.Get(ctx, CancelKey(nonce))
	if errors.Is(err, errspkg.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("progress: read cancel flag %s: %w", nonce, err)
	}
	return len(raw) > 0, nil
}

// ClearCancel removes the flag so a resumed job is not stopped immediately.
func (l *Ledger) ClearCancel(ctx context.Context, nonce string) error {
	return l.store.Delete(ctx, CancelKey(nonce))
}
