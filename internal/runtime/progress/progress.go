// Package progress persists the state of batch jobs keyed by request nonce,
// together with the side-channel flag operators set to cancel a job.
package progress

import (
	"context"
	"time"
)

// DefaultTTL is how long records survive, finished or not.
const DefaultTTL = 48 * time.Hour

// Record is the persisted progress of one chunked job.
type Record struct {
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	MembersProcessed int        `json:"members_processed"`
	TotalMembers     int        `json:"total_members"`
	CurrentChunk     int        `json:"current_chunk"`
	TotalChunks      int        `json:"total_chunks"`
}

// Finished reports whether every chunk has been recorded.
func (r Record) Finished() bool {
	return r.TotalChunks != 0 && r.CurrentChunk == r.TotalChunks
}

// Store is a key-value store with per-key expiry. Get returns
// errors.ErrNotFound for missing or expired keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// RecordKey is where the progress of nonce lives.
func RecordKey(nonce string) string {
	return "progress:" + nonce
}

// CancelKey holds the cancellation flag of nonce.
func CancelKey(nonce string) string {
	return "progress:" + nonce + ":cancelled"
}
