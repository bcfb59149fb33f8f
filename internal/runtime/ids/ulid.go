package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Outgoing bus messages and supervised tasks are named with it.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// TaskName prefixes a fresh ULID so log records of a detached task can be
// traced back to what spawned it.
func TaskName(prefix string) string {
	if prefix == "" {
		return CreateULID()
	}
	return prefix + "-" + CreateULID()
}

// Timestamp extracts the creation time of a ULID produced by CreateULID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
