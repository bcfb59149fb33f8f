package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
)

func TestLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(NewMemoryStore(), 0)
	assert.Equal(t, DefaultTTL, ledger.TTL())

	_, err := ledger.Load(ctx, "n1")
	require.ErrorIs(t, err, errspkg.ErrNotFound)

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{StartedAt: started, TotalMembers: 10, TotalChunks: 4, CurrentChunk: 1, MembersProcessed: 3}
	require.NoError(t, ledger.Save(ctx, "n1", rec))

	got, err := ledger.Load(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.EndedAt)
	assert.Equal(t, 3, got.MembersProcessed)
	assert.False(t, got.Finished())
}

func TestLedgerWritesUnderProgressKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ledger := NewLedger(store, time.Hour)

	require.NoError(t, ledger.Save(ctx, "abc", Record{}))
	require.NoError(t, ledger.Cancel(ctx, "abc"))

	for _, key := range []string{"progress:abc", "progress:abc:cancelled"} {
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
}

func TestLedgerCancelFlag(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ledger := NewLedger(store, time.Hour)

	cancelled, err := ledger.Cancelled(ctx, "n")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, ledger.Cancel(ctx, "n"))
	cancelled, err = ledger.Cancelled(ctx, "n")
	require.NoError(t, err)
	assert.True(t, cancelled)

	require.NoError(t, ledger.ClearCancel(ctx, "n"))
	cancelled, _ = ledger.Cancelled(ctx, "n")
	assert.False(t, cancelled)

	require.NoError(t, store.Set(ctx, CancelKey("empty"), []byte{}, 0))
	cancelled, _ = ledger.Cancelled(ctx, "empty")
	assert.False(t, cancelled)
}

func TestLedgerRejectsCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, RecordKey("bad"), []byte("{not json"), 0))

	_, err := NewLedger(store, 0).Load(ctx, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errspkg.ErrNotFound)
}

func TestRecordFinished(t *testing.T) {
	assert.False(t, Record{}.Finished())
	assert.False(t, Record{CurrentChunk: 2, TotalChunks: 4}.Finished())
	assert.True(t, Record{CurrentChunk: 4, TotalChunks: 4}.Finished())
}
