package endpoints

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drblury/guildrelay/internal/runtime/backend"
	"github.com/drblury/guildrelay/internal/runtime/gateway"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	"github.com/drblury/guildrelay/internal/runtime/jobs"
	"github.com/drblury/guildrelay/internal/runtime/logging/logtest"
	"github.com/drblury/guildrelay/internal/runtime/progress"
	"github.com/drblury/guildrelay/internal/runtime/tasks"
)

type userUpdate struct{ user, guild uint64 }

type fakeBackend struct {
	mu         sync.Mutex
	users      []userUpdate
	chunks     [][]uint64
	joins      []uint64
	premiumFor []uint64
	userErr    error
	chunkErrAt int
	chunkErr   error
	chunkHook  func(index int)
}

func (b *fakeBackend) UpdateUser(_ context.Context, userID, guildID uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = append(b.users, userUpdate{userID, guildID})
	return b.userErr
}

func (b *fakeBackend) UpdateMembers(_ context.Context, _ uint64, members []gateway.Member, _ string) error {
	b.mu.Lock()
	ids := make([]uint64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	b.chunks = append(b.chunks, ids)
	index := len(b.chunks)
	hook := b.chunkHook
	b.mu.Unlock()

	if hook != nil {
		hook(index)
	}
	if b.chunkErr != nil && index == b.chunkErrAt {
		return b.chunkErr
	}
	return nil
}

func (b *fakeBackend) MemberJoin(_ context.Context, _ uint64, member gateway.Member) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joins = append(b.joins, member.ID)
	return nil
}

func (b *fakeBackend) PremiumStatus(_ context.Context, guildID uint64) (backend.Premium, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.premiumFor = append(b.premiumFor, guildID)
	return backend.Premium{Premium: true, Features: []string{"pro"}}, nil
}

func (b *fakeBackend) Chunks() [][]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]uint64(nil), b.chunks...)
}

type fixture struct {
	relay   *relay
	cache   *gateway.Cache
	backend *fakeBackend
	ledger  *progress.Ledger
	group   *tasks.Group
	logs    *logtest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logs := logtest.New()
	cache := gateway.NewCache()
	cache.UpsertGuild(sampleGuild())
	be := &fakeBackend{}
	ledger := progress.NewLedger(progress.NewMemoryStore(), 0)
	group := tasks.NewGroup(context.Background(), logs, tasks.Hooks{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, group.Shutdown(ctx))
	})

	engine := jobs.NewEngine(ledger, logs, jobs.WithDelay(0))
	return &fixture{
		relay: &relay{Deps: Deps{
			State:   cache,
			Backend: be,
			Ledger:  ledger,
			Engine:  engine,
			Tasks:   group,
			NodeID:  3,
			Cache:   cache,
		}},
		cache:   cache,
		backend: be,
		ledger:  ledger,
		group:   group,
		logs:    logs,
	}
}

func request[T any](nonce string, payload T, logs *logtest.Recorder) handlerpkg.Request[T] {
	info := handlerpkg.RequestInfo{ReceivedAt: time.Now(), Nonce: nonce, Channel: "TEST"}
	return handlerpkg.NewRequest(info, payload, logs, nil)
}

func sampleGuild() gateway.Guild {
	return gateway.Guild{
		ID:        500,
		Name:      "Guild",
		Icon:      "abc",
		OwnerID:   7,
		CreatedAt: time.Unix(1600000000, 0),
		Roles: []gateway.Role{
			{ID: 1, Name: "@everyone", Color: 0, Position: 0, Permissions: 104324673},
			{ID: 2, Name: "Mod", Color: 0x3498db, Hoist: true, Position: 1, Permissions: 8, Managed: false},
		},
		Channels: []gateway.Channel{
			{ID: 20, Name: "Info", Position: 0, Kind: gateway.ChannelCategory},
			{ID: 21, Name: "rules", Position: 1, Kind: gateway.ChannelText, ParentID: 20},
			{ID: 22, Name: "welcome", Position: 0, Kind: gateway.ChannelText, ParentID: 20},
			{ID: 23, Name: "Voice", Position: 2, Kind: gateway.ChannelVoice, ParentID: 20},
			{ID: 24, Name: "lobby", Position: 0, Kind: gateway.ChannelText},
		},
		Members: []gateway.Member{
			{ID: 101, Username: "a"},
			{ID: 102, Username: "b"},
			{ID: 103, Username: "c"},
			{ID: 104, Username: "d"},
			{ID: 105, Username: "e"},
		},
	}
}
