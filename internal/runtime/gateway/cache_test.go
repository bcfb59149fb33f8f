package gateway

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuild() Guild {
	return Guild{
		ID:      10,
		Name:    "guild",
		OwnerID: 1,
		Roles:   []Role{{ID: 100, Name: "@everyone"}},
		Members: []Member{
			{ID: 3, Username: "c"},
			{ID: 1, Username: "a", Roles: []uint64{100}},
			{ID: 2, Username: "b"},
		},
	}
}

func TestCacheGuildReturnsCopy(t *testing.T) {
	c := NewCache()
	c.UpsertGuild(testGuild())

	g, ok := c.Guild(10)
	require.True(t, ok)
	g.Name = "mutated"
	g.Members[1].Roles[0] = 999

	again, _ := c.Guild(10)
	assert.Equal(t, "guild", again.Name)
	assert.Equal(t, uint64(100), again.Members[1].Roles[0])

	_, ok = c.Guild(11)
	assert.False(t, ok)
}

func TestChunkMembersSortedByID(t *testing.T) {
	c := NewCache()
	c.UpsertGuild(testGuild())

	members, err := c.ChunkMembers(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{members[0].ID, members[1].ID, members[2].ID})

	_, err = c.ChunkMembers(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownGuild)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ChunkMembers(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemberMutationsAndCounts(t *testing.T) {
	c := NewCache()
	c.UpsertGuild(testGuild())
	c.UpsertGuild(Guild{ID: 20, Members: []Member{{ID: 1}, {ID: 4}}})

	assert.Equal(t, 2, c.GuildCount())
	assert.Equal(t, 4, c.UserCount())

	require.NoError(t, c.AddMember(20, Member{ID: 5}))
	require.NoError(t, c.AddMember(20, Member{ID: 5, Nick: "renamed"}))
	assert.ErrorIs(t, c.AddMember(30, Member{ID: 6}), ErrUnknownGuild)
	assert.Equal(t, 5, c.UserCount())

	c.RemoveMember(20, 4)
	c.RemoveMember(20, 404)
	c.RemoveMember(30, 1)
	g, _ := c.Guild(20)
	require.Len(t, g.Members, 2)
	assert.Equal(t, "renamed", g.Members[1].Nick)

	c.RemoveGuild(20)
	assert.Equal(t, 1, c.GuildCount())
	assert.False(t, c.StartedAt().IsZero())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	c.UpsertGuild(testGuild())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func(id uint64) {
			defer wg.Done()
			_ = c.AddMember(10, Member{ID: 100 + id})
		}(uint64(i))
		go func() {
			defer wg.Done()
			_, _ = c.ChunkMembers(context.Background(), 10)
			_ = c.UserCount()
		}()
	}
	wg.Wait()
	assert.Equal(t, 11, c.UserCount())
}

func TestByCategory(t *testing.T) {
	g := Guild{Channels: []Channel{
		{ID: 1, Name: "second", Position: 1, Kind: ChannelCategory},
		{ID: 2, Name: "first", Position: 0, Kind: ChannelCategory},
		{ID: 3, Name: "b", Position: 2, Kind: ChannelText, ParentID: 1},
		{ID: 4, Name: "a", Position: 1, Kind: ChannelText, ParentID: 1},
		{ID: 5, Name: "loose", Position: 0, Kind: ChannelText},
		{ID: 6, Name: "orphan", Position: 3, Kind: ChannelVoice, ParentID: 77},
	}}

	groups := g.ByCategory()
	require.Len(t, groups, 3)

	assert.Nil(t, groups[0].Category)
	assert.Equal(t, []uint64{5, 6}, channelIDs(groups[0].Channels))

	require.NotNil(t, groups[1].Category)
	assert.Equal(t, "first", groups[1].Category.Name)
	assert.Empty(t, groups[1].Channels)

	assert.Equal(t, "second", groups[2].Category.Name)
	assert.Equal(t, []uint64{4, 3}, channelIDs(groups[2].Channels))
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	doc := `guilds:
  - id: 42
    name: relay
    owner_id: 7
    roles:
      - {id: 1, name: admin, color: 16711680}
    channels:
      - {id: 2, name: general, type: 0}
    members:
      - {id: 7, username: owner}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c := NewCache()
	n, err := c.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g, ok := c.Guild(42)
	require.True(t, ok)
	assert.Equal(t, "relay", g.Name)
	assert.Equal(t, 16711680, g.Roles[0].Color)
	assert.Equal(t, ChannelText, g.Channels[0].Kind)
	assert.Equal(t, 1, c.UserCount())

	_, err = c.LoadSnapshot(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func channelIDs(chs []Channel) []uint64 {
	ids := make([]uint64, len(chs))
	for i, ch := range chs {
		ids[i] = ch.ID
	}
	return ids
}
