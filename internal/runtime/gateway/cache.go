// Package gateway holds the in-memory guild state the relay answers from.
// The gateway connection that feeds it lives outside this module; it writes
// through Cache's mutators while endpoints read snapshots concurrently.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownGuild is returned for guilds this node does not hold.
var ErrUnknownGuild = errors.New("gateway: guild not cached")

// State is what endpoints read from the gateway.
type State interface {
	Guild(id uint64) (Guild, bool)
	ChunkMembers(ctx context.Context, guildID uint64) ([]Member, error)
	GuildCount() int
	UserCount() int
	StartedAt() time.Time
}

// Cache is a concurrency-safe State.
type Cache struct {
	mu      sync.RWMutex
	guilds  map[uint64]*Guild
	started time.Time
}

// NewCache returns an empty cache stamped with the current time.
func NewCache() *Cache {
	return &Cache{guilds: make(map[uint64]*Guild), started: time.Now()}
}

// UpsertGuild replaces the cached copy of g.
func (c *Cache) UpsertGuild(g Guild) {
	cp := cloneGuild(g)
	c.mu.Lock()
	c.guilds[g.ID] = &cp
	c.mu.Unlock()
}

// RemoveGuild forgets a guild.
func (c *Cache) RemoveGuild(id uint64) {
	c.mu.Lock()
	delete(c.guilds, id)
	c.mu.Unlock()
}

// AddMember inserts or replaces a member of a cached guild.
func (c *Cache) AddMember(guildID uint64, m Member) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok {
		return ErrUnknownGuild
	}
	for i := range g.Members {
		if g.Members[i].ID == m.ID {
			g.Members[i] = m
			return nil
		}
	}
	g.Members = append(g.Members, m)
	return nil
}

// RemoveMember drops a member; unknown ids are ignored.
func (c *Cache) RemoveMember(guildID, userID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok {
		return
	}
	for i := range g.Members {
		if g.Members[i].ID == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return
		}
	}
}

// Guild returns a copy of the cached guild.
func (c *Cache) Guild(id uint64) (Guild, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.guilds[id]
	if !ok {
		return Guild{}, false
	}
	return cloneGuild(*g), true
}

// ChunkMembers returns every member of the guild ordered by id.
func (c *Cache) ChunkMembers(ctx context.Context, guildID uint64) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, ok := c.Guild(guildID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGuild, guildID)
	}
	sort.Slice(g.Members, func(i, j int) bool { return g.Members[i].ID < g.Members[j].ID })
	return g.Members, nil
}

func (c *Cache) GuildCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.guilds)
}

// UserCount counts distinct member ids across guilds.
func (c *Cache) UserCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[uint64]struct{})
	for _, g := range c.guilds {
		for _, m := range g.Members {
			seen[m.ID] = struct{}{}
		}
	}
	return len(seen)
}

func (c *Cache) StartedAt() time.Time {
	return c.started
}

type snapshot struct {
	Guilds []Guild `yaml:"guilds"`
}

// LoadSnapshot seeds the cache from a YAML document with a top-level
// "guilds" list. Used for local runs without a gateway connection.
func (c *Cache) LoadSnapshot(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("gateway: read snapshot: %w", err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("gateway: parse snapshot: %w", err)
	}
	for _, g := range snap.Guilds {
		c.UpsertGuild(g)
	}
	return len(snap.Guilds), nil
}

func cloneGuild(g Guild) Guild {
	g.Roles = append([]Role(nil), g.Roles...)
	g.Channels = append([]Channel(nil), g.Channels...)
	members := make([]Member, len(g.Members))
	for i, m := range g.Members {
		m.Roles = append([]uint64(nil), m.Roles...)
		members[i] = m
	}
	g.Members = members
	return g
}
