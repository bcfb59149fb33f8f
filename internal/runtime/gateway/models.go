package gateway

import (
	"sort"
	"time"
)

// ChannelKind uses the gateway's numeric channel types.
type ChannelKind int

const (
	ChannelText     ChannelKind = 0
	ChannelVoice    ChannelKind = 2
	ChannelCategory ChannelKind = 4
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelText:
		return "text"
	case ChannelVoice:
		return "voice"
	case ChannelCategory:
		return "category"
	default:
		return "unknown"
	}
}

// Member is the serialisable view of a guild member sent to the backend.
type Member struct {
	ID       uint64    `json:"id,string" yaml:"id"`
	Username string    `json:"username" yaml:"username"`
	Nick     string    `json:"nick,omitempty" yaml:"nick"`
	Avatar   string    `json:"avatar,omitempty" yaml:"avatar"`
	Bot      bool      `json:"bot" yaml:"bot"`
	Roles    []uint64  `json:"roles" yaml:"roles"`
	JoinedAt time.Time `json:"joined_at" yaml:"joined_at"`
}

type Role struct {
	ID          uint64 `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Color       int    `json:"color" yaml:"color"`
	Hoist       bool   `json:"hoist" yaml:"hoist"`
	Position    int    `json:"position" yaml:"position"`
	Permissions uint64 `json:"permissions" yaml:"permissions"`
	Managed     bool   `json:"managed" yaml:"managed"`
}

type Channel struct {
	ID       uint64      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Position int         `json:"position" yaml:"position"`
	Kind     ChannelKind `json:"type" yaml:"type"`
	ParentID uint64      `json:"parent_id,omitempty" yaml:"parent_id"`
}

// Guild is a point-in-time copy of cached guild state.
type Guild struct {
	ID        uint64    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Icon      string    `json:"icon,omitempty" yaml:"icon"`
	Splash    string    `json:"splash,omitempty" yaml:"splash"`
	OwnerID   uint64    `json:"owner_id" yaml:"owner_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Roles     []Role    `json:"roles" yaml:"roles"`
	Channels  []Channel `json:"channels" yaml:"channels"`
	Members   []Member  `json:"members" yaml:"members"`
}

// CategoryGroup is one category and the channels filed under it. Category is
// nil for channels without a parent.
type CategoryGroup struct {
	Category *Channel
	Channels []Channel
}

// ByCategory groups non-category channels under their category, uncategorised
// first, then categories by position. Channels inside a group are ordered by
// position.
func (g Guild) ByCategory() []CategoryGroup {
	categories := make(map[uint64]*CategoryGroup)
	var order []*CategoryGroup
	loose := &CategoryGroup{}

	for i := range g.Channels {
		ch := g.Channels[i]
		if ch.Kind == ChannelCategory {
			group := &CategoryGroup{Category: &ch}
			categories[ch.ID] = group
			order = append(order, group)
		}
	}
	for _, ch := range g.Channels {
		if ch.Kind == ChannelCategory {
			continue
		}
		if group, ok := categories[ch.ParentID]; ok && ch.ParentID != 0 {
			group.Channels = append(group.Channels, ch)
			continue
		}
		loose.Channels = append(loose.Channels, ch)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Category.Position < order[j].Category.Position
	})

	groups := make([]CategoryGroup, 0, len(order)+1)
	if len(loose.Channels) > 0 {
		groups = append(groups, *loose)
	}
	for _, group := range order {
		groups = append(groups, *group)
	}
	for i := range groups {
		sortByPosition(groups[i].Channels)
	}
	return groups
}

func sortByPosition(chs []Channel) {
	sort.SliceStable(chs, func(i, j int) bool { return chs[i].Position < chs[j].Position })
}
