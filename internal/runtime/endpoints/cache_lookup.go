package endpoints

import (
	"context"
	"fmt"
	"strings"

	"github.com/drblury/guildrelay/internal/runtime/gateway"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
)

// Lookup types.
const (
	LookupGuild    = "guild"
	LookupRoles    = "roles"
	LookupChannels = "channels"
)

type CacheLookup struct {
	GuildID Snowflake `json:"guildID"`
	Type    string    `json:"type"`
}

type GuildData struct {
	ID           uint64  `json:"id"`
	Name         string  `json:"name"`
	Icon         *string `json:"icon"`
	Owner        uint64  `json:"owner"`
	Splash       *string `json:"splash"`
	TotalMembers int     `json:"totalMembers"`
	CreatedDate  int64   `json:"createdDate"`
}

type RoleData struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Hoist       bool   `json:"hoist"`
	Position    int    `json:"position"`
	Permissions uint64 `json:"permissions"`
	Managed     bool   `json:"managed"`
}

type ChannelData struct {
	ID       uint64              `json:"id"`
	Name     string              `json:"name"`
	Position int                 `json:"position"`
	Type     gateway.ChannelKind `json:"type"`
}

// cacheLookup answers from the guild cache. Guilds this node does not hold
// get no reply, so another node can answer.
func (r *relay) cacheLookup(_ context.Context, req handlerpkg.Request[CacheLookup]) (any, error) {
	guild, ok := r.State.Guild(uint64(req.Payload.GuildID))
	if !ok {
		req.Logger.Debug("Guild not cached", loggingpkg.LogFields{"guild_id": req.Payload.GuildID.String()})
		return nil, nil
	}

	switch strings.ToLower(req.Payload.Type) {
	case LookupGuild:
		return handlerpkg.OK(req.Nonce, guildData(guild)), nil
	case LookupRoles:
		roles := make([]RoleData, 0, len(guild.Roles))
		for _, role := range guild.Roles {
			roles = append(roles, roleData(role))
		}
		return handlerpkg.OK(req.Nonce, roles), nil
	case LookupChannels:
		return handlerpkg.OK(req.Nonce, channelData(guild)), nil
	default:
		return handlerpkg.Fail(req.Nonce, fmt.Sprintf("unknown lookup type %q", req.Payload.Type)), nil
	}
}

func guildData(g gateway.Guild) GuildData {
	return GuildData{
		ID:           g.ID,
		Name:         g.Name,
		Icon:         optional(g.Icon),
		Owner:        g.OwnerID,
		Splash:       optional(g.Splash),
		TotalMembers: len(g.Members),
		CreatedDate:  g.CreatedAt.Unix(),
	}
}

func roleData(role gateway.Role) RoleData {
	return RoleData{
		ID:          role.ID,
		Name:        role.Name,
		Color:       fmt.Sprintf("#%06x", role.Color),
		Hoist:       role.Hoist,
		Position:    role.Position,
		Permissions: role.Permissions,
		Managed:     role.Managed,
	}
}

// channelData lists each category followed by its text channels.
func channelData(g gateway.Guild) []ChannelData {
	out := []ChannelData{}
	for _, group := range g.ByCategory() {
		if c := group.Category; c != nil {
			out = append(out, ChannelData{ID: c.ID, Name: c.Name, Position: c.Position, Type: gateway.ChannelCategory})
		}
		for _, c := range group.Channels {
			if c.Kind != gateway.ChannelText {
				continue
			}
			out = append(out, ChannelData{ID: c.ID, Name: c.Name, Position: c.Position, Type: gateway.ChannelText})
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
