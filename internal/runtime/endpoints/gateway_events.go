package endpoints

import (
	"context"
	"fmt"
	"slices"

	configpkg "github.com/drblury/guildrelay/internal/runtime/config"
	"github.com/drblury/guildrelay/internal/runtime/gateway"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
)

// Gateway event types.
const (
	EventGuildCreate  = "GUILD_CREATE"
	EventGuildDelete  = "GUILD_DELETE"
	EventMemberAdd    = "GUILD_MEMBER_ADD"
	EventMemberRemove = "GUILD_MEMBER_REMOVE"
)

// GatewayEvent is a state change forwarded by the gateway connection.
type GatewayEvent struct {
	Type    string          `json:"type"`
	GuildID Snowflake       `json:"guild_id"`
	Guild   *gateway.Guild  `json:"guild,omitempty"`
	Member  *gateway.Member `json:"member,omitempty"`
}

// gatewayEvent applies an event to the cache. Events never get a reply.
func (r *relay) gatewayEvent(ctx context.Context, req handlerpkg.Request[GatewayEvent]) (any, error) {
	ev := req.Payload
	switch ev.Type {
	case EventGuildCreate:
		if ev.Guild == nil {
			return nil, fmt.Errorf("%s without guild", ev.Type)
		}
		r.Cache.UpsertGuild(*ev.Guild)
		if r.Release == configpkg.ReleasePro {
			r.checkPremium(ctx, req.Logger, ev.Guild.ID)
		}
	case EventGuildDelete:
		r.Cache.RemoveGuild(uint64(ev.GuildID))
	case EventMemberAdd:
		if ev.Member == nil {
			return nil, fmt.Errorf("%s without member", ev.Type)
		}
		if err := r.Cache.AddMember(uint64(ev.GuildID), *ev.Member); err != nil {
			return nil, err
		}
		if err := r.Backend.MemberJoin(ctx, uint64(ev.GuildID), *ev.Member); err != nil {
			return nil, fmt.Errorf("member join: %w", err)
		}
	case EventMemberRemove:
		if ev.Member == nil {
			return nil, fmt.Errorf("%s without member", ev.Type)
		}
		r.Cache.RemoveMember(uint64(ev.GuildID), ev.Member.ID)
	default:
		return nil, fmt.Errorf("unknown gateway event %q", ev.Type)
	}
	return nil, nil
}

func (r *relay) checkPremium(ctx context.Context, log loggingpkg.ServiceLogger, guildID uint64) {
	premium, err := r.Backend.PremiumStatus(ctx, guildID)
	if err != nil {
		log.Error("Premium check failed", err, loggingpkg.LogFields{"guild_id": guildID})
		return
	}
	log.Info("Premium check", loggingpkg.LogFields{
		"guild_id": guildID,
		"premium":  premium.Premium,
		"pro":      premium.Premium && slices.Contains(premium.Features, "pro"),
	})
}
