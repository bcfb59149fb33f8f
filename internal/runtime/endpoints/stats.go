package endpoints

import (
	"context"
	"time"

	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
)

// StatsResponse describes this node. Uptime is in seconds.
type StatsResponse struct {
	handlerpkg.Response
	NodeID     int     `json:"node_id"`
	GuildCount int     `json:"guild_count"`
	UserCount  int     `json:"user_count"`
	Uptime     float64 `json:"uptime"`
}

func (r *relay) requestStats(_ context.Context, req handlerpkg.Request[struct{}]) (any, error) {
	return StatsResponse{
		Response:   handlerpkg.Response{Nonce: req.Nonce},
		NodeID:     r.NodeID,
		GuildCount: r.State.GuildCount(),
		UserCount:  r.State.UserCount(),
		Uptime:     time.Since(r.State.StartedAt()).Seconds(),
	}, nil
}
