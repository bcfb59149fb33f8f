package endpoints

import (
	"context"

	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
)

type Verification struct {
	UserID   Snowflake   `json:"user_id"`
	GuildIDs []Snowflake `json:"guild_ids"`
}

// verification asks the backend to update the user in every listed guild
// this node holds. Backend failures are logged per guild and do not change
// the reply.
func (r *relay) verification(ctx context.Context, req handlerpkg.Request[Verification]) (any, error) {
	userID := uint64(req.Payload.UserID)
	for _, id := range req.Payload.GuildIDs {
		if _, ok := r.State.Guild(uint64(id)); !ok {
			continue
		}
		if err := r.Backend.UpdateUser(ctx, userID, uint64(id)); err != nil {
			req.Logger.Error("Backend rejected user update", err, loggingpkg.LogFields{
				"guild_id": id.String(),
				"user_id":  req.Payload.UserID.String(),
			})
		}
	}
	return handlerpkg.OK(req.Nonce, nil), nil
}
