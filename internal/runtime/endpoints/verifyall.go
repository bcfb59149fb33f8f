package endpoints

import (
	"context"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/gateway"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	"github.com/drblury/guildrelay/internal/runtime/jobs"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
)

type VerifyAll struct {
	GuildID    Snowflake `json:"guild_id"`
	ChannelID  Snowflake `json:"channel_id"`
	ChunkLimit int       `json:"chunk_limit"`
	// Resume continues an unfinished job with the same nonce.
	Resume bool `json:"resume"`
}

// verifyAll starts a chunked update of every member of the guild and replies
// as soon as the job is scheduled. Progress is read with JOB_PROGRESS.
func (r *relay) verifyAll(ctx context.Context, req handlerpkg.Request[VerifyAll]) (any, error) {
	p := req.Payload
	guildID := uint64(p.GuildID)
	if _, ok := r.State.Guild(guildID); !ok {
		req.Logger.Debug("Guild not cached", loggingpkg.LogFields{"guild_id": p.GuildID.String()})
		return nil, nil
	}
	if req.Nonce == "" {
		return handlerpkg.Fail("", "verifyall needs a nonce to record progress"), nil
	}
	if p.ChunkLimit <= 0 {
		return handlerpkg.Fail(req.Nonce, errspkg.ErrInvalidChunkLimit.Error()), nil
	}

	members, err := r.State.ChunkMembers(ctx, guildID)
	if err != nil {
		return nil, err
	}

	nonce := req.Nonce
	if p.Resume {
		if err := r.Ledger.ClearCancel(ctx, nonce); err != nil {
			return nil, err
		}
	}
	log := req.Logger.With(loggingpkg.LogFields{
		"guild_id":    p.GuildID.String(),
		"channel_id":  p.ChannelID.String(),
		"members":     len(members),
		"chunk_limit": p.ChunkLimit,
	})
	name, err := r.Tasks.Go("verifyall", func(ctx context.Context) error {
		return r.runVerifyAll(ctx, log, nonce, guildID, members, p.ChunkLimit, p.Resume)
	})
	if err != nil {
		return nil, err
	}
	log.Info("Scheduled verifyall job", loggingpkg.LogFields{"task": name})
	return handlerpkg.OK(nonce, nil), nil
}

func (r *relay) runVerifyAll(ctx context.Context, log loggingpkg.ServiceLogger, nonce string, guildID uint64, members []gateway.Member, limit int, resume bool) error {
	res, err := jobs.Run(ctx, r.Engine, nonce, members, limit, resume, func(ctx context.Context, _ int, chunk []gateway.Member) error {
		return r.Backend.UpdateMembers(ctx, guildID, chunk, nonce)
	})
	if err != nil {
		log.Error("Verifyall job aborted", err, nil)
		return err
	}

	fields := loggingpkg.LogFields{
		"status":            string(res.Status),
		"members_processed": res.Record.MembersProcessed,
		"chunks_skipped":    res.Skipped,
	}
	if res.Status == jobs.StatusFailed {
		log.Error("Verifyall job stopped", res.Err, fields)
		return nil
	}
	log.Info("Verifyall job finished", fields)
	return nil
}
