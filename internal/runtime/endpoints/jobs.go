package endpoints

import (
	"context"
	"errors"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	"github.com/drblury/guildrelay/internal/runtime/progress"
)

// JobQuery names a job by the nonce of the request that started it.
type JobQuery struct {
	Nonce string `json:"nonce"`
}

type JobStatus struct {
	progress.Record
	Finished  bool `json:"finished"`
	Cancelled bool `json:"cancelled"`
}

// jobProgress reports a job this node can see in its ledger. Nodes that have
// no record stay silent, so another node can answer.
func (r *relay) jobProgress(ctx context.Context, req handlerpkg.Request[JobQuery]) (any, error) {
	if req.Payload.Nonce == "" {
		return handlerpkg.Fail(req.Nonce, "job nonce is required"), nil
	}
	rec, err := r.Ledger.Load(ctx, req.Payload.Nonce)
	if errors.Is(err, errspkg.ErrNotFound) {
		req.Logger.Debug("No progress recorded", loggingpkg.LogFields{"job_nonce": req.Payload.Nonce})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cancelled, err := r.Ledger.Cancelled(ctx, req.Payload.Nonce)
	if err != nil {
		return nil, err
	}
	return handlerpkg.OK(req.Nonce, JobStatus{Record: rec, Finished: rec.Finished(), Cancelled: cancelled}), nil
}

// jobCancel raises the cancellation flag for a job recorded in this node's
// ledger. The job stops after its next progress write. Unknown jobs get no
// reply.
func (r *relay) jobCancel(ctx context.Context, req handlerpkg.Request[JobQuery]) (any, error) {
	if req.Payload.Nonce == "" {
		return handlerpkg.Fail(req.Nonce, "job nonce is required"), nil
	}
	fields := loggingpkg.LogFields{"job_nonce": req.Payload.Nonce}
	if _, err := r.Ledger.Load(ctx, req.Payload.Nonce); err != nil {
		if errors.Is(err, errspkg.ErrNotFound) {
			req.Logger.Debug("No progress recorded, cancellation ignored", fields)
			return nil, nil
		}
		return nil, err
	}
	if err := r.Ledger.Cancel(ctx, req.Payload.Nonce); err != nil {
		return nil, err
	}
	req.Logger.Info("Job cancellation requested", fields)
	return handlerpkg.OK(req.Nonce, nil), nil
}
