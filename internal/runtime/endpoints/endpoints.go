// Package endpoints holds the request handlers a relay node serves.
package endpoints

import (
	"context"

	"github.com/drblury/guildrelay/internal/runtime"
	"github.com/drblury/guildrelay/internal/runtime/backend"
	"github.com/drblury/guildrelay/internal/runtime/gateway"
	"github.com/drblury/guildrelay/internal/runtime/jobs"
	"github.com/drblury/guildrelay/internal/runtime/progress"
	"github.com/drblury/guildrelay/internal/runtime/tasks"
)

// Endpoint paths.
const (
	PathCacheLookup  = "CACHE_LOOKUP"
	PathRequestStats = "REQUEST_STATS"
	PathVerification = "VERIFICATION"
	PathVerifyAll    = "VERIFYALL"
	PathJobProgress  = "JOB_PROGRESS"
	PathJobCancel    = "JOB_CANCEL"
	PathGatewayEvent = "GATEWAY_EVENT"
)

// Backend is the part of the bot API the endpoints call. *backend.Client
// implements it.
type Backend interface {
	UpdateUser(ctx context.Context, userID, guildID uint64) error
	UpdateMembers(ctx context.Context, guildID uint64, members []gateway.Member, nonce string) error
	MemberJoin(ctx context.Context, guildID uint64, member gateway.Member) error
	PremiumStatus(ctx context.Context, guildID uint64) (backend.Premium, error)
}

var _ Backend = (*backend.Client)(nil)

// Deps are shared by every endpoint.
type Deps struct {
	State   gateway.State
	Backend Backend
	Ledger  *progress.Ledger
	Engine  *jobs.Engine
	// Tasks runs verifyall jobs; it should be the service's group so
	// shutdown waits for them.
	Tasks  *tasks.Group
	NodeID int

	// Cache receives gateway events. GATEWAY_EVENT is only served when set.
	Cache   *gateway.Cache
	Release string
}

type relay struct {
	Deps
}

// Registrations lists every endpoint backed by d.
func Registrations(d Deps) []runtime.Registration {
	r := &relay{Deps: d}
	regs := []runtime.Registration{
		runtime.JSONEndpoint(PathCacheLookup, r.cacheLookup),
		runtime.JSONEndpoint(PathRequestStats, r.requestStats),
		runtime.JSONEndpoint(PathVerification, r.verification),
		runtime.JSONEndpoint(PathVerifyAll, r.verifyAll),
		runtime.JSONEndpoint(PathJobProgress, r.jobProgress),
		runtime.JSONEndpoint(PathJobCancel, r.jobCancel),
	}
	if d.Cache != nil {
		regs = append(regs, runtime.JSONEndpoint(PathGatewayEvent, r.gatewayEvent))
	}
	return regs
}
