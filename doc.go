// Package guildrelay is a relay node that answers guild-state requests over a
// message bus. Services publish a request envelope on an endpoint channel
// (CACHE_LOOKUP, REQUEST_STATS, VERIFICATION, VERIFYALL, ...) and receive the
// reply on REPLY:<nonce>.
//
// A node reads its transport (in-memory channel, NATS, Kafka or RabbitMQ)
// from Config, discovers its endpoints once at start-up and runs a single
// dispatch loop. Handlers run detached on a supervised task group, so a slow
// endpoint never holds up the bus, and nothing a handler does can stop the
// loop: failures end as log records and metrics.
//
// Long member updates (VERIFYALL) run as chunked jobs whose progress is kept
// in a ledger (memory, NATS JetStream KV or etcd) so operators can follow
// and cancel them through JOB_PROGRESS and JOB_CANCEL.
//
// # Custom endpoints
//
//	reg, err := guildrelay.Discover(logger,
//		guildrelay.JSONEndpoint("PING", func(ctx context.Context, req guildrelay.Request[struct{}]) (any, error) {
//			return guildrelay.OK(req.Nonce, "pong"), nil
//		}),
//	)
//	svc, err := guildrelay.NewService(ctx, cfg, logger, tr, reg, guildrelay.ServiceDependencies{})
//	err = svc.Run(ctx)
//
// See cmd/relay for the full node and cmd/relayctl for a request client.
package guildrelay
