/*
Package runtime is the relay node: it discovers endpoints, listens on the bus
and dispatches every request to its handler.

# Requests

Callers publish an envelope on an endpoint channel:

	{"type": "message", "channel": "CACHE_LOOKUP", "pattern": null,
	 "data": "{\"nonce\": \"abc\", \"data\": {\"guildID\": \"1\", \"type\": \"roles\"}}"}

The loop routes on the first segment of the channel, decodes data into the
endpoint's payload type and runs the handler on the task group. A non-nil
result is published on REPLY:<nonce>. Results that are not a
handlers.Response are wrapped as {nonce, data, cluster_id}.

# Failure handling

Nothing a single request does can stop the loop. Undecodable envelopes,
routing misses, handler errors, panics and timeouts all end as a log record
and a metric; the caller sees no reply.

# Wiring

	registry, err := runtime.Discover(logger,
		runtime.JSONEndpoint("CACHE_LOOKUP", lookup),
		runtime.JSONEndpoint("REQUEST_STATS", stats),
	)
	svc, err := runtime.NewService(ctx, conf, logger, tr, registry, runtime.ServiceDependencies{})
	go svc.Run(ctx)

# Sub-packages

  - config/: layered configuration and validation
  - errors/: sentinel and typed errors
  - handlers/: typed requests, replies and reply routing
  - relaypath/: endpoint paths
  - tasks/: the supervised task group
  - jobs/, progress/: chunked jobs and their progress ledger
  - gateway/: the guild state cache
  - backend/: the bot API client
  - endpoints/: the relay's own endpoints
*/
package runtime
