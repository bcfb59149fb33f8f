package handlers

// Metadata keys set on messages the relay publishes.
const (
	// MetadataKeyChannel mirrors transport.ChannelMetadataKey so replies keep
	// their relay channel name on transports that rewrite topics.
	MetadataKeyChannel = "relay_channel"

	MetadataKeyNonce = "relay_nonce"

	// MetadataKeyNode identifies the relay node that produced a reply.
	MetadataKeyNode = "relay_node"

	// MetadataKeyTraceID stores distributed tracing ID.
	MetadataKeyTraceID = "trace_id"

	// MetadataKeySpanID stores distributed tracing span ID.
	MetadataKeySpanID = "span_id"
)
