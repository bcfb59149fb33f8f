package transport

// Capabilities describes the features supported by a transport backend.
type Capabilities struct {
	// SupportsOrdering indicates the transport delivers messages of one
	// channel in publish order.
	SupportsOrdering bool `json:"supports_ordering"`

	// SupportsBroadcast indicates every node subscribed to a channel receives
	// each message, rather than one consumer of a group.
	SupportsBroadcast bool `json:"supports_broadcast"`

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool `json:"supports_ack"`

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool `json:"supports_nack"`

	// SupportsTracing indicates the transport propagates metadata headers natively.
	SupportsTracing bool `json:"supports_tracing"`

	// RestrictedTopicNames indicates channel names must be rewritten before
	// reaching the broker (Kafka forbids ':').
	RestrictedTopicNames bool `json:"restricted_topic_names"`

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64 `json:"max_message_size,omitempty"`

	// Name is the human-readable name of the transport.
	Name string `json:"name"`
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:              "channel",
		SupportsOrdering:  true,
		SupportsBroadcast: true,
		SupportsAck:       true,
		SupportsNack:      true,
	}

	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsBroadcast: true,
		SupportsTracing:   true,
		MaxMessageSize:    1048576, // Default 1MB
	}

	// Kafka broadcasts because every node joins with its own consumer group.
	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsBroadcast:    true,
		SupportsTracing:      true,
		SupportsAck:          true,
		RestrictedTopicNames: true,
		MaxMessageSize:       1048576,
	}

	// RabbitMQ broadcasts through one non-durable queue per node.
	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsOrdering:  true,
		SupportsBroadcast: true,
		SupportsTracing:   true,
		SupportsAck:       true,
		SupportsNack:      true,
	}
)
