// Package transports imports all built-in transports for auto-registration.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/guildrelay/transport/channel"
	_ "github.com/drblury/guildrelay/transport/kafka"
	_ "github.com/drblury/guildrelay/transport/nats"
	_ "github.com/drblury/guildrelay/transport/rabbitmq"
)
