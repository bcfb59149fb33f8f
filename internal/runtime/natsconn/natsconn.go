// Package natsconn opens NATS connections with JetStream enabled and routes
// connection lifecycle events into the relay logger.
package natsconn

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/drblury/guildrelay/internal/runtime/logging"
)

// Config holds connection settings.
type Config struct {
	// URL of the NATS server, e.g. "nats://localhost:4222".
	URL string
	// Name identifies this client in NATS monitoring (optional).
	Name string
	// ReconnectWait defaults to two seconds.
	ReconnectWait time.Duration
}

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Options builds the nats.Option set used by Connect; exposed for tests.
func Options(cfg Config, logger logging.ServiceLogger) []nats.Option {
	if logger == nil {
		logger = logging.Nop()
	}
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("NATS async error", err, nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", logging.LogFields{"error": fmt.Sprint(err)})
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", logging.LogFields{"url": nc.ConnectedUrl()})
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed", nil)
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	return opts
}

// Connect dials NATS and initialises JetStream.
func Connect(cfg Config, logger logging.ServiceLogger) (*Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	conn, err := nats.Connect(cfg.URL, Options(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to init JetStream: %w", err)
	}

	logger.Info("NATS connected", logging.LogFields{
		"url":  conn.ConnectedUrl(),
		"name": cfg.Name,
	})

	return &Client{conn: conn, js: js}, nil
}

// Conn returns the underlying connection.
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() nats.JetStreamContext {
	return c.js
}

// Close drains nothing; pending publishes are dropped.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
