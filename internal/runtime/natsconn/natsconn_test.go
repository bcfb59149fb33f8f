package natsconn

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/guildrelay/internal/runtime/logging/logtest"
)

func applyOptions(t *testing.T, opts []nats.Option) nats.Options {
	t.Helper()
	o := nats.GetDefaultOptions()
	for _, opt := range opts {
		require.NoError(t, opt(&o))
	}
	return o
}

func TestOptionsApplyNameAndReconnect(t *testing.T) {
	o := applyOptions(t, Options(Config{URL: "nats://x:4222", Name: "relay-2"}, nil))

	assert.Equal(t, "relay-2", o.Name)
	assert.Equal(t, -1, o.MaxReconnect)
	assert.Equal(t, 2e9, float64(o.ReconnectWait))
}

func TestOptionsRouteEventsToLogger(t *testing.T) {
	rec := logtest.New()
	o := applyOptions(t, Options(Config{}, rec))

	require.NotNil(t, o.ClosedCB)
	o.ClosedCB(nil)
	assert.True(t, rec.Has("info", "NATS connection closed"))

	require.NotNil(t, o.AsyncErrorCB)
	o.AsyncErrorCB(nil, nil, assert.AnError)
	assert.True(t, rec.Has("error", "NATS async error"))
}

func TestConnectFailsWithoutServer(t *testing.T) {
	_, err := Connect(Config{URL: "nats://127.0.0.1:1"}, nil)
	assert.Error(t, err)
}
