package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	"github.com/drblury/guildrelay/internal/runtime/logging/logtest"
)

func noopHandler[T any](context.Context, handlerpkg.Request[T]) (any, error) { return nil, nil }

func TestDiscoverBuildsRegistry(t *testing.T) {
	logs := logtest.New()
	reg, err := Discover(logs,
		JSONEndpoint("cache_lookup", noopHandler[lookupPayload]),
		JSONEndpoint("REQUEST_STATS", noopHandler[struct{}]),
	)
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"CACHE_LOOKUP", "REQUEST_STATS"}, reg.Channels())
	assert.Equal(t, "Registry[CACHE_LOOKUP,REQUEST_STATS]", reg.String())

	e, ok := reg.Lookup("Cache_Lookup")
	require.True(t, ok)
	assert.Equal(t, "CACHE_LOOKUP", e.Name())
	assert.Equal(t, "lookupPayload", e.PayloadType)

	_, ok = reg.Lookup("VERIFYALL")
	assert.False(t, ok)
	assert.True(t, logs.Has("info", "Discovered endpoints"))
}

func TestDiscoverFailsFast(t *testing.T) {
	tests := []struct {
		name string
		regs []Registration
		want error
	}{
		{name: "none", want: errspkg.ErrEndpointRequired},
		{name: "empty path", regs: []Registration{JSONEndpoint("", noopHandler[struct{}])}, want: errspkg.ErrEmptyPath},
		{name: "nil handler", regs: []Registration{JSONEndpoint[struct{}]("X", nil)}, want: errspkg.ErrHandlerRequired},
		{name: "zero registration", regs: []Registration{{Path: "X"}}, want: errspkg.ErrEndpointRequired},
		{
			name: "invalid after valid",
			regs: []Registration{JSONEndpoint("OK", noopHandler[struct{}]), JSONEndpoint[struct{}]("BAD", nil)},
			want: errspkg.ErrHandlerRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Discover(nil, tt.regs...)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, reg)
		})
	}
}

func TestDiscoverKeepsDuplicatesFirstWins(t *testing.T) {
	logs := logtest.New()
	reg, err := Discover(logs,
		JSONEndpoint("ECHO", noopHandler[lookupPayload]),
		JSONEndpoint("echo", noopHandler[struct{}]),
	)
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"ECHO"}, reg.Channels())
	e, ok := reg.Lookup("ECHO")
	require.True(t, ok)
	assert.Equal(t, "lookupPayload", e.PayloadType)

	warnings := logs.Find("warn", "Duplicate endpoint path")
	require.Len(t, warnings, 1)
	assert.Equal(t, "ECHO", warnings[0].Fields["endpoint"])
}

func TestNilRegistry(t *testing.T) {
	var reg *Registry
	assert.Zero(t, reg.Len())
	assert.Nil(t, reg.Channels())
	_, ok := reg.Lookup("X")
	assert.False(t, ok)
}
