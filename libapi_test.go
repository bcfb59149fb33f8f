package guildrelay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEndpointExport(t *testing.T) {
	reg, err := Discover(nil, JSONEndpoint("ping", func(_ context.Context, req Request[struct{}]) (any, error) {
		return OK(req.Nonce, "pong"), nil
	}))
	require.NoError(t, err)

	e, ok := reg.Lookup("PING")
	require.True(t, ok)
	assert.Equal(t, "PING", e.Name())
}

func TestDiscoverExportPropagatesErrors(t *testing.T) {
	_, err := Discover(nil)
	assert.True(t, errors.Is(err, ErrEndpointRequired))

	_, err = Discover(nil, JSONEndpoint[struct{}]("x", nil))
	assert.ErrorIs(t, err, ErrHandlerRequired)
}

func TestParsePathExport(t *testing.T) {
	p, err := ParsePath("cache_lookup:extra")
	require.NoError(t, err)
	assert.Equal(t, "CACHE_LOOKUP:EXTRA", p.String())

	_, err = ParsePath("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultConfig()))
}

func TestEncodingExportAliases(t *testing.T) {
	payload, err := Marshal(Fail("n", "nope"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nonce":"n","success":false,"error":"nope"}`, string(payload))

	var out map[string]any
	require.NoError(t, Unmarshal(payload, &out))
	assert.Equal(t, "nope", out["error"])
}
