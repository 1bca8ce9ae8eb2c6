package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/types"
)

func TestParseURI(t *testing.T) {
	u, err := ParseURI("bridge://bridge-42/stream/mic0?rate=48000&format=int16&channels=2&window=1024")
	require.NoError(t, err)

	assert.Equal(t, "bridge-42", u.BridgeID)
	assert.Equal(t, ResourceStream, u.Resource)
	assert.Equal(t, "mic0", u.StreamSpec)
	assert.Equal(t, uint32(48000), u.Rate)
	assert.Equal(t, types.FormatInt16, u.Format)
	assert.True(t, u.HasFormat)
	assert.Equal(t, uint8(2), u.Channels)
	assert.Equal(t, uint32(1024), u.Window)
}

func TestParseURI_Defaults(t *testing.T) {
	u, err := ParseURI("bridge://b-1/snapshot/frame")
	require.NoError(t, err)

	assert.Equal(t, ResourceSnapshot, u.Resource)
	assert.Zero(t, u.Rate)
	assert.False(t, u.HasFormat)
	assert.Zero(t, u.Channels)
}

func TestParseURI_Errors(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"wrong scheme", "http://b-1/stream/mic0"},
		{"missing bridge id", "bridge:///stream/mic0"},
		{"missing stream spec", "bridge://b-1/stream"},
		{"unknown resource", "bridge://b-1/firmware/mic0"},
		{"zero rate", "bridge://b-1/stream/mic0?rate=0"},
		{"bad format", "bridge://b-1/stream/mic0?format=float128"},
		{"bad channels", "bridge://b-1/stream/mic0?channels=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURI(tt.uri)
			assert.Error(t, err)
		})
	}
}

func TestURI_String(t *testing.T) {
	raw := "bridge://b-1/mixed/pair?rate=1000"
	u, err := ParseURI(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, u.String())
}
