package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ipsniff/internal/core"
)

func TestLocalAddressLoopback(t *testing.T) {
	// Loopback always has a route, so this works without network access.
	addr, err := LocalAddress(context.Background(), "127.0.0.1:9")
	require.NoError(t, err)
	assert.True(t, addr.Is4())
	assert.True(t, addr.IsLoopback())
}

func TestLocalAddressErrors(t *testing.T) {
	tests := []struct {
		name  string
		probe string
	}{
		{"missing port", "127.0.0.1"},
		{"ipv6 probe", "[::1]:9"},
		{"garbage", "not an address:xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LocalAddress(context.Background(), tt.probe)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrResolution), "got %v", err)
		})
	}
}

func TestLocalAddressCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LocalAddress(ctx, "127.0.0.1:9")
	assert.ErrorIs(t, err, core.ErrResolution)
}
