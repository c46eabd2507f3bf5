package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/gameserver/config"
	"github.com/cyberinferno/gameserver/dispatch"
	"github.com/cyberinferno/gameserver/handlers/system"
	"github.com/cyberinferno/gameserver/protocol"
	"github.com/cyberinferno/gameserver/respcache"
)

func TestBuildRegistry(t *testing.T) {
	heartbeat := dispatch.Route{Category: protocol.RequestNone, Action: protocol.ActionHeartbeat}

	t.Run("system handler is registered", func(t *testing.T) {
		cfg, err := config.Load(t.TempDir())
		require.NoError(t, err)

		r, err := buildRegistry(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, []dispatch.Route{heartbeat}, r.Routes())
		assert.False(t, r.IsCached(heartbeat))

		got, err := r.Dispatch(context.Background(), protocol.RequestNone, protocol.ActionHeartbeat, "")
		require.NoError(t, err)
		assert.Equal(t, system.HeartbeatReply, got)
	})

	t.Run("configured routes are cached", func(t *testing.T) {
		cfg, err := config.Load(t.TempDir())
		require.NoError(t, err)
		cfg.Cache.Backend = respcache.BackendMemory
		cfg.Cache.Routes = []string{heartbeat.String()}

		r, err := buildRegistry(cfg, respcache.NewMemoryStore(time.Minute, 0))
		require.NoError(t, err)
		assert.True(t, r.IsCached(heartbeat))
	})
}

func TestSkew(t *testing.T) {
	sent := time.UnixMilli(1_000_000)

	t.Run("offset from the round-trip midpoint", func(t *testing.T) {
		assert.Equal(t, " skew=40ms", skew("1000000,1000050", sent, 20*time.Millisecond))
	})

	t.Run("plain pong has no skew", func(t *testing.T) {
		assert.Empty(t, skew(system.HeartbeatReply, sent, time.Millisecond))
	})

	t.Run("malformed server time has no skew", func(t *testing.T) {
		assert.Empty(t, skew("1000000,soon", sent, time.Millisecond))
	})
}
