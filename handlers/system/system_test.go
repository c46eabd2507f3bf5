package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/gameserver/dispatch"
	"github.com/cyberinferno/gameserver/protocol"
)

func TestHeartbeat(t *testing.T) {
	h := New()
	h.now = func() time.Time { return time.UnixMilli(1700000000123) }

	t.Run("empty payload gets pong", func(t *testing.T) {
		got, err := h.Heartbeat(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, HeartbeatReply, got)
	})

	t.Run("timestamp payload is echoed with server time", func(t *testing.T) {
		got, err := h.Heartbeat(context.Background(), "1699999999999")
		require.NoError(t, err)
		assert.Equal(t, "1699999999999,1700000000123", got)
	})
}

func TestHandler_registers(t *testing.T) {
	r := dispatch.NewRegistry()
	require.NoError(t, r.Register(protocol.RequestNone, New()))

	got, err := r.Dispatch(context.Background(), protocol.RequestNone, protocol.ActionHeartbeat, "")
	require.NoError(t, err)
	assert.Equal(t, HeartbeatReply, got)
}
