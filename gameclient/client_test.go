package gameclient

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/gameserver/dispatch"
	"github.com/cyberinferno/gameserver/handlers/system"
	"github.com/cyberinferno/gameserver/logger"
	"github.com/cyberinferno/gameserver/protocol"
	"github.com/cyberinferno/gameserver/server"
)

func startGameServer(t *testing.T) string {
	t.Helper()

	r := dispatch.NewRegistry()
	require.NoError(t, r.Register(protocol.RequestNone, system.New()))

	opts := server.DefaultOptions()
	opts.Name = "test"
	s := server.New(opts, r, logger.NewNopLogger())
	require.NoError(t, s.Start("127.0.0.1", 0))
	t.Cleanup(s.Stop)

	return s.Addr().String()
}

// rawListener accepts connections and hands each one to serve along with
// its 1-based accept index.
func rawListener(t *testing.T, serve func(conn net.Conn, n int32)) (string, *atomic.Int32) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	accepted := &atomic.Int32{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := accepted.Add(1)
			go serve(conn, n)
		}
	}()

	return ln.Addr().String(), accepted
}

func testConfig(addr string) Config {
	cfg := DefaultConfig(addr)
	cfg.ConnectionTimeout = 2 * time.Second
	cfg.ReconnectInterval = 20 * time.Millisecond
	return cfg
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Reconnecting", Reconnecting.String())
	assert.Equal(t, "Unknown", ConnectionState(42).String())
}

func TestClient_Heartbeat(t *testing.T) {
	addr := startGameServer(t)

	c := New(testConfig(addr))
	defer c.Close()

	frames := make(chan protocol.Frame, 4)
	c.OnFrame(func(event FrameEvent) { frames <- event.Frame })

	connected := make(chan struct{}, 1)
	c.OnConnectionState(func(event ConnectionStateEvent) {
		if event.State == Connected {
			connected <- struct{}{}
		}
	})

	require.NoError(t, c.Connect())
	assert.True(t, c.IsConnected())

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("no Connected event")
	}

	t.Run("empty heartbeat is answered with pong", func(t *testing.T) {
		require.NoError(t, c.Send(protocol.RequestNone, protocol.ActionHeartbeat, ""))

		select {
		case f := <-frames:
			assert.Equal(t, protocol.RequestNone, f.Category)
			assert.Equal(t, protocol.ActionHeartbeat, f.Action)
			assert.Equal(t, system.HeartbeatReply, f.Payload)
		case <-time.After(2 * time.Second):
			t.Fatal("no heartbeat reply")
		}
	})

	t.Run("second connect is rejected", func(t *testing.T) {
		assert.ErrorIs(t, c.Connect(), ErrAlreadyConnected)
	})
}

func TestClient_Lifecycle(t *testing.T) {
	t.Run("send before connect fails", func(t *testing.T) {
		c := New(testConfig("127.0.0.1:1"))
		assert.ErrorIs(t, c.Send(protocol.RequestNone, protocol.ActionHeartbeat, ""), ErrNotConnected)
	})

	t.Run("dial failure leaves the client disconnected", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		c := New(testConfig(addr))
		defer c.Close()

		errs := make(chan error, 1)
		c.OnError(func(event ErrorEvent) { errs <- event.Error })

		assert.Error(t, c.Connect())
		assert.Equal(t, Disconnected, c.State())

		select {
		case err := <-errs:
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("no error event")
		}
	})

	t.Run("close is idempotent and final", func(t *testing.T) {
		addr := startGameServer(t)
		c := New(testConfig(addr))
		require.NoError(t, c.Connect())

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, Closed, c.State())
		assert.ErrorIs(t, c.Connect(), ErrClientClosed)
		assert.ErrorIs(t, c.Send(protocol.RequestNone, protocol.ActionHeartbeat, ""), ErrNotConnected)
	})

	t.Run("disconnect allows reconnecting", func(t *testing.T) {
		addr := startGameServer(t)
		c := New(testConfig(addr))
		defer c.Close()

		require.NoError(t, c.Connect())
		require.NoError(t, c.Disconnect())
		assert.Equal(t, Disconnected, c.State())
		require.NoError(t, c.Connect())
		assert.True(t, c.IsConnected())
	})
}

func TestClient_Frames(t *testing.T) {
	t.Run("frame split across writes is delivered once", func(t *testing.T) {
		data := protocol.Encode(protocol.RequestRoom, protocol.ActionJoinRoom, "room-7")
		addr, _ := rawListener(t, func(conn net.Conn, n int32) {
			defer conn.Close()
			_, _ = conn.Write(data[:5])
			time.Sleep(20 * time.Millisecond)
			_, _ = conn.Write(data[5:])
			time.Sleep(time.Second)
		})

		c := New(testConfig(addr))
		defer c.Close()

		frames := make(chan protocol.Frame, 2)
		c.OnFrame(func(event FrameEvent) { frames <- event.Frame })
		require.NoError(t, c.Connect())

		select {
		case f := <-frames:
			assert.Equal(t, protocol.Frame{Category: protocol.RequestRoom, Action: protocol.ActionJoinRoom, Payload: "room-7"}, f)
		case <-time.After(2 * time.Second):
			t.Fatal("no frame")
		}
	})

	t.Run("server hangup reports an error and disconnects", func(t *testing.T) {
		addr, _ := rawListener(t, func(conn net.Conn, n int32) { _ = conn.Close() })

		c := New(testConfig(addr))
		defer c.Close()

		errs := make(chan error, 1)
		c.OnError(func(event ErrorEvent) { errs <- event.Error })
		require.NoError(t, c.Connect())

		select {
		case err := <-errs:
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("no error event")
		}
		require.Eventually(t, func() bool { return c.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestClient_AutoReconnect(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	addr, accepted := rawListener(t, func(conn net.Conn, n int32) {
		defer conn.Close()
		if n == 1 {
			return
		}
		<-hold
	})

	cfg := testConfig(addr)
	cfg.AutoReconnect = true
	c := New(cfg)
	defer c.Close()

	require.NoError(t, c.Connect())

	require.Eventually(t, func() bool {
		return accepted.Load() >= 2 && c.State() == Connected
	}, 3*time.Second, 10*time.Millisecond)
}
