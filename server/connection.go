package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/gameserver/logger"
	"github.com/cyberinferno/gameserver/protocol"
)

// ErrConnectionClosed is returned by Send on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Connection is one accepted client. It owns its socket and receive buffer,
// reads frames in its own goroutine and hands each one to the Server in
// arrival order.
type Connection struct {
	id     uint32
	conn   net.Conn
	server *Server
	logger logger.Logger
	buffer *protocol.Buffer

	writeMu   sync.Mutex
	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

func newConnection(id uint32, conn net.Conn, s *Server) *Connection {
	return &Connection{
		id:     id,
		conn:   conn,
		server: s,
		logger: s.logger.With(
			logger.Field{Key: "conn_id", Value: id},
			logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
		),
		buffer: protocol.NewBuffer(s.opts.InitialBufferSize, s.opts.MaxFrameSize),
	}
}

// ID returns the id the server assigned at accept time.
func (c *Connection) ID() uint32 {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// Start launches the read loop. Calls after the first are no-ops.
func (c *Connection) Start() {
	c.startOnce.Do(func() {
		c.server.wg.Add(1)
		go c.readLoop()
	})
}

// Send encodes a frame and writes it to the peer. It is safe to call from
// any goroutine, concurrently with the read loop and other senders. A write
// failure closes the connection.
//
// Parameters:
//   - category: The request category of the frame
//   - action: The action code of the frame
//   - payload: The UTF-8 payload
//
// Returns:
//   - ErrConnectionClosed if the connection is closed
//   - An error if the write fails
func (c *Connection) Send(category protocol.RequestCode, action protocol.ActionCode, payload string) error {
	return c.write(protocol.Encode(category, action, payload))
}

func (c *Connection) write(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout := c.server.opts.WriteTimeout; timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			c.fail("failed to set write deadline", err)
			return fmt.Errorf("connection %d: %w", c.id, err)
		}
	}

	if _, err := c.conn.Write(data); err != nil {
		c.fail("write failed", err)
		return fmt.Errorf("connection %d: %w", c.id, err)
	}

	return nil
}

// Close closes the socket and removes the connection from the server's live
// set. It is idempotent; later calls return the first call's result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
		c.server.RemoveConnection(c)
		c.logger.Info("connection closed")
	})

	return c.closeErr
}

// fail logs a socket error, unless the connection was already closed
// locally, and closes the connection.
func (c *Connection) fail(msg string, err error) {
	if !c.closed.Load() {
		c.logger.Warn(msg, logger.Field{Key: "error", Value: err})
	}

	_ = c.Close()
}

// readLoop reads until the peer closes, the socket fails or a framing error
// occurs. Every frame completed by a read is handled before the next read.
func (c *Connection) readLoop() {
	defer c.server.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in connection read loop",
				logger.Field{Key: "panic", Value: fmt.Sprint(r)},
				logger.Field{Key: "stack", Value: string(debug.Stack())},
			)
		}

		_ = c.Close()
	}()

	for {
		if timeout := c.server.opts.ReadTimeout; timeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				c.fail("failed to set read deadline", err)
				return
			}
		}

		n, err := c.conn.Read(c.buffer.Free())
		if n > 0 {
			c.buffer.Append(n)

			frames, ferr := c.buffer.Frames()
			for _, f := range frames {
				if c.closed.Load() {
					return
				}

				c.server.HandleFrame(c, f)
			}

			if ferr != nil {
				c.logger.Warn("framing error, dropping connection", logger.Field{Key: "error", Value: ferr})
				return
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("peer closed connection")
				return
			}

			c.fail("read failed", err)
			return
		}
	}
}
