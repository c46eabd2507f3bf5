// Package server implements the game server's connection manager: it
// listens for TCP connections, runs one read goroutine per connection,
// routes every decoded frame through a dispatch.Registry and writes handler
// results back to the originating connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/gameserver/dispatch"
	"github.com/cyberinferno/gameserver/logger"
	"github.com/cyberinferno/gameserver/perfmonitor"
	"github.com/cyberinferno/gameserver/protocol"
)

var (
	// ErrServerRunning is returned by Start on a running server.
	ErrServerRunning = errors.New("server already running")
	// ErrServerStopped is returned by Start after Stop.
	ErrServerStopped = errors.New("server stopped")
)

const maxAcceptBackoff = time.Second

// Options tunes a Server. The zero value of every field selects a default
// or disables the feature, as noted.
type Options struct {
	// Name identifies the server in log messages.
	Name string
	// MaxConnections caps the live-connection set; 0 means unlimited.
	MaxConnections int
	// MaxFrameSize is the largest declared frame length accepted; 0 selects
	// protocol.DefaultMaxFrameSize.
	MaxFrameSize uint32
	// InitialBufferSize is the initial receive buffer capacity per
	// connection; 0 selects protocol.DefaultBufferSize.
	InitialBufferSize int
	// ReadTimeout closes connections idle for longer; 0 disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds each write; 0 disables it.
	WriteTimeout time.Duration
	// SlowHandlerThreshold logs handler calls that take longer at warn
	// level; 0 disables it.
	SlowHandlerThreshold time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Name:                 "game",
		MaxFrameSize:         protocol.DefaultMaxFrameSize,
		InitialBufferSize:    protocol.DefaultBufferSize,
		WriteTimeout:         10 * time.Second,
		SlowHandlerThreshold: 100 * time.Millisecond,
	}
}

// Server accepts connections and routes their frames. Create one with New;
// a Server is started once and cannot be restarted after Stop.
type Server struct {
	opts     Options
	logger   logger.Logger
	registry *dispatch.Registry

	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool
	stopped  atomic.Bool

	conns  connectionSet
	nextID atomic.Uint32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server.
//
// Parameters:
//   - opts: Server options
//   - registry: Routes frames to handlers; frozen by Start
//   - log: Logger for server and connection events
//
// Returns:
//   - A Server that is not yet listening
func New(opts Options, registry *dispatch.Registry, log logger.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:     opts,
		logger:   log,
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds to address:port and accepts connections in a background
// goroutine. Port 0 picks a free port; see Addr.
//
// Returns:
//   - ErrServerRunning or ErrServerStopped if the server cannot start
//   - An error if binding fails; nothing is left listening in that case
func (s *Server) Start(address string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return fmt.Errorf("server %s: %w", s.opts.Name, ErrServerStopped)
	}

	if s.running.Load() {
		s.logger.Error("server already running")
		return fmt.Errorf("server %s: %w", s.opts.Name, ErrServerRunning)
	}

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.opts.Name, err)
	}

	s.registry.Freeze()
	s.listener = ln
	s.running.Store(true)

	s.logger.Info(fmt.Sprintf("%s server started", s.opts.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})

	s.wg.Add(1)
	go s.acceptLoop(ln)

	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop closes the listener and every live connection and waits for their
// goroutines to finish. It is safe to call when the server is not running.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		s.logger.Info(fmt.Sprintf("%s server not running", s.opts.Name))
		return
	}

	s.running.Store(false)
	s.stopped.Store(true)
	s.cancel()
	_ = s.listener.Close()
	s.mu.Unlock()

	s.conns.Range(func(c *Connection) bool {
		_ = c.Close()
		return true
	})

	s.wg.Wait()
	s.logger.Info(fmt.Sprintf("%s server stopped", s.opts.Name))
}

// acceptLoop accepts until the listener is closed. A failed Accept is
// retried with a growing delay so a persistent error (e.g. out of file
// descriptors) does not spin.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}

			s.logger.Error(fmt.Sprintf("%s server accept error", s.opts.Name),
				logger.Field{Key: "error", Value: err},
				logger.Field{Key: "retry_in", Value: backoff.String()},
			)
			time.Sleep(backoff)
			continue
		}

		backoff = 0
		s.Serve(conn)
	}
}

// Serve adopts an established connection: it assigns an id, adds it to the
// live set and starts its read loop. The accept loop calls it for every
// accepted socket.
//
// Returns:
//   - The new Connection, or nil if it was rejected because the server is
//     stopped or full, in which case conn has been closed
func (s *Server) Serve(conn net.Conn) *Connection {
	// Stop sets stopped under mu before closing the live set, so a
	// connection added here is either seen by Stop or rejected.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		_ = conn.Close()
		return nil
	}

	if limit := s.opts.MaxConnections; limit > 0 && s.conns.Len() >= limit {
		s.logger.Warn("connection rejected: server full",
			logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
			logger.Field{Key: "max_connections", Value: limit},
		)
		_ = conn.Close()
		return nil
	}

	c := s.adopt(conn)
	c.logger.Info("connection accepted", logger.Field{Key: "live", Value: s.conns.Len()})
	c.Start()

	return c
}

// adopt wraps conn in a Connection under the next free id and adds it to the
// live set. Ids wrap around after math.MaxUint32; 0 and ids still in use are
// skipped.
func (s *Server) adopt(conn net.Conn) *Connection {
	for {
		id := s.nextID.Add(1)
		if id == 0 {
			continue
		}

		if _, inUse := s.conns.Get(id); inUse {
			continue
		}

		c := newConnection(id, conn, s)
		if s.conns.Add(c) {
			return c
		}
	}
}

// HandleFrame dispatches f and sends a non-empty result back on c with the
// frame's own category and action. Routing misses and handler failures are
// logged and the frame is dropped; neither closes c.
func (s *Server) HandleFrame(c *Connection, f protocol.Frame) {
	route := dispatch.Route{Category: f.Category, Action: f.Action}
	ctx := dispatch.WithConnectionID(s.ctx, c.ID())

	pm := perfmonitor.StartNew()
	result, err := s.registry.Dispatch(ctx, f.Category, f.Action, f.Payload)
	pm.Stop()

	if threshold := s.opts.SlowHandlerThreshold; threshold > 0 && pm.Elapsed() > threshold {
		c.logger.Warn("slow handler",
			logger.Field{Key: "route", Value: route.String()},
			logger.Field{Key: "elapsed_ms", Value: pm.ElapsedMilliseconds()},
		)
	}

	var herr *dispatch.HandlerError
	switch {
	case errors.Is(err, dispatch.ErrUnknownCategory), errors.Is(err, dispatch.ErrUnknownAction):
		c.logger.Warn("frame dropped", logger.Field{Key: "error", Value: err})
		return
	case errors.As(err, &herr):
		fields := []logger.Field{
			{Key: "route", Value: route.String()},
			{Key: "error", Value: herr.Err},
		}
		if herr.Stack != nil {
			fields = append(fields, logger.Field{Key: "stack", Value: string(herr.Stack)})
		}
		c.logger.Error("handler failed", fields...)
		return
	case err != nil:
		c.logger.Error("dispatch failed", logger.Field{Key: "route", Value: route.String()}, logger.Field{Key: "error", Value: err})
		return
	}

	c.logger.Debug("frame handled",
		logger.Field{Key: "route", Value: route.String()},
		logger.Field{Key: "elapsed_ms", Value: pm.ElapsedMilliseconds()},
	)

	if result == "" {
		return
	}

	if err := c.Send(f.Category, f.Action, result); err != nil && !errors.Is(err, ErrConnectionClosed) {
		c.logger.Warn("failed to send response", logger.Field{Key: "route", Value: route.String()}, logger.Field{Key: "error", Value: err})
	}
}

// RemoveConnection drops c from the live set. Removing a connection that is
// not present is a no-op. It does not close c; Connection.Close calls it.
func (s *Server) RemoveConnection(c *Connection) {
	if s.conns.Remove(c.ID()) {
		s.logger.Debug("connection removed",
			logger.Field{Key: "conn_id", Value: c.ID()},
			logger.Field{Key: "live", Value: s.conns.Len()},
		)
	}
}

// Connection returns the live connection with the given id.
func (s *Server) Connection(id uint32) (*Connection, bool) {
	return s.conns.Get(id)
}

// Len returns the number of live connections.
func (s *Server) Len() int {
	return s.conns.Len()
}

// Broadcast sends one frame to every live connection. Connections that fail
// the write are closed. It returns the number of successful sends.
func (s *Server) Broadcast(category protocol.RequestCode, action protocol.ActionCode, payload string) int {
	data := protocol.Encode(category, action, payload)

	sent := 0
	s.conns.Range(func(c *Connection) bool {
		if err := c.write(data); err == nil {
			sent++
		}
		return true
	})

	return sent
}
