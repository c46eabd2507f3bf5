// Package gameclient provides an event-driven client for the game server's
// framed TCP protocol. It notifies callers of connection state changes,
// decoded frames and errors via registered handlers, and supports optional
// auto-reconnect and configurable timeouts.
package gameclient

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/gameserver/logger"
	"github.com/cyberinferno/gameserver/protocol"
)

var (
	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("client is closed")
	// ErrAlreadyConnected is returned by Connect on a connected client.
	ErrAlreadyConnected = errors.New("already connected or connecting")
	// ErrNotConnected is returned by Send when there is no connection.
	ErrNotConnected = errors.New("not connected")
)

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected and not attempting to connect
	Connecting                          // Connection attempt in progress
	Connected                           // Successfully connected
	Reconnecting                        // Waiting to reconnect after a lost connection
	Closed                              // Client has been closed and will not reconnect
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	Address   string          // The server address
	Timestamp time.Time       // When the state change occurred
	Error     error           // Non-nil if the change was caused by an error
}

// FrameEvent is emitted for every frame decoded from the connection.
type FrameEvent struct {
	Frame     protocol.Frame
	Timestamp time.Time
}

// ErrorEvent is emitted when a read, write, framing or dial error occurs.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// ConnectionStateHandler is called asynchronously on state changes.
type ConnectionStateHandler func(event ConnectionStateEvent)

// FrameHandler is called from the read goroutine, one frame at a time in
// arrival order. It must not block for long.
type FrameHandler func(event FrameEvent)

// ErrorHandler is called asynchronously when an error occurs.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the client.
type Config struct {
	// Address is the "host:port" of the game server.
	Address string
	// AutoReconnect enables automatic reconnection when the connection is lost.
	AutoReconnect bool
	// ReconnectInterval is the delay between reconnection attempts.
	ReconnectInterval time.Duration
	// InitialBufferSize is the initial receive buffer capacity.
	InitialBufferSize int
	// MaxFrameSize is the largest declared frame length accepted from the
	// server; 0 selects protocol.DefaultMaxFrameSize.
	MaxFrameSize uint32
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadTimeout is the max duration to wait for read data; 0 means no timeout.
	ReadTimeout time.Duration
	// ConnectionTimeout is the max duration for establishing a connection.
	ConnectionTimeout time.Duration
	// Logger receives client diagnostics; nil discards them.
	Logger logger.Logger
}

// DefaultConfig returns a Config with default values for the given address.
//
// Parameters:
//   - address: The "host:port" to connect to
//
// Returns:
//   - A Config with AutoReconnect off, ReconnectInterval 5s, WriteTimeout
//     10s, ConnectionTimeout 10s and no read timeout
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ReconnectInterval: 5 * time.Second,
		InitialBufferSize: protocol.DefaultBufferSize,
		MaxFrameSize:      protocol.DefaultMaxFrameSize,
		WriteTimeout:      10 * time.Second,
		ConnectionTimeout: 10 * time.Second,
	}
}

// Client is a game protocol client. Register handlers with
// OnConnectionState, OnFrame and OnError, then call Connect. It is safe for
// concurrent use.
type Client struct {
	config Config
	logger logger.Logger
	conn   net.Conn
	state  ConnectionState

	onConnectionState ConnectionStateHandler
	onFrame           FrameHandler
	onError           ErrorHandler

	mu            sync.RWMutex
	writeMu       sync.Mutex
	reconnectOnce sync.Once
	stopChan      chan struct{}
	reconnectChan chan struct{}
	wg            sync.WaitGroup
	closed        bool
	reconnecting  bool
}

// New creates a client in the Disconnected state; call Connect to dial.
func New(config Config) *Client {
	log := config.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		config:        config,
		logger:        log.With(logger.Field{Key: "server_addr", Value: config.Address}),
		state:         Disconnected,
		stopChan:      make(chan struct{}),
		reconnectChan: make(chan struct{}, 1),
	}
}

// OnConnectionState registers the handler for connection state changes.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnFrame registers the handler for decoded frames.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnFrame(handler FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = handler
}

// OnError registers the handler for errors.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the configured address and starts the read loop.
//
// Returns:
//   - ErrClientClosed or ErrAlreadyConnected if the client cannot connect
//   - The dial error if the connection fails
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	if c.config.AutoReconnect {
		c.reconnectOnce.Do(func() {
			c.wg.Add(1)
			go c.reconnectHandler()
		})
	}

	return c.connect()
}

// Disconnect closes the current connection. Connect may be called again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Disconnected || c.state == Closed {
		return nil
	}

	return c.disconnectLocked()
}

func (c *Client) disconnectLocked() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.setStateLocked(Disconnected, nil)

	return err
}

// Close shuts the client down and waits for its goroutines. It is
// idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	c.setState(Closed, nil)

	return nil
}

// Send encodes and writes one frame. A write failure is reported to the
// error handler and triggers a reconnect when AutoReconnect is enabled.
//
// Parameters:
//   - category: The request category
//   - action: The action code
//   - payload: The UTF-8 payload
//
// Returns:
//   - ErrNotConnected if there is no connection, or the write error
func (c *Client) Send(category protocol.RequestCode, action protocol.ActionCode, payload string) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := conn.Write(protocol.Encode(category, action, payload)); err != nil {
		c.emitError(err)
		c.triggerReconnect()
		return fmt.Errorf("send %s.%s: %w", category, action, err)
	}

	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

func (c *Client) connect() error {
	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.setStateLocked(Connected, nil)
	c.mu.Unlock()

	c.logger.Debug("connected")

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	buf := protocol.NewBuffer(c.config.InitialBufferSize, c.config.MaxFrameSize)
	for {
		if c.config.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
				c.readFailed(conn, err)
				return
			}
		}

		n, err := conn.Read(buf.Free())
		if n > 0 {
			buf.Append(n)

			frames, ferr := buf.Frames()
			for _, f := range frames {
				c.emitFrame(f)
			}

			if ferr != nil {
				c.logger.Warn("framing error", logger.Field{Key: "error", Value: ferr})
				c.readFailed(conn, ferr)
				return
			}
		}

		if err != nil {
			c.readFailed(conn, err)
			return
		}
	}
}

// readFailed reports err unless the connection was closed locally, and
// drops the connection if it is still the current one.
func (c *Client) readFailed(conn net.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn && !c.closed
	if current {
		_ = conn.Close()
		c.conn = nil
		c.setStateLocked(Disconnected, err)
	}
	c.mu.Unlock()

	if !current {
		return
	}

	c.emitError(err)
	c.triggerReconnect()
}

func (c *Client) reconnectHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnectChan:
		}

		c.mu.Lock()
		if c.reconnecting || c.closed || c.state == Connected {
			c.mu.Unlock()
			continue
		}
		c.reconnecting = true
		c.setStateLocked(Reconnecting, nil)
		c.mu.Unlock()

		select {
		case <-c.stopChan:
			return
		case <-time.After(c.config.ReconnectInterval):
		}

		err := c.connect()

		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()

		if err != nil && !errors.Is(err, ErrClientClosed) {
			c.logger.Debug("reconnect failed", logger.Field{Key: "error", Value: err})
			c.triggerReconnect()
		}
	}
}

func (c *Client) triggerReconnect() {
	if !c.config.AutoReconnect || c.isClosed() {
		return
	}

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(state, err)
}

func (c *Client) setStateLocked(state ConnectionState, err error) {
	c.state = state

	if handler := c.onConnectionState; handler != nil {
		go handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitFrame(f protocol.Frame) {
	c.mu.RLock()
	handler := c.onFrame
	c.mu.RUnlock()

	if handler != nil {
		handler(FrameEvent{Frame: f, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		go handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
