// Package network implements the direct binary transport: the TCP
// listener, per-connection framing loops, and the UDP latency probe
// responder.
package network

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/protocol"
)

// Connection wraps one client TCP connection. Each connection maps to
// exactly one session for its lifetime; the session outlives the
// connection only until the idle sweep.
type Connection struct {
	mu        sync.Mutex
	conn      net.Conn
	sessionID string
	logger    zerolog.Logger

	writeTimeout time.Duration

	// Timestamps
	connectedAt  time.Time
	lastActivity time.Time

	// State
	closed bool
}

// NewConnection wraps an accepted net.Conn.
func NewConnection(conn net.Conn, writeTimeout time.Duration) *Connection {
	now := time.Now()
	return &Connection{
		conn:         conn,
		writeTimeout: writeTimeout,
		connectedAt:  now,
		lastActivity: now,
		logger:       log.With().Str("component", "connection").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// BindSession associates this connection with its session token.
func (c *Connection) BindSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.logger = log.With().
		Str("component", "connection").
		Str("session", sessionID).
		Logger()
}

// SessionID returns the bound session token, empty before BindSession.
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ReadFrame reads one length-prefixed frame from the connection. Blocks
// until a frame arrives or the read deadline passes. No lock is held
// while waiting on the socket.
func (c *Connection) ReadFrame(timeout time.Duration, maxSize uint32) (*protocol.Frame, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	}

	frame, err := protocol.ReadFrame(c.conn, maxSize)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	return frame, nil
}

// WriteRaw sends one already-encoded frame, adding the stream length
// prefix. It is the session registry's direct delivery path, so it must
// be safe under concurrent callers.
func (c *Connection) WriteRaw(frameData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}

	out := make([]byte, 4+len(frameData))
	binary.BigEndian.PutUint32(out[:4], uint32(len(frameData)))
	copy(out[4:], frameData)

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(out); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	c.lastActivity = time.Now()
	return nil
}

// WriteFrame encodes and sends a frame.
func (c *Connection) WriteFrame(f *protocol.Frame) error {
	return c.WriteRaw(f.Encode())
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Debug().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ConnectionRegistry tracks live TCP connections by session id, so an
// operator kick or a shutdown can tear the socket down and not just the
// session record.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection // session id -> connection
}

// NewConnectionRegistry creates a new ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*Connection),
	}
}

// Register adds a connection to the registry.
func (r *ConnectionRegistry) Register(sessionID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A stale connection for the same session loses the socket.
	if existing, ok := r.conns[sessionID]; ok {
		existing.Close()
	}

	r.conns[sessionID] = conn
	log.Debug().Str("session", sessionID).Msg("connection registered")
}

// Unregister removes a connection from the registry.
func (r *ConnectionRegistry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[sessionID]; ok {
		conn.Close()
		delete(r.conns, sessionID)
		log.Debug().Str("session", sessionID).Msg("connection unregistered")
	}
}

// Get returns the connection for a session id.
func (r *ConnectionRegistry) Get(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[sessionID]
	return conn, ok
}

// Count returns the number of active connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes all connections in the registry.
func (r *ConnectionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, conn := range r.conns {
		conn.Close()
		delete(r.conns, sessionID)
	}

	log.Info().Msg("all connections closed")
}
