package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"syncboard/pkg/types"
)

const (
	// writeBufferSize is the number of encoded frames a connection holds before
	// WriteJSON starts waiting
	writeBufferSize = 256

	writeTimeout = 5 * time.Second

	// maxFrameBytes bounds inbound frames; the payload limit is checked again
	// when the message is validated
	maxFrameBytes = 128 * 1024
)

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, so one
// goroutine owns the socket for writing and everyone else queues frames
type Connection struct {
	conn          *websocket.Conn
	writeCh       chan []byte
	userID        string
	sessionID     string
	authenticated bool
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	drain         chan struct{}
	drainOnce     sync.Once
	mu            sync.RWMutex // Protect credential fields
}

// NewConnection wraps conn and starts its writer goroutine
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, writeBufferSize),
		ctx:     ctx,
		cancel:  cancel,
		drain:   make(chan struct{}),
	}

	if conn != nil {
		conn.SetReadLimit(maxFrameBytes)
		go c.writeLoop()
	}

	return c
}

func (c *Connection) writeLoop() {
	// a failed write ends the connection so the reader notices and cleans up
	defer func() { _ = c.Close() }()

	for {
		select {
		case data := <-c.writeCh:
			// FUNCTIONAL DISCOVERY: Per-frame deadline keeps one stalled client
			// from pinning its writer forever
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.drain:
			c.flush()
			return

		case <-c.ctx.Done():
			return
		}
	}
}

// flush writes whatever is still queued, then a close frame
func (c *Connection) flush() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			return
		}
	}
}

// WriteJSON encodes v and queues it for the writer goroutine
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close stops the writer and closes the socket; safe to call more than once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Shutdown closes the connection once every queued frame has been written
func (c *Connection) Shutdown() {
	if c.conn == nil {
		_ = c.Close()
		return
	}
	c.drainOnce.Do(func() { close(c.drain) })
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SetCredentials binds the connection to a participant of a session
func (c *Connection) SetCredentials(userID, sessionID string) error {
	if !types.IsValidUserID(userID) || sessionID == "" {
		return ErrInvalidParameters
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.userID = userID
	c.sessionID = sessionID
	c.authenticated = true

	return nil
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Participant returns the participant this connection is bound to
func (c *Connection) Participant() types.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.Participant{SessionID: c.sessionID, ID: c.userID}
}
