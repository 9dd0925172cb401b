package websocket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Registry tracks live connections by participant and by session. It is the
// Transport the synchronization core pushes through.
// ARCHITECTURAL DISCOVERY: A participant belongs to one session at a time, so
// a single participantID -> Connection map answers point sends in O(1)
type Registry struct {
	mu                 sync.RWMutex                      // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	globalConnections  map[string]*Connection            // participantID -> Connection
	sessionConnections map[string]map[string]*Connection // sessionID -> participantID -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		globalConnections:  make(map[string]*Connection),
		sessionConnections: make(map[string]map[string]*Connection),
	}
}

// RegisterConnection adds conn and returns the connection it replaced, if any.
// The replaced connection is closed asynchronously; its own cleanup will find
// it is no longer registered and leave the participant alone.
func (r *Registry) RegisterConnection(conn *Connection) (*Connection, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}

	if !conn.IsAuthenticated() {
		return nil, ErrConnectionNotAuthenticated
	}

	userID := conn.GetUserID()
	sessionID := conn.GetSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, replaced := r.globalConnections[userID]
	if replaced {
		r.removeLocked(existing)
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close replaced connection: participant=%s error=%v", userID, err)
			}
		}()
	}

	r.globalConnections[userID] = conn
	if r.sessionConnections[sessionID] == nil {
		r.sessionConnections[sessionID] = make(map[string]*Connection)
	}
	r.sessionConnections[sessionID][userID] = conn

	if replaced {
		return existing, nil
	}
	return nil, nil
}

// UnregisterConnection removes conn and reports whether it was the registered
// connection for its participant
// RACE CONDITION FIX: Only removes the connection if it matches the one currently registered
func (r *Registry) UnregisterConnection(conn *Connection) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.globalConnections[conn.GetUserID()]
	if !exists || registered != conn {
		return false
	}

	r.removeLocked(conn)
	return true
}

func (r *Registry) removeLocked(conn *Connection) {
	userID := conn.GetUserID()
	sessionID := conn.GetSessionID()

	delete(r.globalConnections, userID)

	// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
	if conns, exists := r.sessionConnections[sessionID]; exists {
		delete(conns, userID)
		if len(conns) == 0 {
			delete(r.sessionConnections, sessionID)
		}
	}
}

// GetUserConnection returns the current connection for a participant
func (r *Registry) GetUserConnection(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.globalConnections[userID]
	return conn, exists
}

// GetSessionConnections returns all connections in a session
func (r *Registry) GetSessionConnections(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.sessionConnections[sessionID]))
	for _, conn := range r.sessionConnections[sessionID] {
		connections = append(connections, conn)
	}
	return connections
}

// SendToParticipant delivers message to one connected participant
func (r *Registry) SendToParticipant(participantID string, message interface{}) error {
	conn, exists := r.GetUserConnection(participantID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrParticipantNotConnected, participantID)
	}
	return conn.WriteJSON(message)
}

// SendToSession delivers message to every connection of a session. A failed
// write does not stop delivery to the rest.
func (r *Registry) SendToSession(sessionID string, message interface{}) error {
	var errs []error
	for _, conn := range r.GetSessionConnections(sessionID) {
		if err := conn.WriteJSON(message); err != nil {
			errs = append(errs, fmt.Errorf("participant %s: %w", conn.GetUserID(), err))
		}
	}
	return errors.Join(errs...)
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.globalConnections),
		"active_sessions":   len(r.sessionConnections),
	}
}

// SessionStarted has nothing to prepare
func (r *Registry) SessionStarted(ctx context.Context, sessionID string) error {
	return nil
}

// SessionEnded disconnects every client of the session after its pending
// frames, including the session end notice, are written
func (r *Registry) SessionEnded(sessionID string) {
	conns := r.GetSessionConnections(sessionID)
	for _, conn := range conns {
		conn.Shutdown()
	}
	if len(conns) > 0 {
		log.Printf("Session connections closing: session=%s connections=%d", sessionID, len(conns))
	}
}
