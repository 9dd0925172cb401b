// Package session owns session lifecycle and participant membership, and fans
// both out to the components that keep per-session state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// Manager implements the SessionManager interface
type Manager struct {
	dbManager      interfaces.DatabaseManager
	transport      interfaces.Transport
	activeSessions map[string]*types.Session       // sessionID -> Session
	members        map[string]map[string]time.Time // sessionID -> participantID -> joined at
	mu             sync.RWMutex

	// ARCHITECTURAL DISCOVERY: Listeners are notified in registration order on
	// the way in and in reverse order on the way out
	listenersMu         sync.RWMutex
	membershipListeners []interfaces.MembershipListener
	sessionListeners    []interfaces.SessionListener
}

// NewManager creates a new session manager. transport may be nil when no
// client needs to be told a session ended.
func NewManager(dbManager interfaces.DatabaseManager, transport interfaces.Transport) *Manager {
	return &Manager{
		dbManager:      dbManager,
		transport:      transport,
		activeSessions: make(map[string]*types.Session),
		members:        make(map[string]map[string]time.Time),
	}
}

// AddMembershipListener subscribes l to participant join/leave events
func (m *Manager) AddMembershipListener(l interfaces.MembershipListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.membershipListeners = append(m.membershipListeners, l)
}

// AddSessionListener subscribes l to session start/end events
func (m *Manager) AddSessionListener(l interfaces.SessionListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.sessionListeners = append(m.sessionListeners, l)
}

func (m *Manager) membershipSnapshot() []interfaces.MembershipListener {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	return append([]interfaces.MembershipListener(nil), m.membershipListeners...)
}

func (m *Manager) sessionSnapshot() []interfaces.SessionListener {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	return append([]interfaces.SessionListener(nil), m.sessionListeners...)
}

// Restore loads active sessions from the database and starts them again.
// Synchronized state does not survive a restart; every restored session
// begins with empty objects.
func (m *Manager) Restore(ctx context.Context) error {
	sessions, err := m.dbManager.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	m.mu.Lock()
	for _, session := range sessions {
		m.activeSessions[session.ID] = session
	}
	m.mu.Unlock()

	for _, session := range sessions {
		if err := m.startSession(ctx, session.ID); err != nil {
			return fmt.Errorf("failed to restore session %s: %w", session.ID, err)
		}
	}

	log.Printf("Restored %d active sessions", len(sessions))
	return nil
}

// CreateSession creates, persists and starts a new session
func (m *Manager) CreateSession(ctx context.Context, name string, createdBy string) (*types.Session, error) {
	if name == "" || len(name) > 200 {
		return nil, ErrInvalidSessionName
	}

	if !types.IsValidUserID(createdBy) {
		return nil, ErrInvalidCreatedBy
	}

	// FUNCTIONAL DISCOVERY: ULIDs sort by creation time, which keeps session
	// listings and log lines in a natural order
	session := &types.Session{
		ID:        ulid.Make().String(),
		Name:      name,
		CreatedBy: createdBy,
		StartTime: time.Now().UTC(),
		Status:    types.SessionStatusActive,
	}

	if err := m.dbManager.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	m.activeSessions[session.ID] = session
	m.mu.Unlock()

	if err := m.startSession(ctx, session.ID); err != nil {
		if endErr := m.EndSession(context.WithoutCancel(ctx), session.ID); endErr != nil {
			log.Printf("Session rollback failed: id=%s error=%v", session.ID, endErr)
		}
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	log.Printf("Created session: id=%s name=%s created_by=%s", session.ID, session.Name, session.CreatedBy)
	return session, nil
}

// startSession notifies session listeners in order. A failing listener stops
// the sequence; the caller is expected to end the session.
func (m *Manager) startSession(ctx context.Context, sessionID string) error {
	for _, l := range m.sessionSnapshot() {
		if err := l.SessionStarted(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	if session, exists := m.activeSessions[sessionID]; exists {
		m.mu.RUnlock()
		return session, nil
	}
	m.mu.RUnlock()

	// Query database for ended sessions or cache misses
	session, err := m.dbManager.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return session, nil
}

// EndSession ends an active session, tells its connected clients, and tears
// down every listener's state for it
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	session, exists := m.activeSessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		dbSession, err := m.dbManager.GetSession(ctx, sessionID)
		if err != nil {
			return ErrSessionNotFound
		}
		if dbSession.Status == types.SessionStatusEnded {
			return ErrSessionAlreadyEnded
		}
		session = dbSession
	}

	ended := *session
	now := time.Now().UTC()
	ended.EndTime = &now
	ended.Status = types.SessionStatusEnded

	if err := m.dbManager.UpdateSession(ctx, &ended); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	m.mu.Lock()
	delete(m.activeSessions, sessionID)
	delete(m.members, sessionID)
	m.mu.Unlock()

	if m.transport != nil {
		msg := types.Envelope{
			Type:    types.EventSessionEnded,
			Payload: types.SessionEnded{SessionID: sessionID},
		}
		if err := m.transport.SendToSession(sessionID, msg); err != nil {
			log.Printf("Session end notification failed: id=%s error=%v", sessionID, err)
		}
	}

	listeners := m.sessionSnapshot()
	for i := len(listeners) - 1; i >= 0; i-- {
		listeners[i].SessionEnded(sessionID)
	}

	log.Printf("Ended session: id=%s name=%s", ended.ID, ended.Name)
	return nil
}

// ListActiveSessions returns all active sessions
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	m.mu.RLock()
	sessions := make([]*types.Session, 0, len(m.activeSessions))
	for _, session := range m.activeSessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	return sessions, nil
}

// ValidateSessionMembership checks if a participant can join session
func (m *Manager) ValidateSessionMembership(sessionID, participantID string) error {
	if !types.IsValidUserID(participantID) {
		return ErrInvalidParticipantID
	}

	m.mu.RLock()
	_, exists := m.activeSessions[sessionID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	// Check database to tell ended sessions from unknown ones
	dbSession, err := m.dbManager.GetSession(context.Background(), sessionID)
	if err != nil {
		return ErrSessionNotFound
	}
	if dbSession.Status == types.SessionStatusEnded {
		return ErrSessionEnded
	}
	// active in the database but not started here
	return ErrSessionNotFound
}

// JoinParticipant adds participant to the session. Every membership listener
// initializes the participant before any of them sees ParticipantJoined, so
// the snapshot a joining client receives already holds its own objects.
func (m *Manager) JoinParticipant(ctx context.Context, participant types.Participant) error {
	if err := m.ValidateSessionMembership(participant.SessionID, participant.ID); err != nil {
		return err
	}

	m.mu.Lock()
	if _, joined := m.members[participant.SessionID][participant.ID]; joined {
		m.mu.Unlock()
		return ErrAlreadyJoined
	}
	if m.members[participant.SessionID] == nil {
		m.members[participant.SessionID] = make(map[string]time.Time)
	}
	m.members[participant.SessionID][participant.ID] = time.Now()
	m.mu.Unlock()

	listeners := m.membershipSnapshot()

	for i, l := range listeners {
		if err := l.ParticipantInitialized(ctx, participant); err != nil {
			m.rollbackJoin(participant, listeners[:i])
			return fmt.Errorf("failed to initialize participant: %w", err)
		}
	}

	for _, l := range listeners {
		if err := l.ParticipantJoined(ctx, participant); err != nil {
			m.rollbackJoin(participant, listeners)
			return fmt.Errorf("failed to join participant: %w", err)
		}
	}

	log.Printf("Participant joined: session=%s participant=%s", participant.SessionID, participant.ID)
	return nil
}

func (m *Manager) rollbackJoin(participant types.Participant, reached []interfaces.MembershipListener) {
	m.removeMember(participant)

	ctx := context.Background()
	for i := len(reached) - 1; i >= 0; i-- {
		reached[i].ParticipantLeft(ctx, participant)
	}
}

// removeMember reports whether participant was a member
func (m *Manager) removeMember(participant types.Participant) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, exists := m.members[participant.SessionID]
	if !exists {
		return false
	}
	if _, joined := members[participant.ID]; !joined {
		return false
	}
	delete(members, participant.ID)
	if len(members) == 0 {
		delete(m.members, participant.SessionID)
	}
	return true
}

// LeaveParticipant removes participant from the session. Leaving cannot fail;
// leaving twice is a no-op.
func (m *Manager) LeaveParticipant(ctx context.Context, participant types.Participant) {
	if !m.removeMember(participant) {
		return
	}

	listeners := m.membershipSnapshot()
	for i := len(listeners) - 1; i >= 0; i-- {
		listeners[i].ParticipantLeft(ctx, participant)
	}

	log.Printf("Participant left: session=%s participant=%s", participant.SessionID, participant.ID)
}

// IsMember reports whether participant is currently joined
func (m *Manager) IsMember(participant types.Participant) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, joined := m.members[participant.SessionID][participant.ID]
	return joined
}

// Participants returns the participants currently joined to sessionID
func (m *Manager) Participants(sessionID string) []types.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	participants := make([]types.Participant, 0, len(m.members[sessionID]))
	for id := range m.members[sessionID] {
		participants = append(participants, types.Participant{SessionID: sessionID, ID: id})
	}
	return participants
}

// IsSessionActive checks if a session is active (cache-only check)
func (m *Manager) IsSessionActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.activeSessions[sessionID]
	return exists && session.Status == types.SessionStatusActive
}

// GetStats returns session manager statistics
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	participants := 0
	for _, members := range m.members {
		participants += len(members)
	}

	return map[string]interface{}{
		"active_sessions": len(m.activeSessions),
		"participants":    participants,
	}
}
