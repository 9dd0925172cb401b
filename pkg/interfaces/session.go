package interfaces

import (
	"context"

	"syncboard/pkg/types"
)

// SessionManager handles session lifecycle operations
// ARCHITECTURAL DISCOVERY: Context-first design pattern ensures proper
// cancellation and timeout handling across all session operations
type SessionManager interface {
	// CreateSession creates a new session
	CreateSession(ctx context.Context, name string, createdBy string) (*types.Session, error)

	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// EndSession ends an active session and tears down its synchronized state
	EndSession(ctx context.Context, sessionID string) error

	// ListActiveSessions returns all active sessions
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// ValidateSessionMembership checks if a participant can join a session
	ValidateSessionMembership(sessionID, participantID string) error

	// JoinParticipant publishes ParticipantInitialized then ParticipantJoined
	JoinParticipant(ctx context.Context, participant types.Participant) error

	// LeaveParticipant publishes ParticipantLeft
	LeaveParticipant(ctx context.Context, participant types.Participant)
}

// MembershipListener reacts to participant membership events.
// The core subscribes to membership, it does not track it.
type MembershipListener interface {
	// ParticipantInitialized runs before the participant receives any state
	ParticipantInitialized(ctx context.Context, participant types.Participant) error

	// ParticipantJoined runs after every listener has initialized the participant
	ParticipantJoined(ctx context.Context, participant types.Participant) error

	// ParticipantLeft is unconditional and cannot fail
	ParticipantLeft(ctx context.Context, participant types.Participant)
}

// SessionListener reacts to session lifecycle events
type SessionListener interface {
	SessionStarted(ctx context.Context, sessionID string) error
	SessionEnded(sessionID string)
}
