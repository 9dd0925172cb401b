package interfaces

import (
	"context"

	"syncboard/pkg/types"
)

// DatabaseManager handles all database operations
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent transaction handling and connection management
type DatabaseManager interface {
	// CreateSession creates a new session in the database
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession retrieves a session by ID from the database
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// UpdateSession updates an existing session (primarily for ending sessions)
	UpdateSession(ctx context.Context, session *types.Session) error

	// ListActiveSessions returns all active sessions from the database
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// SetParticipantRole assigns (or replaces) a participant's role in a session
	SetParticipantRole(ctx context.Context, assignment *types.RoleAssignment) error

	// GetParticipantRole returns the participant's role, or ErrRoleNotAssigned
	GetParticipantRole(ctx context.Context, sessionID, participantID string) (string, error)

	// DeleteParticipantRole removes a participant's role assignment
	DeleteParticipantRole(ctx context.Context, sessionID, participantID string) error

	// ListParticipantRoles returns every role assignment of a session
	ListParticipantRoles(ctx context.Context, sessionID string) ([]*types.RoleAssignment, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
