package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	dbconfig "syncboard/pkg/database"
	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// writeRetryDelay is how long a failed write waits before its single retry
var writeRetryDelay = 5 * time.Second

// Manager implements the DatabaseManager interface
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && isRetryable(err) {
				// FUNCTIONAL DISCOVERY: Retry exactly once
				log.Printf("Database write failed, retrying in %v: %v", writeRetryDelay, err)
				time.Sleep(writeRetryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// isRetryable reports whether err is lock contention, the only transient
// failure SQLite reports. Constraint violations and missing rows never are.
func isRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateSession creates a new session in the database
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (id, name, created_by, start_time, status)
			VALUES (?, ?, ?, ?, ?)
		`,
			session.ID,
			session.Name,
			session.CreatedBy,
			session.StartTime,
			session.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

const sessionColumns = `id, name, created_by, start_time, end_time, status`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var endTime sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.Name,
		&session.CreatedBy,
		&session.StartTime,
		&endTime,
		&session.Status,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	return &session, nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// UpdateSession updates an existing session
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		// FUNCTIONAL DISCOVERY: Only end_time and status change after creation
		res, err := db.ExecContext(ctx, `
			UPDATE sessions
			SET end_time = ?, status = ?
			WHERE id = ?
		`,
			session.EndTime,
			session.Status,
			session.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// ListActiveSessions returns all active sessions, most recent first
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = ?
		ORDER BY start_time DESC
	`, types.SessionStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// SetParticipantRole assigns a role, replacing any previous assignment
func (m *Manager) SetParticipantRole(ctx context.Context, assignment *types.RoleAssignment) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO role_assignments (session_id, participant_id, role, assigned_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, participant_id)
			DO UPDATE SET role = excluded.role, assigned_at = excluded.assigned_at
		`,
			assignment.SessionID,
			assignment.ParticipantID,
			assignment.Role,
			assignment.AssignedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return nil
	})
}

// GetParticipantRole returns the participant's role or ErrRoleNotAssigned
func (m *Manager) GetParticipantRole(ctx context.Context, sessionID, participantID string) (string, error) {
	var role string
	err := m.db.QueryRowContext(ctx, `
		SELECT role FROM role_assignments
		WHERE session_id = ? AND participant_id = ?
	`, sessionID, participantID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", interfaces.ErrRoleNotAssigned
		}
		return "", fmt.Errorf("failed to query role: %w", err)
	}
	return role, nil
}

// DeleteParticipantRole removes a role assignment; removing a missing one is not an error
func (m *Manager) DeleteParticipantRole(ctx context.Context, sessionID, participantID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			DELETE FROM role_assignments
			WHERE session_id = ? AND participant_id = ?
		`, sessionID, participantID)
		if err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return nil
	})
}

// ListParticipantRoles returns every role assignment of a session
func (m *Manager) ListParticipantRoles(ctx context.Context, sessionID string) ([]*types.RoleAssignment, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT session_id, participant_id, role, assigned_at
		FROM role_assignments
		WHERE session_id = ?
		ORDER BY participant_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var assignments []*types.RoleAssignment
	for rows.Next() {
		var a types.RoleAssignment
		if err := rows.Scan(&a.SessionID, &a.ParticipantID, &a.Role, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role row: %w", err)
		}
		assignments = append(assignments, &a)
	}

	return assignments, rows.Err()
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
