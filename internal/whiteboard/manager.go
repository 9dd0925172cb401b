package whiteboard

import (
	"context"
	"fmt"
	"log"
	"sync"

	"syncboard/internal/syncobj"
)

// Config bounds whiteboard history and action size
type Config struct {
	UndoDepth           int
	MaxObjectsPerAction int
}

// Manager owns one board per active session
type Manager struct {
	registry *syncobj.Registry
	config   Config

	mu     sync.RWMutex
	boards map[string]*Board
}

// NewManager creates a manager publishing boards through registry
func NewManager(registry *syncobj.Registry, config Config) *Manager {
	return &Manager{
		registry: registry,
		config:   config,
		boards:   make(map[string]*Board),
	}
}

// Board returns the session's board
func (m *Manager) Board(sessionID string) (*Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, exists := m.boards[sessionID]
	if !exists {
		return nil, ErrBoardNotFound
	}
	return b, nil
}

// Execute validates the action's size and applies it to the session's board
func (m *Manager) Execute(sessionID string, action Action) error {
	if action.Len() == 0 {
		return ErrEmptyAction
	}
	if limit := m.config.MaxObjectsPerAction; limit > 0 && action.Len() > limit {
		return fmt.Errorf("%w: %d > %d", ErrTooManyObjects, action.Len(), limit)
	}

	b, err := m.Board(sessionID)
	if err != nil {
		return err
	}
	return b.Apply(action)
}

// Undo reverts the session's most recent action
func (m *Manager) Undo(sessionID string) error {
	b, err := m.Board(sessionID)
	if err != nil {
		return err
	}
	return b.Undo()
}

// Redo re-applies the session's most recently undone action
func (m *Manager) Redo(sessionID string) error {
	b, err := m.Board(sessionID)
	if err != nil {
		return err
	}
	return b.Redo()
}

// Clear removes every object; it is undoable like any other action
func (m *Manager) Clear(sessionID string) error {
	b, err := m.Board(sessionID)
	if err != nil {
		return err
	}

	ids := b.Canvas().IDs()
	if len(ids) == 0 {
		return nil
	}
	return b.Apply(RemoveAction{ObjectIDs: ids})
}

// SessionStarted creates and registers the session's board
func (m *Manager) SessionStarted(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.boards[sessionID]; exists {
		return nil
	}

	b, err := newBoard(m.registry, sessionID, m.config.UndoDepth)
	if err != nil {
		return err
	}
	m.boards[sessionID] = b
	activeBoards.Inc()

	log.Printf("Whiteboard created: session=%s", sessionID)
	return nil
}

// SessionEnded drops the session's board and history
func (m *Manager) SessionEnded(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.boards[sessionID]; exists {
		delete(m.boards, sessionID)
		activeBoards.Dec()
	}
}

// GetStats returns manager statistics for monitoring and debugging
func (m *Manager) GetStats() map[string]int {
	m.mu.RLock()
	boards := make([]*Board, 0, len(m.boards))
	for _, b := range m.boards {
		boards = append(boards, b)
	}
	m.mu.RUnlock()

	objects := 0
	for _, b := range boards {
		objects += b.Canvas().Len()
	}

	return map[string]int{
		"boards":  len(boards),
		"objects": objects,
	}
}
