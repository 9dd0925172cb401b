package permissions

import (
	"sync"

	"syncboard/pkg/types"
)

// TemporaryStore holds per-participant overrides that outrank every layer
type TemporaryStore struct {
	mu     sync.RWMutex
	values map[types.Participant]map[string]interface{}
}

// NewTemporaryStore creates an empty store
func NewTemporaryStore() *TemporaryStore {
	return &TemporaryStore{
		values: make(map[types.Participant]map[string]interface{}),
	}
}

// Set stores an override and reports whether the stored value changed
func (s *TemporaryStore) Set(participant types.Participant, key string, value interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, exists := s.values[participant]
	if !exists {
		overrides = make(map[string]interface{})
		s.values[participant] = overrides
	}

	if current, exists := overrides[key]; exists && current == value {
		return false
	}
	overrides[key] = value
	return true
}

// Remove clears one override and reports whether it existed
func (s *TemporaryStore) Remove(participant types.Participant, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, exists := s.values[participant]
	if !exists {
		return false
	}
	if _, exists := overrides[key]; !exists {
		return false
	}

	delete(overrides, key)
	if len(overrides) == 0 {
		delete(s.values, participant)
	}
	return true
}

// ForParticipant returns a copy of the participant's overrides
func (s *TemporaryStore) ForParticipant(participant types.Participant) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyValues(s.values[participant])
}

// ClearParticipant drops every override of the participant
func (s *TemporaryStore) ClearParticipant(participant types.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, participant)
}

// ClearSession drops every override held in a session
func (s *TemporaryStore) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for participant := range s.values {
		if participant.SessionID == sessionID {
			delete(s.values, participant)
		}
	}
}
