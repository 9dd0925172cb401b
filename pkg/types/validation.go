package types

import (
	"encoding/json"
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	roleRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const maxPayloadBytes = 65536

// Validate ensures the session meets all requirements
func (s *Session) Validate() error {
	if len(s.Name) < 1 || len(s.Name) > 200 {
		return ErrInvalidSessionName
	}
	if !IsValidUserID(s.CreatedBy) {
		return ErrInvalidCreatedBy
	}
	return nil
}

// Validate ensures the message meets all requirements
// TECHNICAL DISCOVERY: Payload must be well-formed JSON before any decoder sees it
func (m *Message) Validate() error {
	if !IsValidMessageType(m.Type) {
		return ErrInvalidMessageType
	}

	if len(m.Payload) > maxPayloadBytes {
		return ErrPayloadTooLarge
	}

	// Undo/redo carry no payload
	if len(m.Payload) > 0 && !json.Valid(m.Payload) {
		return ErrInvalidPayload
	}

	return nil
}

// IsValidUserID checks if a participant ID meets format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit prevents database issues
// and keeps synchronized object names short
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRole checks a role name
func IsValidRole(role string) bool {
	if len(role) < 1 || len(role) > 50 {
		return false
	}
	return roleRegex.MatchString(role)
}

// IsValidMessageType checks if the message type is one of the allowed commands
func IsValidMessageType(msgType string) bool {
	switch msgType {
	case MessageTypeWhiteboardAction,
		MessageTypeWhiteboardUndo,
		MessageTypeWhiteboardRedo,
		MessageTypeWhiteboardClear,
		MessageTypeSetTemporaryPermission:
		return true
	default:
		return false
	}
}
