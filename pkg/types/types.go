package types

import (
	"encoding/json"
	"time"
)

// Inbound command types a client may send over its WebSocket
// ARCHITECTURAL DISCOVERY: Closed set keeps the router switch exhaustive
const (
	MessageTypeWhiteboardAction       = "whiteboard_action"
	MessageTypeWhiteboardUndo         = "whiteboard_undo"
	MessageTypeWhiteboardRedo         = "whiteboard_redo"
	MessageTypeWhiteboardClear        = "whiteboard_clear"
	MessageTypeSetTemporaryPermission = "set_temporary_permission"
)

// Outbound event names, kept identical to the names existing clients listen for
const (
	EventSynchronizeObjectState    = "OnSynchronizeObjectState"
	EventSynchronizedObjectUpdated = "OnSynchronizedObjectUpdated"
	EventCommandFailed             = "OnCommandFailed"
	EventSessionEnded              = "OnSessionEnded"
)

// Session status values
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// Session represents a collaboration scope (a single meeting or room)
// FUNCTIONAL DISCOVERY: Session metadata is immutable after creation except for end_time and status
type Session struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	CreatedBy string     `json:"created_by" db:"created_by"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`
	Status    string     `json:"status" db:"status"`
}

// Participant identifies one member of one session.
// A participant belongs to exactly one session at a time.
type Participant struct {
	SessionID string `json:"session_id"`
	ID        string `json:"id"`
}

// Key returns a string unique across sessions, suitable for map keys.
func (p Participant) Key() string {
	return p.SessionID + "/" + p.ID
}

// RoleAssignment binds a participant to a named role within a session
type RoleAssignment struct {
	SessionID     string    `json:"session_id" db:"session_id"`
	ParticipantID string    `json:"participant_id" db:"participant_id"`
	Role          string    `json:"role" db:"role"`
	AssignedAt    time.Time `json:"assigned_at" db:"assigned_at"`
}

// Message is an inbound client command
// ARCHITECTURAL DISCOVERY: Payload kept raw so the router decodes it per type
// without the transport layer knowing command shapes
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	FromUser  string          `json:"from_user"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Sender returns the participant that sent the message.
func (m *Message) Sender() Participant {
	return Participant{SessionID: m.SessionID, ID: m.FromUser}
}

// Envelope is the outbound frame written to a client
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// CommandFailed is the payload of an OnCommandFailed event
type CommandFailed struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// SessionEnded is the payload of an OnSessionEnded event
type SessionEnded struct {
	SessionID string `json:"sessionId"`
}
