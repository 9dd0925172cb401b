package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		wantErr error
	}{
		{
			name: "valid session",
			session: Session{
				ID:        "123",
				Name:      "Design Review",
				CreatedBy: "host_1",
				StartTime: time.Now(),
				Status:    SessionStatusActive,
			},
			wantErr: nil,
		},
		{
			name:    "empty name",
			session: Session{ID: "123", Name: "", CreatedBy: "host_1"},
			wantErr: ErrInvalidSessionName,
		},
		{
			name:    "name too long",
			session: Session{ID: "123", Name: strings.Repeat("a", 201), CreatedBy: "host_1"},
			wantErr: ErrInvalidSessionName,
		},
		{
			name:    "invalid created_by",
			session: Session{ID: "123", Name: "Design Review", CreatedBy: "bad user!@#"},
			wantErr: ErrInvalidCreatedBy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if err != tt.wantErr {
				t.Errorf("Session.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		message Message
		wantErr error
	}{
		{
			name: "valid whiteboard action",
			message: Message{
				Type:    MessageTypeWhiteboardAction,
				Payload: json.RawMessage(`{"kind":"remove","objectIds":["1"]}`),
			},
		},
		{
			name:    "undo without payload",
			message: Message{Type: MessageTypeWhiteboardUndo},
		},
		{
			name:    "unknown type",
			message: Message{Type: "chat"},
			wantErr: ErrInvalidMessageType,
		},
		{
			name: "malformed payload",
			message: Message{
				Type:    MessageTypeSetTemporaryPermission,
				Payload: json.RawMessage(`{"key":`),
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "payload too large",
			message: Message{
				Type:    MessageTypeWhiteboardAction,
				Payload: json.RawMessage(`"` + strings.Repeat("a", maxPayloadBytes) + `"`),
			},
			wantErr: ErrPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.message.Validate()
			if err != tt.wantErr {
				t.Errorf("Message.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"alice", true},
		{"participant_42", true},
		{"p-1", true},
		{"", false},
		{strings.Repeat("a", 51), false},
		{"has space", false},
		{"semi;colon", false},
	}

	for _, tt := range tests {
		if got := IsValidUserID(tt.id); got != tt.want {
			t.Errorf("IsValidUserID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole("moderator") {
		t.Error("moderator should be a valid role")
	}
	if IsValidRole("") {
		t.Error("empty role should be invalid")
	}
	if IsValidRole("mod erator") {
		t.Error("role with whitespace should be invalid")
	}
}

func TestParticipant_Key(t *testing.T) {
	a := Participant{SessionID: "s1", ID: "p1"}
	b := Participant{SessionID: "s2", ID: "p1"}

	if a.Key() == b.Key() {
		t.Error("same participant ID in different sessions must have distinct keys")
	}
	if a.Key() != "s1/p1" {
		t.Errorf("unexpected key %q", a.Key())
	}
}

func TestMessage_Sender(t *testing.T) {
	m := Message{SessionID: "s1", FromUser: "p1"}
	if got := m.Sender(); got != (Participant{SessionID: "s1", ID: "p1"}) {
		t.Errorf("Sender() = %+v", got)
	}
}

func TestEnvelope_JSONShape(t *testing.T) {
	data, err := json.Marshal(Envelope{Type: EventSessionEnded, Payload: SessionEnded{SessionID: "s1"}})
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	want := `{"type":"OnSessionEnded","payload":{"sessionId":"s1"}}`
	if string(data) != want {
		t.Errorf("envelope JSON = %s, want %s", data, want)
	}
}
