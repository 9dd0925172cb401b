package session

import (
	"errors"

	"syncboard/pkg/interfaces"
)

// Session management error types
var (
	ErrInvalidSessionName   = errors.New("session name must be 1-200 characters")
	ErrInvalidCreatedBy     = errors.New("created_by must be valid participant ID")
	ErrInvalidParticipantID = errors.New("invalid participant ID format")
	ErrSessionNotFound      = interfaces.ErrSessionNotFound
	ErrSessionEnded         = interfaces.ErrSessionEnded
	ErrSessionAlreadyEnded  = errors.New("session is already ended")
	ErrAlreadyJoined        = errors.New("participant already joined this session")
)
