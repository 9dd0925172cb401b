package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUserID      = errors.New("participant ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidSessionName = errors.New("session name must be 1-200 characters")
	ErrInvalidCreatedBy   = errors.New("created_by must be valid participant ID")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidPayload     = errors.New("invalid JSON payload")
	ErrPayloadTooLarge    = errors.New("message payload exceeds 64KB limit")
	ErrInvalidRole        = errors.New("role must be 1-50 characters, alphanumeric + underscore/hyphen")
)
