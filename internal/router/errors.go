package router

import "errors"

// Router-specific error types
var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrSenderNotInSession = errors.New("sender not joined to message session")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrTooManyObjects     = errors.New("action exceeds the objects-per-action permission")
	ErrInvalidTarget      = errors.New("target participant not joined to this session")
	ErrMalformedPayload   = errors.New("malformed command payload")
)
