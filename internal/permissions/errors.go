package permissions

import "errors"

// Permission engine error types
var (
	ErrInvalidPermissionKey   = errors.New("unknown permission key")
	ErrInvalidPermissionValue = errors.New("permission value does not match the key's kind")
	ErrParticipantNotJoined   = errors.New("participant has no permission object in this session")
	ErrInvalidRole            = errors.New("invalid role definition")
)
