package syncobj

import "errors"

// Registry error types
var (
	ErrDuplicateName  = errors.New("an object with the same name was already registered for this session")
	ErrInvalidName    = errors.New("synchronized object name cannot be empty")
	ErrSessionClosed  = errors.New("session has been torn down")
	ErrObjectRemoved  = errors.New("synchronized object was unregistered")
	ErrObjectNotFound = errors.New("synchronized object not found")
)
