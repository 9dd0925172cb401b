package interfaces

// Connection represents a WebSocket client connection interface
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between WebSocket infrastructure and business logic
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetUserID returns the connected participant's ID
	GetUserID() string

	// GetSessionID returns the session ID this connection belongs to
	GetSessionID() string

	// IsAuthenticated returns true once credentials have been set
	IsAuthenticated() bool

	// SetCredentials binds the connection to a participant of a session
	SetCredentials(userID, sessionID string) error
}

// Transport is the push channel the synchronization core writes through.
// Sends are fire-and-forget from the caller's perspective: the core never
// retries a failed send.
type Transport interface {
	// SendToParticipant delivers a message to one connected participant
	SendToParticipant(participantID string, message interface{}) error

	// SendToSession delivers a message to every participant connected to a session
	SendToSession(sessionID string, message interface{}) error
}
