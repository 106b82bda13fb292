package interfaces

// Connection is one live client connection as the registry and relay
// see it. Implementations must make WriteJSON safe for concurrent use;
// the WebSocket implementation serializes writes through a single
// writer goroutine.
type Connection interface {
	// ConnectionID returns the opaque identifier assigned at connect
	// time. It is never reused for the process lifetime.
	ConnectionID() string

	// WriteJSON sends a JSON-encoded event to the client.
	WriteJSON(v any) error

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// SetIdentity binds the registered identity to the connection.
	// Calling it again overwrites the previous identity.
	SetIdentity(userID, role, displayName string) error

	// IsRegistered reports whether a registration has completed on
	// this connection.
	IsRegistered() bool

	GetUserID() string
	GetRole() string
	GetDisplayName() string
}
