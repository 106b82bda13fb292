package interfaces

import "errors"

// Store errors shared by every ChatStore implementation so callers can
// branch without knowing which backend is active.
var (
	ErrChatNotFound = errors.New("chat session not found")
	ErrStoreClosed  = errors.New("chat store is closed")
)
