package websocket

import "errors"

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timed out")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry errors.
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrInvalidRegistration = errors.New("registration requires userId, role and name")
)
