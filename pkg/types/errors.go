package types

import "errors"

var (
	ErrUnknownEvent    = errors.New("unknown event kind")
	ErrInvalidUserID   = errors.New("user ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidRole     = errors.New("role must be 'vendor' or 'client'")
	ErrInvalidMessage  = errors.New("message body must be 1-4096 bytes")
	ErrMessageTooLarge = errors.New("message exceeds size limit")
)
