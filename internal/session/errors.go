package session

import "errors"

var (
	ErrInvalidParticipant = errors.New("participant ID is invalid")
	ErrSameParticipant    = errors.New("vendor and client must be different users")
	ErrNotParticipant     = errors.New("user is not a participant of this chat")
)
