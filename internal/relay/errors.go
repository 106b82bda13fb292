package relay

import "errors"

var (
	// ErrRateLimited means the sender exceeded the per-user send rate;
	// the message was dropped without any delivery attempt.
	ErrRateLimited = errors.New("send rate exceeded")
)
