package hub

import "errors"

var (
	ErrHubAlreadyRunning     = errors.New("hub is already running")
	ErrHubNotRunning         = errors.New("hub is not running")
	ErrEventChannelFull      = errors.New("event channel is full")
	ErrDisconnectChannelFull = errors.New("disconnect channel is full")
	ErrNotRegistered         = errors.New("connection has not completed registration")
)
