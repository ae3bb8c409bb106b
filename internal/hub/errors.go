package hub

import "errors"

var (
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrPublishChannelFull = errors.New("publish channel is full")
	ErrControlChannelFull = errors.New("control channel is full")
	ErrNilEntry           = errors.New("entry cannot be nil")
)
