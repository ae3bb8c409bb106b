package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed     = errors.New("connection closed")
	ErrConnectionOverloaded = errors.New("outbound buffer full, connection dropped")
	ErrWriteTimeout         = errors.New("write timeout")
	ErrInvalidJSON          = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrAlreadyRegistered   = errors.New("connection already registered")
	ErrPublisherConflict   = errors.New("session already has an authoritative teacher connection")
	ErrConnectionNotFound  = errors.New("connection not found")
)

// Handler-related errors
var (
	ErrInvalidParameters = errors.New("invalid connection parameters")
	ErrSessionValidation = errors.New("session validation failed")
)
