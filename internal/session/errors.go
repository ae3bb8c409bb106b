package session

import (
	"errors"
	"fmt"

	"lingocast/pkg/interfaces"
)

var (
	ErrInvalidConfiguration = errors.New("invalid session configuration")
	// ErrSessionNotFound aliases the shared sentinel so transport layers
	// can match it without importing this package.
	ErrSessionNotFound      = interfaces.ErrSessionNotFound
	ErrInvalidTransition    = errors.New("invalid session state transition")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrInvalidRole          = errors.New("invalid role: must be 'teacher' or 'student'")
	ErrUnsupportedLanguage  = errors.New("language not supported by this session")
)

// Both sentinel chains satisfy errors.Is(err, ErrSessionNotActive) so the
// ingestion path can reject uniformly while callers still distinguish
// paused from ended. ErrSessionEnded also carries the shared sentinel
// for transport-level matching.
var (
	ErrSessionPaused = fmt.Errorf("session is paused: %w", ErrSessionNotActive)
	ErrSessionEnded  = fmt.Errorf("%w: %w", ErrSessionNotActive, interfaces.ErrSessionEnded)
)
