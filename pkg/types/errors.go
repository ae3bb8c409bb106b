package types

import "errors"

var (
	ErrInvalidID           = errors.New("identifier must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole         = errors.New("invalid role: must be 'teacher' or 'student'")
	ErrInvalidLanguage     = errors.New("unsupported language code")
	ErrEmptyTargetSet      = errors.New("target language set cannot be empty")
	ErrInvalidStatus       = errors.New("invalid session status")
	ErrEmptyUtterance      = errors.New("utterance text cannot be empty")
	ErrUtteranceTooLarge   = errors.New("utterance text exceeds 8KB limit")
	ErrInvalidConfidence   = errors.New("confidence must be between 0.0 and 1.0")
	ErrInvalidEventType    = errors.New("invalid event type")
	ErrInvalidCommandType  = errors.New("invalid command type")
)
