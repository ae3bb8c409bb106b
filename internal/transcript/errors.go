package transcript

import "errors"

var (
	ErrSessionNotActive = errors.New("session is not accepting transcript entries")
	ErrUnknownSession   = errors.New("no transcript log for session")
	ErrEntryNotFound    = errors.New("transcript entry not found")
	ErrReplayTruncated  = errors.New("requested sequence is older than the retained replay window")
	ErrEmptyLanguage    = errors.New("language code cannot be empty")
)
