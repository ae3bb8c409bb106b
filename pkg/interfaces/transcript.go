package interfaces

import (
	"lingocast/pkg/types"
)

// TranscriptLog is the per-session ordered, append-only record of
// recognized utterances. It is the single source of truth for sequence
// numbers and for replay on reconnect.
type TranscriptLog interface {
	// Append creates the next entry for the session, assigning
	// sequence = lastSequence + 1 under a per-session exclusive section.
	// Appends for different sessions proceed independently.
	Append(sessionID, language, text string, confidence float64) (*types.TranscriptEntry, error)

	// AttachTranslation is an idempotent upsert into an entry's
	// translations map. Once a translation is recorded it is never
	// overwritten; repeated calls with the same result are safe.
	AttachTranslation(sessionID, entryID, language, text string) error

	// Since returns entries with sequence > since, in order, bounded by
	// the replay window. If the requested sequence has already been
	// truncated out of the retained window, the returned truncated flag is
	// true, the error reports the truncation and the slice holds the most
	// recent window instead.
	Since(sessionID string, since int64) (entries []*types.TranscriptEntry, truncated bool, err error)

	// Entry returns a copy of a single entry by ID.
	Entry(sessionID, entryID string) (*types.TranscriptEntry, error)

	// LastSequence returns the highest sequence assigned for the session,
	// or 0 if nothing has been appended.
	LastSequence(sessionID string) int64

	// DropSession discards all retained entries for a session.
	DropSession(sessionID string)
}
