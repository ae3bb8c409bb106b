package types

import (
	"time"
)

// Session status values. A session moves active <-> paused any number of
// times and ends exactly once; ended is terminal.
const (
	SessionStatusActive = "active"
	SessionStatusPaused = "paused"
	SessionStatusEnded  = "ended"
)

// Participant roles.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Event types pushed to streaming connections.
const (
	EventTranscriptNew        = "transcript.new"
	EventTranscriptTranslated = "transcript.translated"
	EventSessionPaused        = "session.paused"
	EventSessionResumed       = "session.resumed"
	EventSessionEnded         = "session.ended"
	EventParticipantsCount    = "participants.count"
	EventHistoryComplete      = "history_complete"
	EventHistoryTruncated     = "history_truncated"
	EventCommandError         = "command_error"
)

// Client-initiated command types received over a streaming connection.
const (
	CommandSetLanguage = "set_language"
	CommandReplaySince = "replay_since"
)

// Session represents one live classroom broadcast instance.
// Immutable after creation except for Status and EndedAt; the target
// language set is fixed at start time and never mutated mid-session.
type Session struct {
	ID              string     `json:"id" db:"id"`
	ClassID         string     `json:"class_id" db:"class_id"`
	SubjectID       string     `json:"subject_id" db:"subject_id"`
	SourceLanguage  string     `json:"source_language" db:"source_language"`
	TargetLanguages []string   `json:"target_languages" db:"target_languages"`
	Status          string     `json:"status" db:"status"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// SupportsLanguage reports whether a viewer may select the given language
// in this session. The source language is always viewable.
func (s *Session) SupportsLanguage(lang string) bool {
	if lang == s.SourceLanguage {
		return true
	}
	for _, code := range s.TargetLanguages {
		if code == lang {
			return true
		}
	}
	return false
}

// TranscriptEntry is one recognized utterance plus its accumulated
// translations. Sequence is the per-session ordering authority: strictly
// increasing, gapless, assigned at append time. Translations are filled in
// lazily and never overwritten once computed.
type TranscriptEntry struct {
	ID           string            `json:"id"`
	SessionID    string            `json:"session_id"`
	Sequence     int64             `json:"sequence"`
	Timestamp    time.Time         `json:"timestamp"`
	Language     string            `json:"language"`
	OriginalText string            `json:"original_text"`
	Translations map[string]string `json:"translations,omitempty"`
	Confidence   float64           `json:"confidence,omitempty"`
}

// TextFor returns the entry text projected into the given language and
// whether that projection is available yet. The original language is always
// available immediately.
func (e *TranscriptEntry) TextFor(lang string) (string, bool) {
	if lang == e.Language {
		return e.OriginalText, true
	}
	text, ok := e.Translations[lang]
	return text, ok
}

// Event is the wire envelope pushed to streaming connections. Exactly one
// of Entry or the scalar payload fields is populated depending on Type.
type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Entry     *TranscriptEntry `json:"entry,omitempty"`

	// transcript.translated payload; consumers merge by EntryID.
	EntryID  string `json:"entry_id,omitempty"`
	Sequence int64  `json:"sequence,omitempty"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`

	// participants.count payload.
	Teachers int `json:"teachers,omitempty"`
	Students int `json:"students,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Command is a client-initiated message read from a streaming connection.
type Command struct {
	Type          string `json:"type"`
	Language      string `json:"language,omitempty"`
	SinceSequence int64  `json:"since_sequence,omitempty"`
}
