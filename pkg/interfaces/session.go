package interfaces

import (
	"context"

	"lingocast/pkg/types"
)

// SessionController drives the session lifecycle state machine and owns the
// ingestion entry point. It is the only component allowed to transition a
// session between states.
type SessionController interface {
	// StartSession creates a new active session bound to a class/subject
	// pair with a fixed source language and target language set.
	StartSession(ctx context.Context, classID, subjectID, sourceLanguage string, targetLanguages []string) (*types.Session, error)

	// PauseSession transitions active -> paused. Connections stay open;
	// ingestion is rejected until resume.
	PauseSession(ctx context.Context, sessionID string) error

	// ResumeSession transitions paused -> active.
	ResumeSession(ctx context.Context, sessionID string) error

	// EndSession transitions any non-ended state to ended. Idempotent:
	// ending an already-ended session returns nil. Completes within the
	// configured drain budget even with translation work outstanding.
	EndSession(ctx context.Context, sessionID string) error

	// Ingest accepts one recognized utterance from the ASR collaborator,
	// appends it to the transcript log and hands it to the broadcast hub.
	Ingest(ctx context.Context, sessionID, text string, confidence float64) (*types.TranscriptEntry, error)

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// ListActiveSessions returns all live (active or paused) sessions.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// ValidateJoin checks that a participant with the given role and
	// viewing language may join the session. Identity is the authorization
	// collaborator's concern; this validates session state and language.
	ValidateJoin(sessionID, role, viewingLanguage string) error

	// TouchActivity records ingestion/connection activity so the idle
	// sweeper does not reap a session that is still in use.
	TouchActivity(sessionID string)
}
