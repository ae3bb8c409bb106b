package interfaces

import (
	"context"

	"lingocast/pkg/types"
)

// Store is the persistence collaborator. Session records are durable state;
// transcript flushes are fire-and-forget and not required for correctness
// of the live path.
type Store interface {
	// CreateSession creates a new session record.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession retrieves a session record by ID.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// UpdateSession updates an existing session record (status and end
	// time transitions).
	UpdateSession(ctx context.Context, session *types.Session) error

	// ListActiveSessions returns all sessions not yet ended, used to
	// rebuild the registry after a restart.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// StoreTranscript persists a completed transcript entry.
	StoreTranscript(ctx context.Context, entry *types.TranscriptEntry) error

	// GetSessionTranscripts returns persisted entries for a session
	// ordered by sequence.
	GetSessionTranscripts(ctx context.Context, sessionID string) ([]*types.TranscriptEntry, error)

	// HealthCheck verifies connectivity.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases the connection.
	Close() error
}
