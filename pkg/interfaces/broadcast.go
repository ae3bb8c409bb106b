package interfaces

import (
	"context"

	"lingocast/pkg/types"
)

// Broadcaster is the per-session fan-out engine. The session controller
// publishes appended entries and control events through it; it never blocks
// the caller on slow consumers.
type Broadcaster interface {
	// PublishEntry queues a freshly appended entry for fan-out. Viewers on
	// the source language receive it immediately; other languages receive
	// it with a pending translation followed by a transcript.translated
	// update once the translation resolves.
	PublishEntry(entry *types.TranscriptEntry) error

	// BroadcastControl pushes a non-transcript control event (pause,
	// resume, end, participant counts) to every connection of a session.
	BroadcastControl(sessionID string, event *types.Event) error

	// DrainSession waits for in-flight translation work for the session to
	// finish, up to the given budget, then abandons the remainder. Called
	// by EndSession before connections are closed.
	DrainSession(ctx context.Context, sessionID string)
}
