package interfaces

import (
	"context"
)

// Translator is the external translation collaborator boundary. It may fail
// transiently; callers treat failures as retryable.
type Translator interface {
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
}

// TranslationResolver memoizes translations per (session, entry, language).
// Concurrent callers for the same key share one underlying collaborator
// call; failures are never cached.
type TranslationResolver interface {
	// GetOrTranslate returns the cached translation for the entry, or
	// invokes the collaborator exactly once per key under concurrency.
	GetOrTranslate(ctx context.Context, sessionID, entryID, text, sourceLanguage, targetLanguage string) (string, error)

	// Peek returns the cached translation without triggering the
	// collaborator.
	Peek(sessionID, entryID, targetLanguage string) (string, bool)

	// DropSession evicts every cached translation for a session.
	DropSession(sessionID string)
}
