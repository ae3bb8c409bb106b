package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"lingocast/pkg/types"
)

// DefaultReplayWindow bounds how many entries are retained in memory per
// session. Reconnects older than this window receive a truncated replay.
const DefaultReplayWindow = 500

// DefaultBatchSize bounds how many entries a single Since call returns,
// preventing memory spikes on very stale reconnects.
const DefaultBatchSize = 200

// Log is the in-memory transcript record for all live sessions. Each
// session gets its own sessionLog with its own mutex, so appends for
// different sessions never contend.
type Log struct {
	mu           sync.RWMutex
	sessions     map[string]*sessionLog
	replayWindow int
	batchSize    int
}

// sessionLog holds the ordered entries for one session. The mutex is the
// per-session exclusive section that makes sequence assignment gapless:
// only one append may be in flight at a time for a given session.
type sessionLog struct {
	mu       sync.RWMutex
	entries  []*types.TranscriptEntry
	lastSeq  int64
	firstSeq int64 // sequence of entries[0]; advances as the window trims
	byID     map[string]*types.TranscriptEntry
}

// NewLog creates a transcript log with the default replay window.
func NewLog() *Log {
	return NewLogWithWindow(DefaultReplayWindow, DefaultBatchSize)
}

// NewLogWithWindow creates a transcript log with explicit retention and
// batch bounds.
func NewLogWithWindow(replayWindow, batchSize int) *Log {
	if replayWindow <= 0 {
		replayWindow = DefaultReplayWindow
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Log{
		sessions:     make(map[string]*sessionLog),
		replayWindow: replayWindow,
		batchSize:    batchSize,
	}
}

func (l *Log) sessionLogFor(sessionID string, create bool) *sessionLog {
	l.mu.RLock()
	sl, exists := l.sessions[sessionID]
	l.mu.RUnlock()
	if exists || !create {
		return sl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if sl, exists = l.sessions[sessionID]; exists {
		return sl
	}
	sl = &sessionLog{
		firstSeq: 1,
		byID:     make(map[string]*types.TranscriptEntry),
	}
	l.sessions[sessionID] = sl
	return sl
}

// Append creates the next entry for the session. Sequence assignment
// happens under the session's exclusive lock, so sequences are strictly
// increasing with no gaps and no duplicates even under concurrent callers.
func (l *Log) Append(sessionID, language, text string, confidence float64) (*types.TranscriptEntry, error) {
	if language == "" {
		return nil, ErrEmptyLanguage
	}
	if err := types.ValidateUtterance(text, confidence); err != nil {
		return nil, err
	}

	sl := l.sessionLogFor(sessionID, true)

	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.lastSeq++
	entry := &types.TranscriptEntry{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		Sequence:     sl.lastSeq,
		Timestamp:    time.Now(),
		Language:     language,
		OriginalText: text,
		Translations: make(map[string]string),
		Confidence:   confidence,
	}
	sl.entries = append(sl.entries, entry)
	sl.byID[entry.ID] = entry

	// Trim the retained window. Trimmed entries are only reachable through
	// the persistence collaborator afterwards.
	if len(sl.entries) > l.replayWindow {
		drop := len(sl.entries) - l.replayWindow
		for _, old := range sl.entries[:drop] {
			delete(sl.byID, old.ID)
		}
		sl.entries = sl.entries[drop:]
		sl.firstSeq = sl.entries[0].Sequence
	}

	return copyEntry(entry), nil
}

// AttachTranslation records a translation for an entry. Idempotent: once a
// translation exists for a language it is never overwritten, since the
// source text of an entry never changes.
func (l *Log) AttachTranslation(sessionID, entryID, language, text string) error {
	if language == "" {
		return ErrEmptyLanguage
	}

	sl := l.sessionLogFor(sessionID, false)
	if sl == nil {
		return ErrUnknownSession
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	entry, exists := sl.byID[entryID]
	if !exists {
		return ErrEntryNotFound
	}
	if _, done := entry.Translations[language]; done {
		return nil
	}
	entry.Translations[language] = text
	return nil
}

// Since returns entries with sequence > since, in order, up to the batch
// size. If the requested sequence predates the retained window the
// truncated flag is set, ErrReplayTruncated is returned and the most
// recent window comes back with it, so a very stale reconnect starts
// fresh rather than faulting.
func (l *Log) Since(sessionID string, since int64) ([]*types.TranscriptEntry, bool, error) {
	sl := l.sessionLogFor(sessionID, false)
	if sl == nil {
		return nil, false, ErrUnknownSession
	}

	sl.mu.RLock()
	defer sl.mu.RUnlock()

	truncated := false
	start := since + 1
	if len(sl.entries) > 0 && start < sl.firstSeq {
		truncated = true
		start = sl.firstSeq
	}

	var out []*types.TranscriptEntry
	for _, entry := range sl.entries {
		if entry.Sequence < start {
			continue
		}
		out = append(out, copyEntry(entry))
		if len(out) >= l.batchSize {
			break
		}
	}
	if truncated {
		return out, true, ErrReplayTruncated
	}
	return out, false, nil
}

// Entry returns a copy of a single retained entry.
func (l *Log) Entry(sessionID, entryID string) (*types.TranscriptEntry, error) {
	sl := l.sessionLogFor(sessionID, false)
	if sl == nil {
		return nil, ErrUnknownSession
	}

	sl.mu.RLock()
	defer sl.mu.RUnlock()

	entry, exists := sl.byID[entryID]
	if !exists {
		return nil, ErrEntryNotFound
	}
	return copyEntry(entry), nil
}

// LastSequence returns the highest sequence assigned for the session.
func (l *Log) LastSequence(sessionID string) int64 {
	sl := l.sessionLogFor(sessionID, false)
	if sl == nil {
		return 0
	}
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.lastSeq
}

// DropSession discards all retained entries for a session. Called when a
// session is evicted from the registry after its post-end grace period.
func (l *Log) DropSession(sessionID string) {
	l.mu.Lock()
	delete(l.sessions, sessionID)
	l.mu.Unlock()
}

// GetStats returns log statistics for the health endpoint.
func (l *Log) GetStats() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0
	for _, sl := range l.sessions {
		sl.mu.RLock()
		total += len(sl.entries)
		sl.mu.RUnlock()
	}
	return map[string]int{
		"sessions":         len(l.sessions),
		"retained_entries": total,
	}
}

// copyEntry returns a snapshot safe to hand to other goroutines. The
// translations map is copied because it mutates as translations resolve.
func copyEntry(entry *types.TranscriptEntry) *types.TranscriptEntry {
	dup := *entry
	dup.Translations = make(map[string]string, len(entry.Translations))
	for lang, text := range entry.Translations {
		dup.Translations[lang] = text
	}
	return &dup
}
