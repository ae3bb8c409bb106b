package transcript

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"lingocast/pkg/types"
)

func TestLog_AppendAssignsSequentialNumbers(t *testing.T) {
	log := NewLog()

	for i := 1; i <= 5; i++ {
		entry, err := log.Append("session-1", "hi", fmt.Sprintf("utterance %d", i), 0.9)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if entry.Sequence != int64(i) {
			t.Errorf("expected sequence %d, got %d", i, entry.Sequence)
		}
		if entry.ID == "" {
			t.Error("entry ID should be generated")
		}
		if entry.Timestamp.IsZero() {
			t.Error("entry timestamp should be set")
		}
	}
}

func TestLog_SequencesIndependentAcrossSessions(t *testing.T) {
	log := NewLog()

	if entry, _ := log.Append("session-a", "hi", "one", 0.9); entry.Sequence != 1 {
		t.Errorf("expected sequence 1 for session-a, got %d", entry.Sequence)
	}
	if entry, _ := log.Append("session-b", "en", "one", 0.9); entry.Sequence != 1 {
		t.Errorf("expected sequence 1 for session-b, got %d", entry.Sequence)
	}
	if entry, _ := log.Append("session-a", "hi", "two", 0.9); entry.Sequence != 2 {
		t.Errorf("expected sequence 2 for session-a, got %d", entry.Sequence)
	}
}

// Gapless assignment must hold under concurrent appenders: every sequence
// from 1..N appears exactly once.
func TestLog_ConcurrentAppendsAreGapless(t *testing.T) {
	log := NewLog()

	const goroutines = 10
	const perGoroutine = 20

	var wg sync.WaitGroup
	seqCh := make(chan int64, goroutines*perGoroutine)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				entry, err := log.Append("session-1", "hi", "concurrent", 0.8)
				if err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
				seqCh <- entry.Sequence
			}
		}()
	}
	wg.Wait()
	close(seqCh)

	seen := make(map[int64]bool)
	for seq := range seqCh {
		if seen[seq] {
			t.Errorf("duplicate sequence %d", seq)
		}
		seen[seq] = true
	}
	for i := int64(1); i <= goroutines*perGoroutine; i++ {
		if !seen[i] {
			t.Errorf("missing sequence %d", i)
		}
	}
}

func TestLog_AppendValidatesInput(t *testing.T) {
	log := NewLog()

	if _, err := log.Append("session-1", "", "text", 0.9); !errors.Is(err, ErrEmptyLanguage) {
		t.Errorf("expected ErrEmptyLanguage, got %v", err)
	}
	if _, err := log.Append("session-1", "hi", "", 0.9); !errors.Is(err, types.ErrEmptyUtterance) {
		t.Errorf("expected ErrEmptyUtterance, got %v", err)
	}
	if _, err := log.Append("session-1", "hi", "text", 1.5); !errors.Is(err, types.ErrInvalidConfidence) {
		t.Errorf("expected ErrInvalidConfidence, got %v", err)
	}
}

func TestLog_SinceReturnsEntriesAfterSequence(t *testing.T) {
	log := NewLog()
	for i := 1; i <= 10; i++ {
		log.Append("session-1", "hi", fmt.Sprintf("utterance %d", i), 0.9)
	}

	entries, truncated, err := log.Since("session-1", 5)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if truncated {
		t.Error("replay within the window should not be truncated")
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Sequence != int64(6+i) {
			t.Errorf("expected sequence %d at index %d, got %d", 6+i, i, entry.Sequence)
		}
	}
}

func TestLog_SinceZeroReturnsFullWindow(t *testing.T) {
	log := NewLog()
	for i := 1; i <= 3; i++ {
		log.Append("session-1", "hi", "utterance", 0.9)
	}

	entries, truncated, err := log.Since("session-1", 0)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if truncated {
		t.Error("fresh session replay should not be truncated")
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}
}

func TestLog_SinceUnknownSession(t *testing.T) {
	log := NewLog()
	if _, _, err := log.Since("missing", 0); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}

func TestLog_WindowTrimmingSetsTruncatedFlag(t *testing.T) {
	log := NewLogWithWindow(5, 10)
	for i := 1; i <= 12; i++ {
		log.Append("session-1", "hi", fmt.Sprintf("utterance %d", i), 0.9)
	}

	// Only sequences 8..12 are retained. A replay from before the window
	// reports truncation and serves what remains.
	entries, truncated, err := log.Since("session-1", 2)
	if !errors.Is(err, ErrReplayTruncated) {
		t.Fatalf("expected ErrReplayTruncated, got %v", err)
	}
	if !truncated {
		t.Error("replay predating the window should be truncated")
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 retained entries, got %d", len(entries))
	}
	if entries[0].Sequence != 8 {
		t.Errorf("expected oldest retained sequence 8, got %d", entries[0].Sequence)
	}

	// A replay from within the window is unaffected.
	entries, truncated, err = log.Since("session-1", 10)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if truncated {
		t.Error("replay within the window should not be truncated")
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestLog_SinceRespectsBatchSize(t *testing.T) {
	log := NewLogWithWindow(100, 3)
	for i := 1; i <= 10; i++ {
		log.Append("session-1", "hi", "utterance", 0.9)
	}

	entries, _, err := log.Since("session-1", 0)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected batch of 3, got %d", len(entries))
	}
	if entries[2].Sequence != 3 {
		t.Errorf("batch should start from the oldest requested entry, got last sequence %d", entries[2].Sequence)
	}
}

func TestLog_AttachTranslationIsIdempotent(t *testing.T) {
	log := NewLog()
	entry, _ := log.Append("session-1", "hi", "नमस्ते", 0.95)

	if err := log.AttachTranslation("session-1", entry.ID, "en", "Hello"); err != nil {
		t.Fatalf("AttachTranslation failed: %v", err)
	}
	// Second attach for the same language is a no-op, not an overwrite.
	if err := log.AttachTranslation("session-1", entry.ID, "en", "Different"); err != nil {
		t.Fatalf("repeated AttachTranslation failed: %v", err)
	}

	got, err := log.Entry("session-1", entry.ID)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	if got.Translations["en"] != "Hello" {
		t.Errorf("first translation should win, got %q", got.Translations["en"])
	}
}

func TestLog_AttachTranslationErrors(t *testing.T) {
	log := NewLog()
	entry, _ := log.Append("session-1", "hi", "text", 0.9)

	if err := log.AttachTranslation("missing", entry.ID, "en", "x"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
	if err := log.AttachTranslation("session-1", "missing-entry", "en", "x"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
	if err := log.AttachTranslation("session-1", entry.ID, "", "x"); !errors.Is(err, ErrEmptyLanguage) {
		t.Errorf("expected ErrEmptyLanguage, got %v", err)
	}
}

func TestLog_EntryCopiesAreIsolated(t *testing.T) {
	log := NewLog()
	entry, _ := log.Append("session-1", "hi", "text", 0.9)

	snapshot, _ := log.Entry("session-1", entry.ID)
	snapshot.Translations["en"] = "mutated externally"

	fresh, _ := log.Entry("session-1", entry.ID)
	if _, exists := fresh.Translations["en"]; exists {
		t.Error("mutating a returned copy must not affect the log")
	}
}

func TestLog_LastSequence(t *testing.T) {
	log := NewLog()

	if seq := log.LastSequence("session-1"); seq != 0 {
		t.Errorf("unknown session should report 0, got %d", seq)
	}

	log.Append("session-1", "hi", "one", 0.9)
	log.Append("session-1", "hi", "two", 0.9)
	if seq := log.LastSequence("session-1"); seq != 2 {
		t.Errorf("expected last sequence 2, got %d", seq)
	}
}

func TestLog_DropSessionDiscardsEntries(t *testing.T) {
	log := NewLog()
	log.Append("session-1", "hi", "text", 0.9)

	log.DropSession("session-1")

	if _, _, err := log.Since("session-1", 0); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("dropped session should be unknown, got %v", err)
	}
	if seq := log.LastSequence("session-1"); seq != 0 {
		t.Errorf("dropped session should report last sequence 0, got %d", seq)
	}
}
