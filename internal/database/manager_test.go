package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	dbconfig "lingocast/pkg/database"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	config := &dbconfig.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:  5,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func testSession(id string) *types.Session {
	return &types.Session{
		ID:              id,
		ClassID:         "class-7a",
		SubjectID:       "physics",
		SourceLanguage:  "hi",
		TargetLanguages: []string{"en", "ta"},
		Status:          types.SessionStatusActive,
		StartedAt:       time.Now().UTC().Truncate(time.Second),
	}
}

func TestManager_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Store = newTestManager(t)
}

func TestManager_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewManager(&dbconfig.Config{}); err == nil {
		t.Error("empty config should be rejected")
	}
}

func TestManager_SessionRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	session := testSession("session-1")

	if err := manager.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := manager.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ClassID != session.ClassID || got.SubjectID != session.SubjectID {
		t.Errorf("class/subject mismatch: %+v", got)
	}
	if got.SourceLanguage != "hi" {
		t.Errorf("expected source hi, got %q", got.SourceLanguage)
	}
	if len(got.TargetLanguages) != 2 || got.TargetLanguages[0] != "en" {
		t.Errorf("target languages mismatch: %v", got.TargetLanguages)
	}
	if got.Status != types.SessionStatusActive {
		t.Errorf("expected active, got %q", got.Status)
	}
	if got.EndedAt != nil {
		t.Error("ended timestamp should be nil")
	}
}

func TestManager_GetSessionNotFound(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GetSession(context.Background(), "missing")
	if !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_UpdateSession(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	session := testSession("session-1")
	manager.CreateSession(ctx, session)

	now := time.Now().UTC().Truncate(time.Second)
	session.Status = types.SessionStatusEnded
	session.EndedAt = &now
	if err := manager.UpdateSession(ctx, session); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, _ := manager.GetSession(ctx, "session-1")
	if got.Status != types.SessionStatusEnded {
		t.Errorf("expected ended, got %q", got.Status)
	}
	if got.EndedAt == nil {
		t.Error("ended timestamp should persist")
	}
}

func TestManager_UpdateMissingSession(t *testing.T) {
	manager := newTestManager(t)

	err := manager.UpdateSession(context.Background(), testSession("missing"))
	if !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_ListActiveSessions(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	manager.CreateSession(ctx, testSession("active-1"))

	paused := testSession("paused-1")
	paused.Status = types.SessionStatusPaused
	manager.CreateSession(ctx, paused)

	ended := testSession("ended-1")
	now := time.Now().UTC()
	ended.Status = types.SessionStatusEnded
	ended.EndedAt = &now
	manager.CreateSession(ctx, ended)

	sessions, err := manager.ListActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ListActiveSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 live sessions (active + paused), got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.Status == types.SessionStatusEnded {
			t.Errorf("ended session %s should not be listed", s.ID)
		}
	}
}

func TestManager_TranscriptRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	manager.CreateSession(ctx, testSession("session-1"))

	for i := int64(1); i <= 3; i++ {
		entry := &types.TranscriptEntry{
			ID:           fmt.Sprintf("entry-%d", i),
			SessionID:    "session-1",
			Sequence:     i,
			Timestamp:    time.Now().UTC(),
			Language:     "hi",
			OriginalText: "utterance",
			Translations: map[string]string{"en": "utterance-en"},
			Confidence:   0.9,
		}
		if err := manager.StoreTranscript(ctx, entry); err != nil {
			t.Fatalf("StoreTranscript failed: %v", err)
		}
	}

	entries, err := manager.GetSessionTranscripts(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSessionTranscripts failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Sequence != int64(i+1) {
			t.Errorf("entries should come back ordered by sequence, got %d at %d", entry.Sequence, i)
		}
	}
	if entries[0].Translations["en"] != "utterance-en" {
		t.Errorf("translations should round-trip, got %v", entries[0].Translations)
	}
}

// Duplicate (session, sequence) writes are ignored, which makes the
// fire-and-forget flush safe to retry.
func TestManager_StoreTranscriptIgnoresDuplicates(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	manager.CreateSession(ctx, testSession("session-1"))

	entry := &types.TranscriptEntry{
		ID:           "entry-1",
		SessionID:    "session-1",
		Sequence:     1,
		Timestamp:    time.Now().UTC(),
		Language:     "hi",
		OriginalText: "first",
		Confidence:   0.9,
	}
	if err := manager.StoreTranscript(ctx, entry); err != nil {
		t.Fatalf("StoreTranscript failed: %v", err)
	}

	dup := *entry
	dup.OriginalText = "second write"
	if err := manager.StoreTranscript(ctx, &dup); err != nil {
		t.Fatalf("duplicate StoreTranscript should not error: %v", err)
	}

	entries, _ := manager.GetSessionTranscripts(ctx, "session-1")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after duplicate write, got %d", len(entries))
	}
	if entries[0].OriginalText != "first" {
		t.Errorf("first write should win, got %q", entries[0].OriginalText)
	}
}

func TestManager_HealthCheck(t *testing.T) {
	manager := newTestManager(t)
	if err := manager.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed on a live database: %v", err)
	}
}

func TestManager_SchemaApplied(t *testing.T) {
	manager := newTestManager(t)

	validator := dbconfig.NewSchemaValidator(manager.GetDB())
	if err := validator.ValidateTablesExist(); err != nil {
		t.Errorf("expected migrated tables: %v", err)
	}
	if err := validator.ValidateIndexes(); err != nil {
		t.Errorf("expected migrated indexes: %v", err)
	}
}
