package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig should not return nil")
	}
	if config.DatabasePath != "./data/lingocast.db" {
		t.Errorf("expected DatabasePath './data/lingocast.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime != time.Minute*10 {
		t.Errorf("expected ConnMaxIdleTime 10 minutes, got %v", config.ConnMaxIdleTime)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DatabasePath:    "./test.db",
			MaxConnections:  5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: time.Minute,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }},
		{"negative max connections", func(c *Config) { c.MaxConnections = -1 }},
		{"zero conn max lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"zero conn max idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline config should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplySQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)

	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Fatalf("ApplySQLiteOptimizations failed: %v", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("failed to read journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected journal_mode wal, got %s", journalMode)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("failed to read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("expected foreign_keys on, got %d", foreignKeys)
	}
}

func TestMigrationManager_ApplyMigrations(t *testing.T) {
	db := openTestDB(t)

	manager := NewMigrationManager(db)
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	for _, table := range []string{"schema_migrations", "sessions", "transcripts"} {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist after migrations", table)
		}
	}

	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("failed to count applied migrations: %v", err)
	}
	if applied != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), applied)
	}
}

func TestMigrationManager_ApplyMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)

	manager := NewMigrationManager(db)
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("first ApplyMigrations failed: %v", err)
	}
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("second ApplyMigrations failed: %v", err)
	}

	// A re-run must not record migrations a second time.
	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("failed to count applied migrations: %v", err)
	}
	if applied != len(migrations) {
		t.Errorf("expected %d applied migrations after re-run, got %d", len(migrations), applied)
	}
}

func TestMigrationManager_TranscriptUniqueness(t *testing.T) {
	db := openTestDB(t)

	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	_, err := db.Exec(
		"INSERT INTO sessions (id, class_id, subject_id, source_language, target_languages, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		"session-1", "class-1", "subject-1", "hi", `["en"]`, "active", time.Now(),
	)
	if err != nil {
		t.Fatalf("failed to insert session: %v", err)
	}

	insert := "INSERT INTO transcripts (id, session_id, sequence, language, original_text, created_at) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := db.Exec(insert, "entry-1", "session-1", 1, "hi", "first", time.Now()); err != nil {
		t.Fatalf("failed to insert transcript: %v", err)
	}

	// A second row for the same (session, sequence) pair must be rejected.
	if _, err := db.Exec(insert, "entry-2", "session-1", 1, "hi", "second", time.Now()); err == nil {
		t.Error("expected unique constraint violation for duplicate sequence")
	}
}
