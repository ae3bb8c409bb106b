package database

import (
	"database/sql"
	"fmt"
)

// Migration represents one schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are embedded in the binary and applied in order. Versions are
// never reused or edited once shipped; schema changes get a new entry.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "create sessions table",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id               TEXT PRIMARY KEY,
				class_id         TEXT NOT NULL,
				subject_id       TEXT NOT NULL,
				source_language  TEXT NOT NULL,
				target_languages TEXT NOT NULL,
				status           TEXT NOT NULL CHECK (status IN ('active', 'paused', 'ended')),
				started_at       DATETIME NOT NULL,
				ended_at         DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
		`,
	},
	{
		Version:     "002",
		Description: "create transcripts table",
		SQL: `
			CREATE TABLE IF NOT EXISTS transcripts (
				id            TEXT PRIMARY KEY,
				session_id    TEXT NOT NULL REFERENCES sessions(id),
				sequence      INTEGER NOT NULL,
				language      TEXT NOT NULL,
				original_text TEXT NOT NULL,
				translations  TEXT NOT NULL DEFAULT '{}',
				confidence    REAL,
				created_at    DATETIME NOT NULL,
				UNIQUE(session_id, sequence)
			);
			CREATE INDEX IF NOT EXISTS idx_transcripts_session_seq ON transcripts(session_id, sequence);
		`,
	},
}

// MigrationManager applies pending schema migrations.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order, each in
// its own transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}
	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) getAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}
	return tx.Commit()
}
