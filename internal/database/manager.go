package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "lingocast/pkg/database"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

// Manager implements the Store interface over SQLite. All writes funnel
// through a single goroutine (SQLite tolerates many readers under WAL but
// exactly one writer); reads go straight to the pool.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies migrations and starts the write
// loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateSession persists a new session record.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		targetsJSON, err := json.Marshal(session.TargetLanguages)
		if err != nil {
			return fmt.Errorf("failed to marshal target languages: %w", err)
		}

		query := `
			INSERT INTO sessions (id, class_id, subject_id, source_language, target_languages, status, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			session.ID,
			session.ClassID,
			session.SubjectID,
			session.SourceLanguage,
			string(targetsJSON),
			session.Status,
			session.StartedAt,
			session.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session record by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	query := `
		SELECT id, class_id, subject_id, source_language, target_languages, status, started_at, ended_at
		FROM sessions WHERE id = ?
	`
	row := m.db.QueryRowContext(ctx, query, sessionID)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// UpdateSession updates a session's status and end time.
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?`
		result, err := db.ExecContext(ctx, query, session.Status, session.EndedAt, session.ID)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// ListActiveSessions returns all sessions not yet ended.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	query := `
		SELECT id, class_id, subject_id, source_language, target_languages, status, started_at, ended_at
		FROM sessions WHERE status != 'ended' ORDER BY started_at
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// StoreTranscript persists one transcript entry. Idempotent by
// (session_id, sequence): replays of the same flush are ignored.
func (m *Manager) StoreTranscript(ctx context.Context, entry *types.TranscriptEntry) error {
	return m.executeWrite(func(db *sql.DB) error {
		translationsJSON, err := json.Marshal(entry.Translations)
		if err != nil {
			return fmt.Errorf("failed to marshal translations: %w", err)
		}

		query := `
			INSERT OR IGNORE INTO transcripts (id, session_id, sequence, language, original_text, translations, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			entry.ID,
			entry.SessionID,
			entry.Sequence,
			entry.Language,
			entry.OriginalText,
			string(translationsJSON),
			entry.Confidence,
			entry.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transcript entry: %w", err)
		}
		return nil
	})
}

// GetSessionTranscripts returns persisted entries for a session in
// sequence order.
func (m *Manager) GetSessionTranscripts(ctx context.Context, sessionID string) ([]*types.TranscriptEntry, error) {
	query := `
		SELECT id, session_id, sequence, language, original_text, translations, confidence, created_at
		FROM transcripts WHERE session_id = ? ORDER BY sequence
	`
	rows, err := m.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session transcripts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.TranscriptEntry
	for rows.Next() {
		var entry types.TranscriptEntry
		var translationsJSON string
		var confidence sql.NullFloat64

		err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.Sequence,
			&entry.Language,
			&entry.OriginalText,
			&translationsJSON,
			&confidence,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcript entry: %w", err)
		}
		if err := json.Unmarshal([]byte(translationsJSON), &entry.Translations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal translations: %w", err)
		}
		if confidence.Valid {
			entry.Confidence = confidence.Float64
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// HealthCheck verifies database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	return m.db.PingContext(ctx)
}

// Close shuts down the write loop and the connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

// GetDB exposes the underlying handle for schema validation tooling.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var targetsJSON string
	var endedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.ClassID,
		&session.SubjectID,
		&session.SourceLanguage,
		&targetsJSON,
		&session.Status,
		&session.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(targetsJSON), &session.TargetLanguages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target languages: %w", err)
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}
