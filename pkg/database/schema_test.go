package database

import (
	"database/sql"
	"strings"
	"testing"
)

func migratedTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	return db
}

func TestSchemaValidator_ValidateTablesExist(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("ValidateTablesExist should fail on an empty database")
	}

	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if err := validator.ValidateTablesExist(); err != nil {
		t.Errorf("ValidateTablesExist failed on migrated database: %v", err)
	}
}

func TestSchemaValidator_ValidateTableStructure(t *testing.T) {
	db := migratedTestDB(t)

	if err := NewSchemaValidator(db).ValidateTableStructure(); err != nil {
		t.Errorf("ValidateTableStructure failed on migrated database: %v", err)
	}
}

func TestSchemaValidator_MissingColumn(t *testing.T) {
	db := openTestDB(t)

	// A sessions table missing the status column should be flagged.
	_, err := db.Exec(`
		CREATE TABLE sessions (
			id               TEXT PRIMARY KEY,
			class_id         TEXT NOT NULL,
			subject_id       TEXT NOT NULL,
			source_language  TEXT NOT NULL,
			target_languages TEXT NOT NULL,
			started_at       DATETIME NOT NULL,
			ended_at         DATETIME
		)
	`)
	if err != nil {
		t.Fatalf("failed to create degraded table: %v", err)
	}

	err = NewSchemaValidator(db).ValidateTableStructure()
	if err == nil {
		t.Fatal("expected validation error for missing column")
	}
	if !strings.Contains(err.Error(), "status") {
		t.Errorf("expected error to name the missing column, got: %v", err)
	}
}

func TestSchemaValidator_WrongColumnType(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`
		CREATE TABLE sessions (
			id               TEXT PRIMARY KEY,
			class_id         TEXT NOT NULL,
			subject_id       TEXT NOT NULL,
			source_language  TEXT NOT NULL,
			target_languages TEXT NOT NULL,
			status           TEXT NOT NULL,
			started_at       INTEGER NOT NULL,
			ended_at         DATETIME
		)
	`)
	if err != nil {
		t.Fatalf("failed to create degraded table: %v", err)
	}

	if err := NewSchemaValidator(db).ValidateTableStructure(); err == nil {
		t.Error("expected validation error for wrong column type")
	}
}

func TestSchemaValidator_ValidateIndexes(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	if err := validator.ValidateIndexes(); err == nil {
		t.Error("ValidateIndexes should fail on an empty database")
	}

	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if err := validator.ValidateIndexes(); err != nil {
		t.Errorf("ValidateIndexes failed on migrated database: %v", err)
	}
}
