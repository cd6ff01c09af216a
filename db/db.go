// Package db manages the SQLite database connection and schema migrations.
// it exposes a Database struct that wraps *sql.DB and is passed via dependency
// injection to any layer that needs database access.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	// the underscore import registers the go-sqlite3 driver with database/sql.
	// without this import, sql.Open("sqlite3", ...) returns "unknown driver".
	// the package is never referenced directly; only its init() side effect is needed.
	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the standard library connection pool behind an intentional
// surface: only the methods defined on this struct are exposed to callers.
// if the underlying driver changes (eg Postgres), only this package changes.
type Database struct {
	connection *sql.DB
	logger     *slog.Logger
}

/*
schema is the SQL DDL for the two tables the core owns.

deployments.subdomain carries a partial unique index rather than a plain
UNIQUE column: many rows hold NULL (every FAILED or superseded deployment)
and only non-NULL values must be unique. the orchestrator clears the previous
holder before marking a new deployment DEPLOYED, so under normal operation
the index never fires; it exists as a backstop for the invariant.

IF NOT EXISTS makes the migration safe to run on every startup. a minimal
strategy appropriate for a single-node system; a versioned migration library
would replace this if the schema starts evolving.
*/
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    name       TEXT NOT NULL,
    slug       TEXT UNIQUE NOT NULL,
    repo_url   TEXT NOT NULL,
    framework  TEXT NOT NULL,
    branch     TEXT NOT NULL DEFAULT 'main',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deployments (
    id             TEXT PRIMARY KEY,
    project_id     TEXT NOT NULL REFERENCES projects(id),
    status         TEXT NOT NULL,
    build_step     TEXT,
    container_port INTEGER,
    subdomain      TEXT,
    logs           TEXT NOT NULL DEFAULT '',
    started_at     DATETIME,
    completed_at   DATETIME,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_deployments_subdomain
    ON deployments(subdomain) WHERE subdomain IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_deployments_project
    ON deployments(project_id, created_at DESC);
`

// migrate runs the schema DDL against the database. the schema is a constant
// in this file because it is tightly coupled to the store's queries; no
// caller needs to know or manage it.
func (database *Database) migrate() error {
	_, err := database.connection.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema migration: %w", err)
	}
	return nil
}

/*
OpenDatabase opens the SQLite database at the given file path, runs the
schema migration, and returns a ready-to-use *Database.
The directory for the database file is created if it does not exist,
so the caller does not need to pre-create the path on disk.
*/
func OpenDatabase(dbPath string, logger *slog.Logger) (*Database, error) {
	dir := filepath.Dir(dbPath)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
	}

	// sql.Open does not actually open a connection. it only validates the
	// arguments and prepares the pool; the real connection is established on
	// the first query, which here is the migration right below.
	dbConnection, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %q: %w", dbPath, err)
	}

	// SQLite does not support concurrent writes from multiple connections.
	// setting MaxOpenConns to 1 prevents "database is locked" errors that occur
	// when the connection pool opens multiple connections and they write simultaneously.
	dbConnection.SetMaxOpenConns(1)

	database := &Database{
		connection: dbConnection,
		logger:     logger,
	}

	// fail fast: the app is useless without a working database, so a failed
	// migration is returned to the caller (main) which logs it and exits.
	err = database.migrate()
	if err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	logger.Info("database opened and schema migrated", "path", dbPath)
	return database, nil
}

// CloseDatabase releases the database connection pool.
// deferred in main immediately after OpenDatabase returns successfully.
func (database *Database) CloseDatabase() error {
	return database.connection.Close()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
// this allows the scan helpers to work with both QueryRow (single row)
// and Query (multiple rows) without duplicating the scan logic.
type scanner interface {
	Scan(dest ...any) error
}
