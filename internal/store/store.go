// Package store provides SQLite persistence for the clip pipeline:
// videos, transcripts, clip candidates, score records, export jobs and
// the append-only processing log. Schema is managed through embedded
// migrations. All stores share one *sql.DB and are safe for use from
// multiple videos' pipelines concurrently.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationsFS returns the embedded migrations filesystem rooted at
// the migrations directory.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		// The subtree is compiled in; a failure here is a build defect.
		panic(err)
	}
	return sub
}

// DB wraps the shared database handle.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies connection
// pragmas. It does not run migrations; callers do that explicitly so
// the migrate CLI can manage schema separately from normal startup.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers unblocked while a pipeline writes; the busy
	// timeout plus retryOnBusy covers writer contention across videos.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	return &DB{db}, nil
}

// retryOnBusy retries fn on transient SQLITE_BUSY / database-locked
// errors with a short backoff. Non-busy errors return immediately.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 5
	backoff := 10 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
