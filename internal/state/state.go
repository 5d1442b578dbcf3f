// Package state persists runtime listener state in SQLite: per-session
// notification preferences and the registry of downloaded attachments
// awaiting cleanup.
//
// Pause state is deliberately NOT stored here. Pausing is a transient
// safety switch and must reset when the process restarts; only the
// notification preference is meant to outlive a restart.
package state

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"log"
	"sync"
	"time"

	// Pure-Go SQLite driver. No CGO, which keeps cross-compilation and
	// test runs simple.
	_ "modernc.org/sqlite"

	"github.com/telemux/telemux/internal/errors"
)

// currentSchemaVersion is the database schema version. Increment when
// making schema changes and add migration logic.
const currentSchemaVersion = 1

// Store is the SQLite-backed runtime state store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the state database at the given path and applies
// pending migrations. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(errors.CodeStateOpenFailed, fmt.Sprintf("open state database %s", path), err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.CodeStateOpenFailed, fmt.Sprintf("ping state database %s", path), err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const versionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(versionTable); err != nil {
		return errors.Wrap(errors.CodeStateOpenFailed, "create schema_version table", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return errors.Wrap(errors.CodeStateOpenFailed, "check schema version", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return err
		}
	}
	return nil
}

// migrateToV1 creates the initial schema.
func (s *Store) migrateToV1() error {
	log.Printf("state: applying migration to schema version 1")

	const schema = `
		CREATE TABLE IF NOT EXISTS notify_settings (
			session TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS attachments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			path TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_attachments_session ON attachments(session);
		CREATE INDEX IF NOT EXISTS idx_attachments_created ON attachments(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(errors.CodeStateOpenFailed, "create v1 schema", err)
	}

	if _, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		1, time.Now().Format(time.RFC3339),
	); err != nil {
		return errors.Wrap(errors.CodeStateOpenFailed, "record migration", err)
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, errors.Wrap(errors.CodeStateQueryFailed, "get schema version", err)
	}
	return version, nil
}

// NotifyEnabled reports whether idle notifications are enabled for the
// session. Sessions with no stored preference default to enabled.
func (s *Store) NotifyEnabled(session string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var enabled int
	err := s.db.QueryRow("SELECT enabled FROM notify_settings WHERE session = ?", session).Scan(&enabled)
	if stderrors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return true, errors.Wrap(errors.CodeStateQueryFailed, fmt.Sprintf("read notify setting for %s", session), err)
	}
	return enabled != 0, nil
}

// SetNotifyEnabled stores the notification preference for a session.
func (s *Store) SetNotifyEnabled(session string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val := 0
	if enabled {
		val = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO notify_settings (session, enabled, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		session, val, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(errors.CodeStateQueryFailed, fmt.Sprintf("store notify setting for %s", session), err)
	}
	return nil
}

// RecordAttachment registers a downloaded file so it can be swept later.
func (s *Store) RecordAttachment(session, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Unix nanoseconds: comparable in SQL without timestamp parsing.
	_, err := s.db.Exec(
		"INSERT INTO attachments (session, path, created_at) VALUES (?, ?, ?)",
		session, path, time.Now().UnixNano(),
	)
	if err != nil {
		return errors.Wrap(errors.CodeStateQueryFailed, fmt.Sprintf("record attachment for %s", session), err)
	}
	return nil
}

// AttachmentsFor returns the registered attachment paths for a session,
// oldest first.
func (s *Store) AttachmentsFor(session string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT path FROM attachments WHERE session = ? ORDER BY id", session)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStateQueryFailed, fmt.Sprintf("list attachments for %s", session), err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(errors.CodeStateQueryFailed, "scan attachment row", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeStateQueryFailed, "read attachment rows", err)
	}
	return paths, nil
}

// SweepAttachments removes registry entries older than the cutoff and
// returns their paths. The caller is responsible for deleting the files;
// the registry is updated first so a crash between the two leaves only
// orphaned files, never dangling rows.
func (s *Store) SweepAttachments(olderThan time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UnixNano()

	rows, err := s.db.Query("SELECT id, path FROM attachments WHERE created_at < ?", cutoff)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStateQueryFailed, "list expired attachments", err)
	}

	var ids []int64
	var paths []string
	for rows.Next() {
		var id int64
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			rows.Close()
			return nil, errors.Wrap(errors.CodeStateQueryFailed, "scan expired attachment", err)
		}
		ids = append(ids, id)
		paths = append(paths, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeStateQueryFailed, "read expired attachments", err)
	}

	for _, id := range ids {
		if _, err := s.db.Exec("DELETE FROM attachments WHERE id = ?", id); err != nil {
			return paths, errors.Wrap(errors.CodeStateQueryFailed, "delete attachment row", err)
		}
	}

	if len(paths) > 0 {
		log.Printf("state: swept %d expired attachments", len(paths))
	}
	return paths, nil
}
