// Package index is the durable SQLite-backed metadata store: the Files and
// Links tables of the data model, and every query the upload engine,
// download pipeline, reconciler and request surface need against them.
//
// The index is the authoritative source of metadata; the backing store
// (internal/store) is the authoritative source of bytes. internal/sync
// reconciles the two at startup.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite connection pool backing the Files and Links
// tables. All mutations happen through a single *sql.DB, giving read-your-
// writes for the single writer this process is (§4.B — "no cross-
// transaction guarantees are required").
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	size INTEGER NOT NULL DEFAULT 0,
	download_count INTEGER NOT NULL DEFAULT 0,
	last_downloaded_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	access INTEGER NOT NULL DEFAULT 0,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	total_chunks INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_path ON files (path);

CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	uploaded_file TEXT,
	uploaded_at TEXT,
	created_at TEXT NOT NULL
);
`

// NewStore opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open index %q: %w", path, err)
	}
	// The mattn/go-sqlite3 driver does not support concurrent writers on
	// a single *sql.DB; filedrop is a single-writer process, so one
	// connection avoids SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// exec is a small helper mirroring the teacher's habit of keeping query
// helpers terse; filedrop has no multi-statement transactions today, but
// every mutation goes through ExecContext/QueryRowContext directly on s.db
// so that a future transactional need has one obvious place to add it.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
