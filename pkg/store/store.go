// Package store persists sampled repositories and files to SQLite.
// Inserts are idempotent: a file is identified by its (path, repo_id)
// pair, and re-inserting a known identity is a no-op, which makes
// resumed runs safe to replay over existing data.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS repo (
	repo_id     INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	full_name   TEXT NOT NULL,
	description TEXT,
	url         TEXT NOT NULL,
	fork        INTEGER NOT NULL,
	owner_id    INTEGER NOT NULL,
	owner_login TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file (
	file_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL,
	path    TEXT NOT NULL,
	size    INTEGER NOT NULL,
	sha     TEXT NOT NULL,
	content TEXT NOT NULL,
	repo_id INTEGER NOT NULL REFERENCES repo(repo_id),
	UNIQUE (path, repo_id)
);

CREATE INDEX IF NOT EXISTS idx_file_repo ON file(repo_id);
`

// RepoRecord is a repository row.
type RepoRecord struct {
	ID          int64
	Name        string
	FullName    string
	Description *string
	URL         string
	Fork        bool
	OwnerID     int64
	OwnerLogin  string
}

// FileRecord is a file row. Content is the decoded file text.
type FileRecord struct {
	Name    string
	Path    string
	Size    int64
	SHA     string
	Content string
	RepoID  int64
}

// Store wraps the SQLite results database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the results database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// UpsertRepository inserts the repository if its ID is not yet known.
func (s *Store) UpsertRepository(ctx context.Context, r RepoRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO repo
			(repo_id, name, full_name, description, url, fork, owner_id, owner_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.FullName, r.Description, r.URL, r.Fork, r.OwnerID, r.OwnerLogin,
	)
	if err != nil {
		return fmt.Errorf("failed to insert repository %s: %w", r.FullName, err)
	}
	return nil
}

// InsertFile inserts the file if its (path, repo_id) identity is not
// yet known.
func (s *Store) InsertFile(ctx context.Context, f FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO file
			(name, path, size, sha, content, repo_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.Name, f.Path, f.Size, f.SHA, f.Content, f.RepoID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file %s: %w", f.Path, err)
	}
	return nil
}

// ContainsFile reports whether a file with the given identity is
// already stored.
func (s *Store) ContainsFile(ctx context.Context, path string, repoID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM file WHERE path = ? AND repo_id = ?`, path, repoID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query file %s: %w", path, err)
	}
	return true, nil
}

// FileCount returns the number of stored files.
func (s *Store) FileCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

// RepoCount returns the number of stored repositories.
func (s *Store) RepoCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM repo`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count repositories: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
