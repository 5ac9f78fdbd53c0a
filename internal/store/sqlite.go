// Package store persists build checkpoints and recognizer results.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"stele-slicer/internal/labeler"
)

//go:embed schema.sql
var schemaSQL string

// InitDB creates the tables on the given connection.
func InitDB(db *sql.DB) error {
	for _, s := range strings.Split(schemaSQL, ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint marks one completed page.
type Checkpoint struct {
	Stele        string
	Page         int
	PageHash     string
	ParamsDigest string
	Records      int
}

// SQLite holds checkpoints and the label cache in one database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

// NewSQLite wraps an already migrated connection.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// MarkDone records a completed page, replacing any earlier checkpoint.
func (s *SQLite) MarkDone(ctx context.Context, c Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (stele, page, page_hash, params_digest, records) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(stele, page) DO UPDATE SET page_hash = excluded.page_hash,
		 params_digest = excluded.params_digest, records = excluded.records`,
		c.Stele, c.Page, c.PageHash, c.ParamsDigest, c.Records)
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

// Done reports whether a page was completed with the same image and
// parameters.
func (s *SQLite) Done(ctx context.Context, stele string, page int, pageHash, digest string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM checkpoints WHERE stele = ? AND page = ? AND page_hash = ? AND params_digest = ?`,
		stele, page, pageHash, digest).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return true, nil
}

// Reset drops every checkpoint of a stele.
func (s *SQLite) Reset(ctx context.Context, stele string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE stele = ?`, stele)
	return err
}

// Get implements labeler.Cache.
func (s *SQLite) Get(ctx context.Context, key string) (*labeler.Result, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM labels WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var r labeler.Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false, fmt.Errorf("corrupt cached label %s: %w", key, err)
	}
	return &r, true, nil
}

// Put implements labeler.Cache.
func (s *SQLite) Put(ctx context.Context, key string, r *labeler.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO labels (key, result) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET result = excluded.result`,
		key, string(data))
	return err
}
