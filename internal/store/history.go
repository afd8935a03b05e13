package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conneroisu/devlens/internal/errors"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS revisions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	site       TEXT NOT NULL,
	path       TEXT NOT NULL,
	prev_body  TEXT NOT NULL,
	next_body  TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS revisions_site_path ON revisions(site, path, id);
`

// Revision is one recorded data edit.
type Revision struct {
	ID        int64     `json:"id" yaml:"id"`
	Site      string    `json:"site" yaml:"site"`
	Path      string    `json:"path" yaml:"path"`
	Before    string    `json:"before" yaml:"before"`
	After     string    `json:"after" yaml:"after"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// History records data edits in SQLite.
type History struct {
	db  *sql.DB
	now func() time.Time
}

// OpenHistory opens or creates the history database at dsn. Use ":memory:"
// for a throwaway database.
func OpenHistory(dsn string) (*History, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "open history db")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "set busy timeout")
	}
	db.Exec("PRAGMA journal_mode=WAL")

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "init history schema")
	}
	return &History{db: db, now: time.Now}, nil
}

// Record stores one revision.
func (h *History) Record(ctx context.Context, site, path string, before, after []byte) (int64, error) {
	res, err := h.db.ExecContext(ctx,
		`INSERT INTO revisions (site, path, prev_body, next_body, created_at) VALUES (?, ?, ?, ?, ?)`,
		site, path, string(before), string(after), h.now().UnixNano())
	if err != nil {
		return 0, errors.WrapIO(err, errors.ErrCodeInternalError, "record revision")
	}
	return res.LastInsertId()
}

// List returns the newest revisions for path on site, newest first. An empty
// path lists every path of the site.
func (h *History) List(ctx context.Context, site, path string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, site, path, prev_body, next_body, created_at FROM revisions WHERE site = ?`
	args := []interface{}{site}
	if path != "" {
		query += ` AND path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "list revisions")
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var r Revision
		var created int64
		if err := rows.Scan(&r.ID, &r.Site, &r.Path, &r.Before, &r.After, &created); err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "scan revision")
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, fmt.Sprintf("list revisions for %s", path))
	}
	return out, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}
