package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite stores records in a single table keyed by digest.
type SQLite struct {
	path    string
	readDB  *sql.DB
	writeDB *sql.DB
}

func OpenSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	c := &SQLite{path: dbPath, writeDB: writeDB}
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}

	// The read handle is opened after the schema exists so read-only mode
	// never races file creation.
	readDB, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}
	c.readDB = readDB
	return c, nil
}

func (c *SQLite) init() error {
	_, err := c.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			digest    TEXT PRIMARY KEY,
			key       TEXT NOT NULL DEFAULT '',
			stored_at INTEGER,
			record    BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entries_stored_at ON entries(stored_at);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (c *SQLite) Close() error {
	var errs []error
	if c.readDB != nil {
		errs = append(errs, c.readDB.Close())
	}
	if c.writeDB != nil {
		errs = append(errs, c.writeDB.Close())
	}
	return errors.Join(errs...)
}

func (c *SQLite) Load(ctx context.Context, digest string) ([]byte, error) {
	var rec []byte
	err := c.readDB.QueryRowContext(ctx, "SELECT record FROM entries WHERE digest = ?", digest).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", digest, err)
	}
	return rec, nil
}

func (c *SQLite) Save(ctx context.Context, e Entry) error {
	var storedAt sql.NullInt64
	if !e.StoredAt.IsZero() {
		storedAt = sql.NullInt64{Int64: e.StoredAt.Unix(), Valid: true}
	}

	_, err := c.writeDB.ExecContext(ctx, `
		INSERT INTO entries (digest, key, stored_at, record)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET
			key = excluded.key,
			stored_at = excluded.stored_at,
			record = excluded.record
	`, e.Digest, e.Key, storedAt, e.Record)
	if err != nil {
		return fmt.Errorf("saving %s: %w", e.Digest, err)
	}
	return nil
}

func (c *SQLite) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var s Stats
	err := c.readDB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN stored_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN stored_at IS NOT NULL AND stored_at <= ? THEN 1 ELSE 0 END), 0)
		FROM entries
	`, now.Add(-TTL).Unix()).Scan(&s.Entries, &s.Legacy, &s.Expired)
	if err != nil {
		return Stats{}, fmt.Errorf("counting entries: %w", err)
	}

	info, err := os.Stat(c.path)
	if err != nil {
		return Stats{}, fmt.Errorf("stat %s: %w", c.path, err)
	}
	s.Size = info.Size()
	return s, nil
}

func (c *SQLite) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.writeDB.ExecContext(ctx,
		"DELETE FROM entries WHERE stored_at IS NOT NULL AND stored_at <= ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning entries: %w", err)
	}
	return res.RowsAffected()
}
