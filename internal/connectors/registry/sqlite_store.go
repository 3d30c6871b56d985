package registry

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no archive with the requested name is registered.
var ErrNotFound = errors.New("archive not registered")

// Entry is one ready-to-download archive.
type Entry struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Path      string    `json:"-"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Cadence   string    `json:"cadence,omitempty"`
	FileCount int       `json:"file_count"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps the archive registry in SQLite.
type Store struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ready_bundles (
  name TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  path TEXT NOT NULL,
  range_start TEXT NOT NULL DEFAULT '',
  range_end TEXT NOT NULL DEFAULT '',
  cadence TEXT NOT NULL DEFAULT '',
  file_count INTEGER NOT NULL DEFAULT 0,
  size_bytes INTEGER NOT NULL DEFAULT 0,
  created_unix INTEGER NOT NULL
);
`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_rb_created ON ready_bundles(created_unix);`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put registers an archive, replacing any previous entry with the same name.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("archive name is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ready_bundles (name, kind, path, range_start, range_end, cadence, file_count, size_bytes, created_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  kind = excluded.kind,
  path = excluded.path,
  range_start = excluded.range_start,
  range_end = excluded.range_end,
  cadence = excluded.cadence,
  file_count = excluded.file_count,
  size_bytes = excluded.size_bytes,
  created_unix = excluded.created_unix;
`, e.Name, e.Kind, e.Path, e.Start, e.End, e.Cadence, e.FileCount, e.SizeBytes, e.CreatedAt.Unix())
	return err
}

func (s *Store) Get(ctx context.Context, name string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT name, kind, path, range_start, range_end, cadence, file_count, size_bytes, created_unix
FROM ready_bundles
WHERE name = ?;
`, strings.TrimSpace(name))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List returns the newest archives first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT name, kind, path, range_start, range_end, cadence, file_count, size_bytes, created_unix
FROM ready_bundles
ORDER BY created_unix DESC, name ASC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// OlderThan returns archives created before cutoff.
func (s *Store) OlderThan(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, kind, path, range_start, range_end, cadence, file_count, size_bytes, created_unix
FROM ready_bundles
WHERE created_unix < ?
ORDER BY created_unix ASC;
`, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ready_bundles WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e       Entry
		created int64
	)
	if err := row.Scan(&e.Name, &e.Kind, &e.Path, &e.Start, &e.End, &e.Cadence, &e.FileCount, &e.SizeBytes, &created); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(created, 0).UTC()
	return &e, nil
}
