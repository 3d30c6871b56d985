package mysql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lwa-query-web/internal/lwa"
)

const insertBatchSize = 1000

// SpecRow is one spectrogram FITS file and the span its header declares.
type SpecRow struct {
	Path      string
	StartTime time.Time
	EndTime   time.Time
}

// EnsureSchema creates the index tables that do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	stmts := []string{`
CREATE TABLE IF NOT EXISTS lwa_spec_fits_files (
  id INT AUTO_INCREMENT PRIMARY KEY,
  file_path VARCHAR(1024) NOT NULL,
  start_time DATETIME NOT NULL,
  end_time DATETIME NOT NULL,
  UNIQUE KEY uq_file_path (file_path(255)),
  INDEX idx_start_time (start_time),
  INDEX idx_end_time (end_time)
);`}
	for _, ft := range lwa.FileTypes() {
		if ft == lwa.FileSpec {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id INT NOT NULL AUTO_INCREMENT,
  file_path VARCHAR(1024) NOT NULL,
  obs_time DATETIME NOT NULL,
  UNIQUE KEY uq_file_path (file_path(255), obs_time),
  PRIMARY KEY (id, obs_time),
  INDEX idx_obs_time (obs_time)
);`, ft.Table()))
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertImages adds image rows to the table of ft, skipping paths already
// present. It returns the number of rows actually inserted.
func (s *Store) InsertImages(ctx context.Context, ft lwa.FileType, rows []lwa.Record) (int64, error) {
	if ft == lwa.FileSpec {
		return 0, fmt.Errorf("insert images: %s is not an image file type", ft)
	}
	var total int64
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		args := make([]any, 0, 2*(end-start))
		for _, r := range rows[start:end] {
			args = append(args, r.Path, r.ObsTime.UTC())
		}
		q := fmt.Sprintf("INSERT IGNORE INTO %s (file_path, obs_time) VALUES %s", ft.Table(), placeholders(end-start, 2))
		n, err := s.execBatch(ctx, q, args)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// InsertSpectra adds spectrogram rows, skipping paths already present.
func (s *Store) InsertSpectra(ctx context.Context, rows []SpecRow) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		args := make([]any, 0, 3*(end-start))
		for _, r := range rows[start:end] {
			args = append(args, r.Path, r.StartTime.UTC(), r.EndTime.UTC())
		}
		q := fmt.Sprintf("INSERT IGNORE INTO %s (file_path, start_time, end_time) VALUES %s", lwa.SpecTable, placeholders(end-start, 3))
		n, err := s.execBatch(ctx, q, args)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DeleteRange removes rows of ft whose time column falls within [start, end].
func (s *Store) DeleteRange(ctx context.Context, ft lwa.FileType, start, end time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	q := fmt.Sprintf("DELETE FROM %s WHERE %s BETWEEN ? AND ?", ft.Table(), ft.TimeColumn())
	res, err := s.db.ExecContext(ctx, q, start.UTC(), end.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) execBatch(ctx context.Context, q string, args []any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func placeholders(rows, cols int) string {
	one := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = one
	}
	return strings.Join(parts, ", ")
}
