package mysql

import (
	"context"
	"fmt"
	"time"

	"lwa-query-web/internal/lwa"
)

// ListFiles returns every indexed file of each kind observed within
// [start, end], thinned to the requested cadence. Spectrogram files cover a
// whole day and match when their span overlaps the range.
func (s *Store) ListFiles(ctx context.Context, start, end time.Time, cadence time.Duration) (lwa.FileLists, error) {
	out := make(lwa.FileLists, 3)
	for _, kind := range lwa.Kinds() {
		records, err := s.listKind(ctx, kind, start, end)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		out[kind] = lwa.Decimate(records, cadence)
	}
	return out, nil
}

// ListKind returns the files of one kind within [start, end].
func (s *Store) ListKind(ctx context.Context, kind lwa.Kind, start, end time.Time) ([]lwa.Record, error) {
	return s.listKind(ctx, kind, start, end)
}

func (s *Store) listKind(ctx context.Context, kind lwa.Kind, start, end time.Time) ([]lwa.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, listQuery(kind, s.tables[kind]), start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]lwa.Record, 0, 64)
	for rows.Next() {
		var r lwa.Record
		if err := rows.Scan(&r.Path, &r.ObsTime); err != nil {
			return nil, err
		}
		r.ObsTime = r.ObsTime.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func listQuery(kind lwa.Kind, table string) string {
	if kind == lwa.KindSpecFITS {
		return fmt.Sprintf(`
SELECT file_path, start_time
FROM %s
WHERE end_time >= ? AND start_time <= ?
ORDER BY start_time;
`, table)
	}
	return fmt.Sprintf(`
SELECT file_path, obs_time
FROM %s
WHERE obs_time BETWEEN ? AND ?
ORDER BY obs_time;
`, table)
}
