package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ServiceStats contains lightweight DB health and index volume counters.
type ServiceStats struct {
	PingMS        int64            `json:"ping_ms"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	ImageType     string           `json:"image_type"`
	Rows          map[string]int64 `json:"rows"`
}

// ServiceStats returns MySQL health and per-table row counts of the active tables.
func (s *Store) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}

	out := &ServiceStats{
		PingMS:    time.Since(start).Milliseconds(),
		ImageType: string(s.imageType),
		Rows:      make(map[string]int64, len(s.tables)),
	}

	var statusName string
	var statusValue sql.NullString
	if err := s.db.QueryRowContext(ctx, `SHOW GLOBAL STATUS LIKE 'Uptime';`).Scan(&statusName, &statusValue); err == nil && statusValue.Valid {
		if v, err := time.ParseDuration(statusValue.String + "s"); err == nil {
			out.UptimeSeconds = int64(v.Seconds())
		}
	}

	for kind, table := range s.tables {
		var n int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s;", table)).Scan(&n); err != nil {
			return nil, err
		}
		out.Rows[string(kind)] = n
	}
	return out, nil
}
