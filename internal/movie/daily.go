package movie

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
)

// Daily window: noon of the day through 03:00 the next morning.
const (
	windowStart = 12 * time.Hour
	windowEnd   = 27 * time.Hour
)

// DailyFrames lists the synoptic PNGs of day that fall inside the daily window.
func DailyFrames(synopDir string, day time.Time) ([]string, error) {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	from, to := day.Add(windowStart), day.Add(windowEnd)

	var frames []string
	for _, d := range []time.Time{day, day.AddDate(0, 0, 1)} {
		matches, err := filepath.Glob(filepath.Join(lwa.DayDir(synopDir, d), "*.png"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			ts, err := lwa.ImageObsTime(m)
			if err != nil {
				continue
			}
			if !ts.Before(from) && !ts.After(to) {
				frames = append(frames, m)
			}
		}
	}
	sort.Strings(frames)
	return frames, nil
}

// Daily generates the pre-rendered per-day movies.
type Daily struct {
	SynopDir string
	OutDir   string
	Encoder  Encoder
	Parallel int
	Log      *slog.Logger
}

// Generate renders the movie for one day and returns its path.
func (d Daily) Generate(ctx context.Context, day time.Time) (string, error) {
	frames, err := DailyFrames(d.SynopDir, day)
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", ErrNoFrames
	}
	out := filepath.Join(d.OutDir, lwa.DailyMovieName(day))
	if err := d.Encoder.Encode(ctx, frames, out); err != nil {
		return "", err
	}
	logging.OrDefault(d.Log).Info("daily movie written", "day", day.Format("2006-01-02"), "frames", len(frames), "path", out)
	return out, nil
}

// GenerateRange renders every day in [from, to]. Days without frames or with
// a failed encode map to "".
func (d Daily) GenerateRange(ctx context.Context, from, to time.Time) (map[string]string, error) {
	log := logging.OrDefault(d.Log)
	if err := os.MkdirAll(d.OutDir, 0o755); err != nil {
		return nil, err
	}
	limit := d.Parallel
	if limit <= 0 {
		limit = 2
	}

	var (
		mu      sync.Mutex
		results = make(map[string]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for day := truncateDay(from); !day.After(truncateDay(to)); day = day.AddDate(0, 0, 1) {
		day := day
		g.Go(func() error {
			key := day.Format("2006-01-02")
			path, err := d.Generate(gctx, day)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if errors.Is(err, ErrNoFrames) {
					log.Info("no frames in daily window", "day", key)
				} else {
					log.Warn("daily movie failed", "day", key, "err", strings.TrimSpace(err.Error()))
				}
				path = ""
			}
			mu.Lock()
			results[key] = path
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
