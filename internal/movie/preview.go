package movie

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
)

// Preview is the per-day answer of the spectrogram/movie lookup. Empty paths
// mean the artifact is not available; the messages say why.
type Preview struct {
	MoviePath    string `json:"movie_path,omitempty"`
	MovieMessage string `json:"movie_message,omitempty"`
	SpecPNGPath  string `json:"spec_png_path,omitempty"`
	SpecMessage  string `json:"spec_message,omitempty"`
}

// KindLister lists indexed files of one kind.
type KindLister interface {
	ListKind(ctx context.Context, kind lwa.Kind, start, end time.Time) ([]lwa.Record, error)
}

// Previewer finds or builds the preview movie and daily spectrogram for a day.
type Previewer struct {
	MoviesDir    string
	MoviesURL    string
	SynopDir     string
	SpecDailyURL string
	Window       time.Duration
	Encoder      Encoder
	Files        KindLister
	Log          *slog.Logger

	group singleflight.Group
}

// Lookup resolves the preview for the day of start. A pre-rendered daily
// movie wins; otherwise a movie is encoded from the level-1.5 synoptic frames
// observed within Window after start.
func (p *Previewer) Lookup(ctx context.Context, start string) (Preview, error) {
	t, err := lwa.ParseTime(start)
	if err != nil {
		return Preview{}, err
	}
	day := truncateDay(t)
	dayLabel := day.Format("2006-01-02")

	daily := lwa.DailyMovieName(day)
	if fileExists(filepath.Join(p.MoviesDir, daily)) {
		return Preview{
			MoviePath:   p.movieURL(daily),
			SpecPNGPath: p.specURL(day),
		}, nil
	}

	if p.Files == nil {
		return Preview{
			MovieMessage: fmt.Sprintf("No pre-rendered movie exists for %s and the file index is unavailable.", dayLabel),
			SpecMessage:  fmt.Sprintf("The spectrogram for %s cannot be located without the file index.", dayLabel),
		}, nil
	}

	window := p.Window
	if window <= 0 {
		window = 6 * time.Hour
	}
	records, err := p.Files.ListKind(ctx, lwa.KindSlowLev15, t, t.Add(window))
	if err != nil {
		return Preview{}, fmt.Errorf("list level-1.5 images: %w", err)
	}
	frames := ExistingFrames(p.SynopDir, lwa.Paths(records))
	if len(frames) == 0 {
		return Preview{
			MovieMessage: fmt.Sprintf("No level-1.5 synoptic images were found for %s.", dayLabel),
			SpecMessage:  fmt.Sprintf("No spectrogram preview is available for %s.", dayLabel),
		}, nil
	}

	frameDay := day
	if ts, err := lwa.ImageObsTime(frames[0]); err == nil {
		frameDay = truncateDay(ts)
	}
	out := Preview{SpecPNGPath: p.specURL(frameDay)}

	name := strings.TrimSuffix(lwa.DailyMovieName(frameDay), ".mp4") + "_sub.mp4"
	_, err, _ = p.group.Do(name, func() (any, error) {
		return nil, p.Encoder.Encode(ctx, frames, filepath.Join(p.MoviesDir, name))
	})
	if err != nil {
		logging.OrDefault(p.Log).Warn("preview movie failed", "day", dayLabel, "frames", len(frames), "err", err)
		out.MovieMessage = fmt.Sprintf("The image movie for %s could not be generated.", dayLabel)
		return out, nil
	}
	out.MoviePath = p.movieURL(name)
	return out, nil
}

func (p *Previewer) movieURL(name string) string {
	return strings.TrimRight(p.MoviesURL, "/") + "/" + name
}

func (p *Previewer) specURL(day time.Time) string {
	return strings.TrimRight(p.SpecDailyURL, "/") + "/" + day.Format("20060102") + ".png"
}

// ExistingFrames maps image files to their synoptic PNGs and keeps the ones on disk.
func ExistingFrames(synopDir string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		png, ok := lwa.SynopPNGPath(synopDir, f)
		if !ok {
			continue
		}
		if fileExists(png) {
			out = append(out, png)
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
