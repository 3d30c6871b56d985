// Package ingest walks the archive disks and keeps the MySQL file index in
// step with them.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/astrogo/fitsio"

	"lwa-query-web/internal/connectors/mysql"
	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
)

// SpanReader returns the observation span a spectrogram file declares.
type SpanReader func(path string) (start, end time.Time, err error)

// Scanner finds archive files of one ingest category inside a time range.
type Scanner struct {
	SpecRoot string
	HDFRoots []string
	ReadSpan SpanReader
	Logger   *slog.Logger
}

// DefaultScanner is the production disk layout.
func DefaultScanner(log *slog.Logger) Scanner {
	return Scanner{
		SpecRoot: "/common/lwa/spec_v2/fits",
		HDFRoots: []string{"/nas7/ovro-lwa-data/hdf"},
		ReadSpan: ReadFITSSpan,
		Logger:   log,
	}
}

// Batch is what Collect found for one category.
type Batch struct {
	Type    lwa.FileType
	Images  []lwa.Record
	Spectra []mysql.SpecRow
}

// Len is the number of files in the batch.
func (b Batch) Len() int {
	return len(b.Images) + len(b.Spectra)
}

// Collect globs candidate files for [start-1d, end+1d] and keeps the ones
// whose observation time falls inside [start, end]. Spectrogram files match
// when their header span overlaps the range.
func (s Scanner) Collect(ctx context.Context, ft lwa.FileType, start, end time.Time) (Batch, error) {
	log := logging.OrDefault(s.Logger)
	from, to := start.AddDate(0, 0, -1), end.AddDate(0, 0, 1)
	batch := Batch{Type: ft}

	if ft == lwa.FileSpec {
		var candidates []string
		for y := from.Year(); y <= to.Year(); y++ {
			m, err := filepath.Glob(filepath.Join(s.SpecRoot, strconv.Itoa(y), "*.fits"))
			if err != nil {
				return batch, err
			}
			candidates = append(candidates, m...)
		}
		sort.Strings(candidates)

		read := s.ReadSpan
		if read == nil {
			read = ReadFITSSpan
		}
		for _, f := range candidates {
			if err := ctx.Err(); err != nil {
				return batch, err
			}
			day, err := lwa.SpecFileDate(f)
			if err != nil || day.Before(truncateDay(from)) || day.After(to) {
				continue
			}
			st, ed, err := read(f)
			if err != nil {
				log.Warn("skipping spectrogram", "path", f, "err", err)
				continue
			}
			if !ed.Before(start) && !st.After(end) {
				batch.Spectra = append(batch.Spectra, mysql.SpecRow{Path: f, StartTime: st, EndTime: ed})
			}
		}
		return batch, nil
	}

	imageType, level, ok := ft.ImageParts()
	if !ok {
		return batch, fmt.Errorf("unsupported file type %q", ft)
	}
	var candidates []string
	for day := truncateDay(from); !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, root := range s.HDFRoots {
			dir := lwa.DayDir(filepath.Join(root, "slow", level), day)
			m, err := filepath.Glob(filepath.Join(dir, "*_"+imageType+"_*.hdf"))
			if err != nil {
				return batch, err
			}
			candidates = append(candidates, m...)
		}
	}
	sort.Strings(candidates)

	lastDay := ""
	for _, f := range candidates {
		ts, err := lwa.ImageObsTime(f)
		if err != nil || ts.Before(start) || ts.After(end) {
			continue
		}
		if d := ts.Format("2006-01-02"); d != lastDay {
			log.Debug("collecting day", "type", ft, "day", d)
			lastDay = d
		}
		batch.Images = append(batch.Images, lwa.Record{Path: f, ObsTime: ts})
	}
	return batch, nil
}

// ReadFITSSpan reads DATE_OBS and DATE_END from the primary header.
func ReadFITSSpan(path string) (time.Time, time.Time, error) {
	r, err := os.Open(path)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("open fits: %w", err)
	}
	defer f.Close()

	hdr := f.HDU(0).Header()
	start, err := headerTime(hdr, "DATE_OBS")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := headerTime(hdr, "DATE_END")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func headerTime(hdr *fitsio.Header, key string) (time.Time, error) {
	card := hdr.Get(key)
	if card == nil {
		return time.Time{}, fmt.Errorf("header %s missing", key)
	}
	raw, ok := card.Value.(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return time.Time{}, fmt.Errorf("header %s is not a timestamp", key)
	}
	return lwa.ParseTime(raw)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
