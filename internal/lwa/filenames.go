package lwa

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	imageStampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{6}Z`)
	dateStampRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// ImageObsTime reads the observation time embedded in an image file name,
// e.g. ovro-lwa-352.lev1_mfs_10s.2025-04-10T120005Z.image_I.hdf.
func ImageObsTime(name string) (time.Time, error) {
	m := imageStampRe.FindString(path.Base(name))
	if m == "" {
		return time.Time{}, fmt.Errorf("%w: no timestamp in %q", ErrBadTime, name)
	}
	return time.ParseInLocation("2006-01-02T150405Z", m, time.UTC)
}

// SpecFileDate reads the calendar date of a spectrogram file name,
// e.g. ovro-lwa.lev1_bmf_256ms_96kHz.2025-04-10.dspec_I.fits.
func SpecFileDate(name string) (time.Time, error) {
	m := dateStampRe.FindString(path.Base(name))
	if m == "" {
		return time.Time{}, fmt.Errorf("%w: no date in %q", ErrBadTime, name)
	}
	return time.ParseInLocation("2006-01-02", m, time.UTC)
}

// SynopPNGPath maps a level-1.5 image file to the synoptic quicklook PNG
// rendered from it.
func SynopPNGPath(synopDir, hdfPath string) (string, bool) {
	name := path.Base(hdfPath)
	if !strings.Contains(name, "T") {
		return "", false
	}
	datePart := strings.Split(name, "T")[0]
	if i := strings.LastIndex(datePart, "."); i >= 0 {
		datePart = datePart[i+1:]
	}
	day, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return "", false
	}
	pngName := strings.Replace(name, ".lev1.5_", ".synop_", 1)
	pngName = strings.TrimSuffix(pngName, ".hdf") + ".png"
	return filepath.Join(synopDir, day.Format("2006"), day.Format("01"), day.Format("02"), pngName), true
}

// DayDir is the YYYY/MM/DD directory below root for day.
func DayDir(root string, day time.Time) string {
	return filepath.Join(root, day.Format("2006"), day.Format("01"), day.Format("02"))
}

// DailyMovieName is the file name of the pre-rendered movie for day.
func DailyMovieName(day time.Time) string {
	return "slow_hdf_movie_" + day.UTC().Format("20060102") + ".mp4"
}
