package lwa

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a file category name is not recognised.
var ErrUnknownKind = errors.New("unknown file kind")

// Kind names one of the three file categories a query returns.
type Kind string

const (
	KindSpecFITS  Kind = "spec_fits"
	KindSlowLev1  Kind = "slow_lev1"
	KindSlowLev15 Kind = "slow_lev15"
)

// Kinds returns all file categories in display order.
func Kinds() []Kind {
	return []Kind{KindSpecFITS, KindSlowLev1, KindSlowLev15}
}

// ParseKind validates a kind name as sent by the page.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.TrimSpace(raw))
	switch k {
	case KindSpecFITS, KindSlowLev1, KindSlowLev15:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// ListID is the element id of the list widget that shows this kind.
func (k Kind) ListID() string {
	switch k {
	case KindSpecFITS:
		return "spec-list"
	case KindSlowLev1:
		return "image-lev1-list"
	default:
		return "image-lev15-list"
	}
}

// PlotLabel is the category label used on the availability plot.
func (k Kind) PlotLabel() string {
	switch k {
	case KindSpecFITS:
		return "spec_fits"
	case KindSlowLev1:
		return "image_lev1"
	default:
		return "image_lev15"
	}
}

// SupportsMovie reports whether a frame movie can be built from files of this kind.
func (k Kind) SupportsMovie() bool {
	return k == KindSlowLev1 || k == KindSlowLev15
}

// ImageType selects which family of image tables backs the image kinds.
type ImageType string

const (
	ImageMFS ImageType = "mfs"
	ImageFCH ImageType = "fch"
)

// ParseImageType validates an image type name; empty means mfs.
func ParseImageType(raw string) (ImageType, error) {
	switch t := ImageType(strings.ToLower(strings.TrimSpace(raw))); t {
	case "":
		return ImageMFS, nil
	case ImageMFS, ImageFCH:
		return t, nil
	}
	return "", fmt.Errorf("unsupported image type %q", raw)
}

// SpecTable holds spectrogram FITS rows (file_path, start_time, end_time).
const SpecTable = "lwa_spec_fits_files"

// Tables maps each kind to the MySQL table that indexes it for the given image type.
func Tables(t ImageType) map[Kind]string {
	return map[Kind]string{
		KindSpecFITS:  SpecTable,
		KindSlowLev1:  fmt.Sprintf("lwa_slow_%s_lev1_hdf_files", t),
		KindSlowLev15: fmt.Sprintf("lwa_slow_%s_lev15_hdf_files", t),
	}
}

// FileType is an ingest category: the spectrogram or one image type/level pair.
type FileType string

const (
	FileSpec     FileType = "spec"
	FileMFSLev1  FileType = "mfs_lev1"
	FileMFSLev15 FileType = "mfs_lev15"
	FileFCHLev1  FileType = "fch_lev1"
	FileFCHLev15 FileType = "fch_lev15"
)

// FileTypes returns every ingest category.
func FileTypes() []FileType {
	return []FileType{FileSpec, FileMFSLev1, FileMFSLev15, FileFCHLev1, FileFCHLev15}
}

// ParseFileType validates an ingest category name.
func ParseFileType(raw string) (FileType, error) {
	ft := FileType(strings.TrimSpace(raw))
	for _, known := range FileTypes() {
		if ft == known {
			return ft, nil
		}
	}
	return "", fmt.Errorf("unsupported file type %q", raw)
}

// Table is the MySQL table holding rows of this ingest category.
func (f FileType) Table() string {
	if f == FileSpec {
		return SpecTable
	}
	return fmt.Sprintf("lwa_slow_%s_hdf_files", f)
}

// TimeColumn is the column range deletes filter on.
func (f FileType) TimeColumn() string {
	if f == FileSpec {
		return "end_time"
	}
	return "obs_time"
}

// ImageParts splits an image category into its image type and level directory.
func (f FileType) ImageParts() (imageType string, level string, ok bool) {
	if f == FileSpec {
		return "", "", false
	}
	parts := strings.SplitN(string(f), "_", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
