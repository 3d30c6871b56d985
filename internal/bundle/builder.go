// Package bundle packs a selection of indexed files into a downloadable zip
// archive and keeps track of the archives that are ready to fetch.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"lwa-query-web/internal/connectors/registry"
	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
)

var (
	ErrNoFiles      = errors.New("no files selected")
	ErrTooManyFiles = errors.New("too many files selected")
	ErrNotFound     = errors.New("bundle not found")
	ErrBadName      = errors.New("invalid bundle name")

	// ErrOutsideArchive marks a selected path that no path rule serves.
	ErrOutsideArchive = errors.New("not served by this archive")
)

// FileError reports a selected file that cannot be packed.
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("cannot bundle %s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Registry is the subset of the archive registry the builder needs.
type Registry interface {
	Put(ctx context.Context, e registry.Entry) error
	Get(ctx context.Context, name string) (*registry.Entry, error)
	OlderThan(ctx context.Context, cutoff time.Time) ([]registry.Entry, error)
	Delete(ctx context.Context, name string) (int64, error)
}

// Request describes one bundle-generation call.
type Request struct {
	Kind    lwa.Kind
	Start   string
	End     string
	Cadence string
	Files   []string
}

// Archive is a built bundle.
type Archive struct {
	Name      string    `json:"archive_name"`
	Kind      lwa.Kind  `json:"kind"`
	Files     int       `json:"file_count"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Builder writes archives into Dir and records them in a Registry.
type Builder struct {
	dir      string
	mapper   *lwa.PathMapper
	registry Registry
	maxFiles int
	log      *slog.Logger
	now      func() time.Time
}

func NewBuilder(dir string, mapper *lwa.PathMapper, reg Registry, maxFiles int, log *slog.Logger) (*Builder, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("bundle dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bundle dir: %w", err)
	}
	if maxFiles <= 0 {
		maxFiles = 5000
	}
	return &Builder{
		dir:      dir,
		mapper:   mapper,
		registry: reg,
		maxFiles: maxFiles,
		log:      logging.OrDefault(log),
		now:      time.Now,
	}, nil
}

// Build validates the selection, writes the archive and registers it.
func (b *Builder) Build(ctx context.Context, req Request) (*Archive, error) {
	if _, err := lwa.ParseKind(string(req.Kind)); err != nil {
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}
	if len(req.Files) > b.maxFiles {
		return nil, fmt.Errorf("%w: %d selected, limit is %d", ErrTooManyFiles, len(req.Files), b.maxFiles)
	}

	locals := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		local, err := b.resolve(f)
		if err != nil {
			return nil, err
		}
		locals = append(locals, local)
	}

	created := b.now().UTC()
	name := archiveName(req.Kind, req.Start, created)
	final := filepath.Join(b.dir, name)

	size, err := b.write(ctx, final, locals)
	if err != nil {
		return nil, err
	}

	entry := registry.Entry{
		Name:      name,
		Kind:      string(req.Kind),
		Path:      final,
		Start:     req.Start,
		End:       req.End,
		Cadence:   req.Cadence,
		FileCount: len(locals),
		SizeBytes: size,
		CreatedAt: created,
	}
	if b.registry != nil {
		if err := b.registry.Put(ctx, entry); err != nil {
			_ = os.Remove(final)
			return nil, fmt.Errorf("register bundle: %w", err)
		}
	}

	b.log.Info("bundle ready", "name", name, "kind", req.Kind, "files", len(locals), "size", humanize.Bytes(uint64(size)))
	return &Archive{Name: name, Kind: req.Kind, Files: len(locals), SizeBytes: size, CreatedAt: created}, nil
}

// Open returns the on-disk path of a registered archive.
func (b *Builder) Open(ctx context.Context, name string) (string, error) {
	if !validName(name) {
		return "", ErrBadName
	}
	if b.registry != nil {
		e, err := b.registry.Get(ctx, name)
		if errors.Is(err, registry.ErrNotFound) {
			return "", ErrNotFound
		}
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(e.Path); err != nil {
			return "", ErrNotFound
		}
		return e.Path, nil
	}
	p := filepath.Join(b.dir, name)
	if _, err := os.Stat(p); err != nil {
		return "", ErrNotFound
	}
	return p, nil
}

// Prune deletes archives created more than ttl ago and returns how many went.
func (b *Builder) Prune(ctx context.Context, ttl time.Duration) (int, error) {
	if b.registry == nil || ttl <= 0 {
		return 0, nil
	}
	expired, err := b.registry.OlderThan(ctx, b.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range expired {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.log.Warn("remove expired bundle", "name", e.Name, "err", err)
			continue
		}
		if _, err := b.registry.Delete(ctx, e.Name); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		b.log.Info("pruned bundles", "count", removed, "older_than", humanize.Time(b.now().Add(-ttl)))
	}
	return removed, nil
}

func (b *Builder) resolve(file string) (string, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return "", &FileError{File: file, Err: os.ErrNotExist}
	}
	local := file
	if strings.Contains(file, "://") {
		mapped, ok := b.mapper.ToLocal(file)
		if !ok {
			return "", &FileError{File: file, Err: ErrOutsideArchive}
		}
		local = mapped
	}
	if !filepath.IsAbs(local) || strings.Contains(local, "..") || !b.mapper.Within(local) {
		return "", &FileError{File: file, Err: ErrOutsideArchive}
	}
	local = filepath.Clean(local)
	info, err := os.Stat(local)
	if err != nil {
		return "", &FileError{File: file, Err: os.ErrNotExist}
	}
	if info.IsDir() {
		return "", &FileError{File: file, Err: errors.New("is a directory")}
	}
	return local, nil
}

func (b *Builder) write(ctx context.Context, final string, locals []string) (int64, error) {
	tmp, err := os.CreateTemp(b.dir, ".bundle-*.zip")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	zw := zip.NewWriter(tmp)
	seen := make(map[string]int, len(locals))
	for _, local := range locals {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			_ = tmp.Close()
			return 0, err
		}
		if err := addFile(zw, local, entryName(local, seen)); err != nil {
			_ = zw.Close()
			_ = tmp.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, final); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addFile(zw *zip.Writer, local, name string) error {
	f, err := os.Open(local)
	if err != nil {
		return &FileError{File: local, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// entryName is the base name, suffixed when two selected files share one.
func entryName(local string, seen map[string]int) string {
	base := filepath.Base(local)
	n := seen[base]
	seen[base] = n + 1
	if n == 0 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), n, ext)
}

func archiveName(kind lwa.Kind, start string, created time.Time) string {
	day := created.Format("20060102")
	if t, err := lwa.ParseTime(start); err == nil {
		day = t.Format("20060102")
	}
	return fmt.Sprintf("%s_%s_%s.zip", kind, day, uuid.NewString()[:8])
}

func validName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".zip") && !strings.ContainsAny(name, `/\`)
}
