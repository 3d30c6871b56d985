package bundle

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwa-query-web/internal/connectors/registry"
	"lwa-query-web/internal/lwa"
)

type fixture struct {
	builder *Builder
	reg     *registry.Store
	src     string
	out     string
}

func newFixture(t *testing.T, maxFiles int) fixture {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "data")
	out := filepath.Join(root, "bundles")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "one.hdf"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "two.hdf"), []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b", "one.hdf"), []byte("other one"), 0o644))

	reg, err := registry.NewSQLiteStore(filepath.Join(root, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	mapper := lwa.NewPathMapper([]lwa.PathRule{{Local: src + "/", URL: "https://example.org/data/"}})
	b, err := NewBuilder(out, mapper, reg, maxFiles, nil)
	require.NoError(t, err)
	return fixture{builder: b, reg: reg, src: src, out: out}
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestBuild_PacksSelectedFiles(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	arch, err := f.builder.Build(ctx, Request{
		Kind:  lwa.KindSlowLev1,
		Start: "2025-04-10T00:00:00",
		End:   "2025-04-11T00:00:00",
		Files: []string{
			"https://example.org/data/a/one.hdf",
			filepath.Join(f.src, "a", "two.hdf"),
		},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^slow_lev1_20250410_[0-9a-f]{8}\.zip$`, arch.Name)
	assert.Equal(t, 2, arch.Files)
	assert.Positive(t, arch.SizeBytes)

	path, err := f.builder.Open(ctx, arch.Name)
	require.NoError(t, err)
	assert.Equal(t, []string{"one.hdf", "two.hdf"}, zipNames(t, path))

	entry, err := f.reg.Get(ctx, arch.Name)
	require.NoError(t, err)
	assert.Equal(t, "2025-04-11T00:00:00", entry.End)
}

func TestBuild_DuplicateBaseNamesAreSuffixed(t *testing.T) {
	f := newFixture(t, 10)
	arch, err := f.builder.Build(context.Background(), Request{
		Kind:  lwa.KindSlowLev1,
		Files: []string{"https://example.org/data/a/one.hdf", "https://example.org/data/b/one.hdf"},
	})
	require.NoError(t, err)

	path, err := f.builder.Open(context.Background(), arch.Name)
	require.NoError(t, err)
	assert.Equal(t, []string{"one.hdf", "one_1.hdf"}, zipNames(t, path))
}

func TestBuild_Rejections(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.builder.Build(ctx, Request{Kind: lwa.KindSpecFITS})
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = f.builder.Build(ctx, Request{Kind: lwa.KindSpecFITS, Files: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrTooManyFiles)

	_, err = f.builder.Build(ctx, Request{Kind: "fast_hdf", Files: []string{"a"}})
	assert.ErrorIs(t, err, lwa.ErrUnknownKind)

	_, err = f.builder.Build(ctx, Request{Kind: lwa.KindSpecFITS, Files: []string{"https://example.org/data/missing.hdf"}})
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = f.builder.Build(ctx, Request{Kind: lwa.KindSpecFITS, Files: []string{"https://elsewhere.org/x.hdf"}})
	assert.ErrorAs(t, err, &fe)

	outside := filepath.Join(filepath.Dir(f.src), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	for _, file := range []string{"/etc/passwd", outside, f.src + "/../secret.txt"} {
		_, err = f.builder.Build(ctx, Request{Kind: lwa.KindSpecFITS, Files: []string{file}})
		require.ErrorAs(t, err, &fe, file)
		assert.ErrorIs(t, err, ErrOutsideArchive, file)
	}

	entries, err := os.ReadDir(f.out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpen_UnknownAndInvalidNames(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.builder.Open(ctx, "nope.zip")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"", "../etc/passwd", "a/b.zip", ".hidden.zip", "x.tar"} {
		_, err := f.builder.Open(ctx, name)
		assert.ErrorIs(t, err, ErrBadName, name)
	}
}

func TestPrune_RemovesExpired(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	f.builder.now = func() time.Time { return now.Add(-48 * time.Hour) }
	old, err := f.builder.Build(ctx, Request{Kind: lwa.KindSlowLev1, Files: []string{"https://example.org/data/a/one.hdf"}})
	require.NoError(t, err)

	f.builder.now = func() time.Time { return now }
	fresh, err := f.builder.Build(ctx, Request{Kind: lwa.KindSlowLev1, Files: []string{"https://example.org/data/a/two.hdf"}})
	require.NoError(t, err)

	n, err := f.builder.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.builder.Open(ctx, old.Name)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.builder.Open(ctx, fresh.Name)
	assert.NoError(t, err)
}
