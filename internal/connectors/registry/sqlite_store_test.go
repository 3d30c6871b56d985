package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	assert.Error(t, err)
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, Entry{
		Name: "spec_fits_20250410_ab12cd34.zip", Kind: "spec_fits", Path: "/tmp/x.zip",
		Start: "2025-04-10T00:00:00", End: "2025-04-11T00:00:00", FileCount: 2, SizeBytes: 1024, CreatedAt: created,
	}))

	got, err := s.Get(ctx, "spec_fits_20250410_ab12cd34.zip")
	require.NoError(t, err)
	assert.Equal(t, "spec_fits", got.Kind)
	assert.Equal(t, "/tmp/x.zip", got.Path)
	assert.Equal(t, 2, got.FileCount)
	assert.Equal(t, created, got.CreatedAt)

	_, err = s.Get(ctx, "missing.zip")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_ReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Entry{Name: "a.zip", Kind: "slow_lev1", Path: "/a", FileCount: 1}))
	require.NoError(t, s.Put(ctx, Entry{Name: "a.zip", Kind: "slow_lev1", Path: "/a", FileCount: 5}))

	got, err := s.Get(ctx, "a.zip")
	require.NoError(t, err)
	assert.Equal(t, 5, got.FileCount)

	assert.Error(t, s.Put(ctx, Entry{Kind: "slow_lev1"}))
}

func TestListAndOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, Entry{Name: "old.zip", Kind: "spec_fits", Path: "/old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Put(ctx, Entry{Name: "new.zip", Kind: "spec_fits", Path: "/new", CreatedAt: now}))

	all, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new.zip", all[0].Name)

	expired, err := s.OlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old.zip", expired[0].Name)

	n, err := s.Delete(ctx, "old.zip")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	all, err = s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
