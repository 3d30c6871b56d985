package http

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwa-query-web/internal/config"
	"lwa-query-web/internal/lwa"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		ListenAddr:            "127.0.0.1:0",
		BundleDir:             filepath.Join(dir, "bundles"),
		BundleRegistryPath:    filepath.Join(dir, "bundles", "registry.db"),
		MoviesDir:             filepath.Join(dir, "movies"),
		BundleTTL:             time.Hour,
		BundleJanitorInterval: time.Hour,
		PathRules:             lwa.DefaultPathRules(),
	}
}

func TestServer_ShutdownWhileStarting(t *testing.T) {
	srv, err := NewServer(testConfig(t), slogDiscard())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}
	assert.ErrorIs(t, srv.janitor.ctx.Err(), context.Canceled)
}

func TestServer_ShutdownWithoutListen(t *testing.T) {
	srv, err := NewServer(testConfig(t), slogDiscard())
	require.NoError(t, err)
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.ErrorIs(t, srv.janitor.ctx.Err(), context.Canceled)
}
