package http

import (
	"context"
	nethttp "net/http"
	"os/exec"
	"time"

	mysqlstore "lwa-query-web/internal/connectors/mysql"
)

type statusDeps struct {
	catalog   *mysqlstore.Store
	registry  bundleLister
	ffmpegBin string
	moviesDir string
	synopDir  string
}

func servicesStatusHandler(deps statusDeps) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
		defer cancel()

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"generated_at": time.Now().UTC(),
			"services": map[string]any{
				"mysql":           mysqlStatus(ctx, deps.catalog),
				"bundle_registry": registryStatus(ctx, deps.registry),
				"ffmpeg":          ffmpegStatus(deps.ffmpegBin),
				"movies_dir":      dirStatus(deps.moviesDir),
				"synop_dir":       dirStatus(deps.synopDir),
			},
		})
	}
}

func mysqlStatus(ctx context.Context, store *mysqlstore.Store) map[string]any {
	if store == nil {
		return map[string]any{"enabled": false, "ok": false, "error": "database integration disabled"}
	}

	start := time.Now()
	stats, err := store.ServiceStats(ctx)
	recordDBQuery("mysql", "ServiceStats", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "stats": stats}
}

func registryStatus(ctx context.Context, lister bundleLister) map[string]any {
	if lister == nil {
		return map[string]any{"enabled": false, "ok": false, "error": "bundle registry disabled"}
	}
	start := time.Now()
	items, err := lister.List(ctx, 1000)
	recordDBQuery("sqlite", "ListBundles", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "bundles": len(items)}
}

func ffmpegStatus(bin string) map[string]any {
	p, err := exec.LookPath(bin)
	if err != nil {
		return map[string]any{"ok": false, "error": err.Error()}
	}
	return map[string]any{"ok": true, "path": p}
}

func dirStatus(dir string) map[string]any {
	if !isDir(dir) {
		return map[string]any{"ok": false, "path": dir, "error": "not a directory"}
	}
	return map[string]any{"ok": true, "path": dir}
}
