package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lwa-query-web/internal/bundle"
	"lwa-query-web/internal/config"
	mysqlstore "lwa-query-web/internal/connectors/mysql"
	"lwa-query-web/internal/connectors/registry"
	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
	"lwa-query-web/internal/movie"
)

// Server wraps an HTTP server and route handlers.
type Server struct {
	httpServer *nethttp.Server
	log        *slog.Logger
	mysqlStore *mysqlstore.Store
	registry   *registry.Store
	bundles    *bundle.Builder
	janitor    struct {
		ttl      time.Duration
		interval time.Duration
		ctx      context.Context
		cancel   context.CancelFunc
		once     sync.Once
	}
}

// NewServer creates a configured HTTP server with every page endpoint.
func NewServer(cfg config.Config, log *slog.Logger) (*Server, error) {
	log = logging.OrDefault(log)

	var store *mysqlstore.Store
	if cfg.DBEnabled {
		createdStore, err := mysqlstore.NewStore(cfg)
		if err != nil {
			return nil, err
		}
		store = createdStore
	}

	reg, err := registry.NewSQLiteStore(cfg.BundleRegistryPath)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	mapper := lwa.NewPathMapper(cfg.PathRules)
	builder, err := bundle.NewBuilder(cfg.BundleDir, mapper, reg, cfg.BundleMaxFiles, log)
	if err != nil {
		_ = reg.Close()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	if err := os.MkdirAll(cfg.MoviesDir, 0o755); err != nil {
		log.Warn("movies dir unavailable", "path", cfg.MoviesDir, "err", err)
	}
	encoder := movie.Encoder{Binary: cfg.FFmpegBin, Framerate: cfg.MovieFramerate}
	moviesURL := cfg.URLPrefix + "/static/movies"
	previewer := &movie.Previewer{
		MoviesDir:    cfg.MoviesDir,
		MoviesURL:    moviesURL,
		SynopDir:     cfg.SynopDir,
		SpecDailyURL: cfg.SpecDailyURL,
		Window:       cfg.PreviewWindow,
		Encoder:      encoder,
		Log:          log,
	}
	if store != nil {
		previewer.Files = store
	}
	pages := movie.PageWriter{
		Dir:       filepath.Join(cfg.MoviesDir, "html"),
		URLBase:   moviesURL + "/html",
		SynopDir:  cfg.SynopDir,
		Framerate: cfg.MovieFramerate,
		Frames:    lwa.NewPathMapper([]lwa.PathRule{cfg.SynopRule()}),
		Log:       log,
	}

	settings := pageSettings{
		Prefix:                   cfg.URLPrefix,
		AlwaysShowMovieContainer: cfg.AlwaysShowMovieBox,
		GuardStale:               true,
		SendCadence:              true,
		ImageType:                string(cfg.ImageType),
	}

	var catalog fileCatalog
	if store != nil {
		catalog = store
	}

	mux := nethttp.NewServeMux()
	mux.HandleFunc("GET /{$}", dashboardHandler(settings))
	mux.HandleFunc("GET /favicon.ico", faviconHandler)
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /api/v1/metrics/app", appMetricsSummaryHandler())
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(store))
	mux.HandleFunc("POST /api/flare/query", queryHandler(catalog, mapper, log))
	mux.HandleFunc("POST /api/flare/spec_movie", specMovieHandler(previewer, log))
	mux.HandleFunc("POST /plot", plotHandler(catalog, log))
	mux.HandleFunc("GET /plot/echarts", echartsHandler(catalog, log))
	mux.HandleFunc("POST /generate_bundle/{kind}", generateBundleHandler(builder, log))
	mux.HandleFunc("GET /download_ready_bundle/{name}", downloadBundleHandler(builder))
	mux.HandleFunc("POST /generate_html_movie", generateMovieHandler(pages, log))
	mux.HandleFunc("GET /bundles", bundleListHandler(reg, 100))
	mux.HandleFunc("GET /api/v1/status/services", servicesStatusHandler(statusDeps{
		catalog:   store,
		registry:  reg,
		ffmpegBin: cfg.FFmpegBin,
		moviesDir: cfg.MoviesDir,
		synopDir:  cfg.SynopDir,
	}))
	mux.HandleFunc("GET /api/v1/settings/page", pageSettingsHandler(settings))
	mux.Handle("GET /static/movies/", nethttp.StripPrefix("/static/movies/", nethttp.FileServer(nethttp.Dir(cfg.MoviesDir))))

	httpServer := &nethttp.Server{
		Addr:         cfg.ListenAddr,
		Handler:      loggingMiddleware(log, observabilityMiddleware(cfg.URLPrefix, mountPrefix(cfg.URLPrefix, mux))),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s := &Server{httpServer: httpServer, log: log, mysqlStore: store, registry: reg, bundles: builder}
	s.janitor.ttl = cfg.BundleTTL
	s.janitor.interval = cfg.BundleJanitorInterval
	s.janitor.ctx, s.janitor.cancel = context.WithCancel(context.Background())
	return s, nil
}

// mountPrefix serves h below prefix. The bare prefix redirects to prefix + "/".
func mountPrefix(prefix string, h nethttp.Handler) nethttp.Handler {
	if prefix == "" {
		return h
	}
	outer := nethttp.NewServeMux()
	outer.Handle(prefix+"/", nethttp.StripPrefix(prefix, h))
	outer.Handle(prefix, nethttp.RedirectHandler(prefix+"/", nethttp.StatusMovedPermanently))
	return outer
}

// ListenAndServe starts the bundle janitor and the HTTP server.
func (s *Server) ListenAndServe() error {
	if s.janitor.ttl > 0 {
		s.janitor.once.Do(func() { go s.startBundleJanitor(s.janitor.ctx) })
	}
	s.log.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, nethttp.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.janitor.cancel()
	err := s.httpServer.Shutdown(ctx)
	if s.mysqlStore != nil {
		_ = s.mysqlStore.Close()
	}
	if s.registry != nil {
		_ = s.registry.Close()
	}
	return err
}

func (s *Server) startBundleJanitor(ctx context.Context) {
	interval := s.janitor.interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.pruneBundles(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneBundles(ctx)
		}
	}
}

func (s *Server) pruneBundles(ctx context.Context) {
	start := time.Now()
	_, err := s.bundles.Prune(ctx, s.janitor.ttl)
	recordDBQuery("sqlite", "PruneBundles", time.Since(start).Seconds(), err)
	if err != nil && ctx.Err() == nil {
		s.log.Warn("bundle janitor", "err", err)
	}
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func readyHandler(store *mysqlstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"status": "ready",
		})
	}
}

func loggingMiddleware(log *slog.Logger, next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: nethttp.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
