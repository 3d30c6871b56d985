package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lwa-query-web/internal/bundle"
	"lwa-query-web/internal/connectors/registry"
	"lwa-query-web/internal/lwa"
	"lwa-query-web/internal/movie"
	"lwa-query-web/internal/plot"
)

const dbDisabledMessage = "database integration disabled (set APP_DB_ENABLED=true)"

type fileCatalog interface {
	ListFiles(ctx context.Context, start, end time.Time, cadence time.Duration) (lwa.FileLists, error)
}

type bundleService interface {
	Build(ctx context.Context, req bundle.Request) (*bundle.Archive, error)
	Open(ctx context.Context, name string) (string, error)
}

type bundleLister interface {
	List(ctx context.Context, limit int) ([]registry.Entry, error)
}

type previewService interface {
	Lookup(ctx context.Context, start string) (movie.Preview, error)
}

type pageService interface {
	Write(ctx context.Context, files []string) (string, error)
}

// rangeForm is the start/end/cadence triple every range endpoint accepts.
type rangeForm struct {
	Start      time.Time
	End        time.Time
	Cadence    time.Duration
	RawStart   string
	RawEnd     string
	RawCadence string
}

func parseRangeForm(r *nethttp.Request) (rangeForm, string) {
	f := rangeForm{
		RawStart:   strings.TrimSpace(r.FormValue("start")),
		RawEnd:     strings.TrimSpace(r.FormValue("end")),
		RawCadence: strings.TrimSpace(r.FormValue("cadence")),
	}
	if f.RawStart == "" || f.RawEnd == "" {
		return f, "Start and end times are required."
	}
	var err error
	if f.Start, err = lwa.ParseTime(f.RawStart); err != nil {
		return f, "Invalid date format"
	}
	if f.End, err = lwa.ParseTime(f.RawEnd); err != nil {
		return f, "Invalid date format"
	}
	if f.Start.After(f.End) {
		return f, "End date must be after start date"
	}
	if f.Cadence, err = lwa.ParseCadence(f.RawCadence); err != nil {
		return f, err.Error()
	}
	return f, ""
}

func parseSelectedFiles(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var files []string
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil, fmt.Errorf("selected_files must be a JSON array of strings")
	}
	return files, nil
}

func listFiles(ctx context.Context, catalog fileCatalog, f rangeForm) (lwa.FileLists, error) {
	start := time.Now()
	lists, err := catalog.ListFiles(ctx, f.Start, f.End, f.Cadence)
	recordDBQuery("mysql", "ListFiles", time.Since(start).Seconds(), err)
	return lists, err
}

func dbErrorStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nethttp.ErrHandlerTimeout) {
		return nethttp.StatusGatewayTimeout
	}
	return nethttp.StatusInternalServerError
}

func queryHandler(catalog fileCatalog, mapper *lwa.PathMapper, log *slog.Logger) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if catalog == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": dbDisabledMessage})
			return
		}
		form, msg := parseRangeForm(r)
		if msg != "" {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": msg})
			return
		}

		lists, err := listFiles(r.Context(), catalog, form)
		if err != nil {
			log.Error("file query failed", "start", form.RawStart, "end", form.RawEnd, "err", err)
			writeJSON(w, dbErrorStatus(err), map[string]any{"error": "failed to query the file index"})
			return
		}

		payload := make(map[string]any, 3)
		for _, k := range lwa.Kinds() {
			urls := mapper.ToURLs(lwa.Paths(lists[k]))
			payload[string(k)] = urls
			log.Debug("query result", "kind", k, "count", len(urls))
		}
		writeJSON(w, nethttp.StatusOK, payload)
	}
}

func specMovieHandler(previews previewService, log *slog.Logger) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := strings.TrimSpace(r.FormValue("start"))
		if start == "" {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "Start time is required."})
			return
		}
		p, err := previews.Lookup(r.Context(), start)
		recordMovie("preview", err)
		if err != nil {
			if errors.Is(err, lwa.ErrBadTime) {
				writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "Invalid date format"})
				return
			}
			log.Error("preview lookup failed", "start", start, "err", err)
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to look up the preview"})
			return
		}
		writeJSON(w, nethttp.StatusOK, p)
	}
}

func plotHandler(catalog fileCatalog, log *slog.Logger) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		form, msg := parseRangeForm(r)
		if msg != "" {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": msg})
			return
		}
		if catalog == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": dbDisabledMessage})
			return
		}
		lists, err := listFiles(r.Context(), catalog, form)
		if err != nil {
			log.Error("plot query failed", "err", err)
			writeJSON(w, dbErrorStatus(err), map[string]any{"error": "failed to query the file index"})
			return
		}
		fig, err := plot.Availability(lists).JSONString()
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to encode plot"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"plot": fig})
	}
}

func echartsHandler(catalog fileCatalog, log *slog.Logger) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		form, msg := parseRangeForm(r)
		if msg != "" {
			nethttp.Error(w, msg, nethttp.StatusBadRequest)
			return
		}
		if catalog == nil {
			nethttp.Error(w, dbDisabledMessage, nethttp.StatusServiceUnavailable)
			return
		}
		lists, err := listFiles(r.Context(), catalog, form)
		if err != nil {
			log.Error("chart query failed", "err", err)
			nethttp.Error(w, "failed to query the file index", dbErrorStatus(err))
			return
		}
		var buf bytes.Buffer
		if err := plot.RenderECharts(&buf, lists, form.RawStart+" - "+form.RawEnd); err != nil {
			nethttp.Error(w, "failed to render chart", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

// generateBundleHandler answers errors as plain text; the page shows them verbatim.
func generateBundleHandler(bundles bundleService, log *slog.Logger) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		kind, err := lwa.ParseKind(r.PathValue("kind"))
		if err != nil {
			nethttp.Error(w, fmt.Sprintf("Unknown file kind %q.", r.PathValue("kind")), nethttp.StatusBadRequest)
			return
		}
		files, err := parseSelectedFiles(r.FormValue("selected_files"))
		if err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}

		archive, err := bundles.Build(r.Context(), bundle.Request{
			Kind:    kind,
			Start:   strings.TrimSpace(r.FormValue("start")),
			End:     strings.TrimSpace(r.FormValue("end")),
			Cadence: strings.TrimSpace(r.FormValue("cadence")),
			Files:   files,
		})
		var size int64
		if archive != nil {
			size = archive.SizeBytes
		}
		recordBundle(string(kind), size, err)
		if err != nil {
			var fe *bundle.FileError
			switch {
			case errors.Is(err, bundle.ErrNoFiles):
				nethttp.Error(w, fmt.Sprintf("No %s files selected.", kind), nethttp.StatusBadRequest)
			case errors.Is(err, bundle.ErrTooManyFiles):
				nethttp.Error(w, err.Error(), nethttp.StatusRequestEntityTooLarge)
			case errors.As(err, &fe):
				nethttp.Error(w, fmt.Sprintf("File not available: %s", filepath.Base(fe.File)), nethttp.StatusNotFound)
			default:
				log.Error("bundle failed", "kind", kind, "files", len(files), "err", err)
				nethttp.Error(w, fmt.Sprintf("Failed to generate %s bundle.", kind), nethttp.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, nethttp.StatusOK, archive)
	}
}

func downloadBundleHandler(bundles bundleService) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		name := r.PathValue("name")
		p, err := bundles.Open(r.Context(), name)
		switch {
		case errors.Is(err, bundle.ErrBadName), errors.Is(err, bundle.ErrNotFound):
			nethttp.Error(w, "Bundle not found.", nethttp.StatusNotFound)
			return
		case err != nil:
			nethttp.Error(w, "Failed to open bundle.", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		nethttp.ServeFile(w, r, p)
	}
}

func generateMovieHandler(pages pageService, log *slog.Logger) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		files, err := parseSelectedFiles(r.FormValue("selected_files"))
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if len(files) == 0 {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "no files selected"})
			return
		}
		u, err := pages.Write(r.Context(), files)
		recordMovie("page", err)
		if err != nil {
			if errors.Is(err, movie.ErrNoFrames) {
				writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "no quicklook images exist for the selected files"})
				return
			}
			log.Error("movie page failed", "files", len(files), "err", err)
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to generate movie"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"movie_url": u})
	}
}

func bundleListHandler(lister bundleLister, defaultLimit int) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if lister == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": "bundle registry disabled"})
			return
		}
		limit := parseLimit(r, defaultLimit)
		start := time.Now()
		items, err := lister.List(r.Context(), limit)
		recordDBQuery("sqlite", "ListBundles", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to list bundles"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"limit": limit,
				"count": len(items),
			},
			"data": items,
		})
	}
}

func parseLimit(r *nethttp.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > 1000 {
		return 1000
	}
	return n
}
