package http

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const metricsNamespace = "lwa_query"

var (
	appStartedAt = time.Now()

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, partitioned by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "http_in_flight_requests",
		Help:      "Requests currently being served.",
	})
	dbQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "db_queries_total",
			Help:      "Catalog and registry queries, partitioned by connector, operation and outcome.",
		},
		[]string{"connector", "operation", "outcome"},
	)
	dbQuerySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "db_query_seconds",
			Help:      "Catalog and registry query latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"connector", "operation"},
	)
	bundlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bundles_total",
			Help:      "Bundle requests, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	bundleBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "bundle_bytes_total",
		Help:      "Bytes written into bundle archives.",
	})
	moviesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "movies_total",
			Help:      "Preview lookups and movie pages, partitioned by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	metricsRegistry = newMetricsRegistry()
)

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if err := registerMetrics(reg); err != nil {
		panic(err)
	}
	return reg
}

// registerMetrics attaches the service collectors to reg.
func registerMetrics(reg prometheus.Registerer) error {
	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequestsTotal,
		httpRequestSeconds,
		httpInFlight,
		dbQueriesTotal,
		dbQuerySeconds,
		bundlesTotal,
		bundleBytes,
		moviesTotal,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
}

// appMetricsSummaryHandler reports the slowest routes and operations seen so far.
func appMetricsSummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type endpointRow struct {
			Method string  `json:"method"`
			Path   string  `json:"path"`
			Count  uint64  `json:"count"`
			AvgMS  float64 `json:"avg_ms"`
		}
		type dbRow struct {
			Connector string  `json:"connector"`
			Operation string  `json:"operation"`
			Count     uint64  `json:"count"`
			AvgMS     float64 `json:"avg_ms"`
		}

		families, err := metricsRegistry.Gather()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to gather metrics"})
			return
		}

		var httpRows []endpointRow
		var dbRows []dbRow
		dbErrors := 0.0
		for _, mf := range families {
			switch mf.GetName() {
			case metricsNamespace + "_http_request_seconds":
				for _, m := range mf.GetMetric() {
					count, avg := histogramAvgMS(m)
					httpRows = append(httpRows, endpointRow{Method: label(m, "method"), Path: label(m, "route"), Count: count, AvgMS: avg})
				}
			case metricsNamespace + "_db_query_seconds":
				for _, m := range mf.GetMetric() {
					count, avg := histogramAvgMS(m)
					dbRows = append(dbRows, dbRow{Connector: label(m, "connector"), Operation: label(m, "operation"), Count: count, AvgMS: avg})
				}
			case metricsNamespace + "_db_queries_total":
				for _, m := range mf.GetMetric() {
					if label(m, "outcome") == "error" {
						dbErrors += m.GetCounter().GetValue()
					}
				}
			}
		}

		sort.Slice(httpRows, func(i, j int) bool { return httpRows[i].AvgMS > httpRows[j].AvgMS })
		sort.Slice(dbRows, func(i, j int) bool { return dbRows[i].AvgMS > dbRows[j].AvgMS })
		if len(httpRows) > 5 {
			httpRows = httpRows[:5]
		}
		if len(dbRows) > 5 {
			dbRows = dbRows[:5]
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"meta": map[string]any{
				"generated_at":   time.Now().UTC(),
				"uptime_seconds": int64(time.Since(appStartedAt).Seconds()),
			},
			"data": map[string]any{
				"top_http_slowest_avg_ms": httpRows,
				"top_db_slowest_avg_ms":   dbRows,
				"errors": map[string]any{
					"db_query_total": dbErrors,
				},
			},
		})
	}
}

func histogramAvgMS(m *dto.Metric) (uint64, float64) {
	h := m.GetHistogram()
	count := h.GetSampleCount()
	if count == 0 {
		return 0, 0
	}
	return count, h.GetSampleSum() / float64(count) * 1000.0
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func observabilityMiddleware(prefix string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := normalizeMetricPath(strings.TrimPrefix(r.URL.Path, prefix))
		recordHTTPMetric(r.Method, route, rec.status, time.Since(start).Seconds())
	})
}

func normalizeMetricPath(path string) string {
	switch {
	case path == "" || path == "/":
		return "/"
	case strings.HasPrefix(path, "/generate_bundle/"):
		return "/generate_bundle/{kind}"
	case strings.HasPrefix(path, "/download_ready_bundle/"):
		return "/download_ready_bundle/{name}"
	case strings.HasPrefix(path, "/static/movies/html/"):
		return "/static/movies/html/{page}"
	case strings.HasPrefix(path, "/static/"):
		return "/static/{file}"
	case path == "/metrics", path == "/health", path == "/ready", path == "/bundles",
		path == "/plot", path == "/plot/echarts", path == "/generate_html_movie",
		strings.HasPrefix(path, "/api/"):
		return path
	default:
		return "other"
	}
}

func recordHTTPMetric(method, route string, status int, durationSeconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestSeconds.WithLabelValues(method, route).Observe(durationSeconds)
}

func recordDBQuery(connector, operation string, durationSeconds float64, err error) {
	if connector == "" || operation == "" {
		return
	}
	dbQueriesTotal.WithLabelValues(connector, operation, outcome(err)).Inc()
	dbQuerySeconds.WithLabelValues(connector, operation).Observe(durationSeconds)
}

func recordBundle(kind string, size int64, err error) {
	bundlesTotal.WithLabelValues(kind, outcome(err)).Inc()
	if err == nil && size > 0 {
		bundleBytes.Add(float64(size))
	}
}

func recordMovie(source string, err error) {
	moviesTotal.WithLabelValues(source, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
