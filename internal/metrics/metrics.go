package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitview_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbitview_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	derivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitview_derivations_total",
			Help: "Orbit parameter derivations by group and result.",
		},
		[]string{"group", "result"},
	)

	derivationRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitview_derivation_rejects_total",
			Help: "Element sets rejected during derivation, by reason.",
		},
		[]string{"group", "reason"},
	)

	trackedObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbitview_tracked_objects",
			Help: "Objects with valid orbit parameters per group.",
		},
		[]string{"group"},
	)

	tickDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbitview_tick_duration_seconds",
			Help:    "Time to advance and position every object in a group.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"group"},
	)

	tickWorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbitview_tick_workers_active",
			Help: "Number of tick worker goroutines.",
		},
	)

	pathCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitview_path_cache_lookups_total",
			Help: "Orbit path cache lookups by result.",
		},
		[]string{"result"},
	)

	pathCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbitview_path_cache_entries",
			Help: "Orbit paths held in the cache.",
		},
	)

	streamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbitview_stream_connections",
			Help: "Open position stream connections.",
		},
	)

	streamFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbitview_stream_frames_total",
			Help: "Position frames written to stream clients.",
		},
	)

	elementFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitview_element_fetches_total",
			Help: "Element data loads by group and source.",
		},
		[]string{"group", "source"},
	)

	elementDatasetAge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbitview_element_dataset_age_seconds",
			Help: "Age of the loaded element dataset per group.",
		},
		[]string{"group"},
	)

	elementDatasetCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbitview_element_dataset_count",
			Help: "Element sets in the loaded dataset per group.",
		},
		[]string{"group"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		derivationsTotal,
		derivationRejectsTotal,
		trackedObjects,
		tickDurationSeconds,
		tickWorkersActive,
		pathCacheLookups,
		pathCacheEntries,
		streamConnections,
		streamFramesTotal,
		elementFetchesTotal,
		elementDatasetAge,
		elementDatasetCount,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDerivations records the outcome of deriving one group.
func RecordDerivations(group string, ok, failed int) {
	derivationsTotal.WithLabelValues(group, "ok").Add(float64(ok))
	derivationsTotal.WithLabelValues(group, "rejected").Add(float64(failed))
}

// RecordRejection counts one rejected element set.
func RecordRejection(group, reason string) {
	derivationRejectsTotal.WithLabelValues(group, reason).Inc()
}

// SetTrackedObjects sets the tracked object count for a group.
func SetTrackedObjects(group string, n int) {
	trackedObjects.WithLabelValues(group).Set(float64(n))
}

// ObserveTick records how long one tick took.
func ObserveTick(group string, d time.Duration) {
	tickDurationSeconds.WithLabelValues(group).Observe(d.Seconds())
}

// SetTickWorkersActive sets the tick worker gauge.
func SetTickWorkersActive(n int) {
	tickWorkersActive.Set(float64(n))
}

// RecordPathCacheHit counts a path cache hit.
func RecordPathCacheHit() {
	pathCacheLookups.WithLabelValues("hit").Inc()
}

// RecordPathCacheMiss counts a path cache miss.
func RecordPathCacheMiss() {
	pathCacheLookups.WithLabelValues("miss").Inc()
}

// SetPathCacheEntries sets the path cache size gauge.
func SetPathCacheEntries(n int) {
	pathCacheEntries.Set(float64(n))
}

// StreamConnected increments the open stream gauge.
func StreamConnected() {
	streamConnections.Inc()
}

// StreamDisconnected decrements the open stream gauge.
func StreamDisconnected() {
	streamConnections.Dec()
}

// RecordStreamFrame counts one frame sent to a stream client.
func RecordStreamFrame() {
	streamFramesTotal.Inc()
}

// RecordElementLoad counts a dataset load. source is one of "fetch",
// "cache", "stale_cache" or "error".
func RecordElementLoad(group, source string) {
	elementFetchesTotal.WithLabelValues(group, source).Inc()
}

// SetElementDatasetAge sets the dataset age gauge for a group.
func SetElementDatasetAge(group string, seconds float64) {
	elementDatasetAge.WithLabelValues(group).Set(seconds)
}

// SetElementDatasetCount sets the element set count gauge for a group.
func SetElementDatasetCount(group string, n int) {
	elementDatasetCount.WithLabelValues(group).Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so SSE keeps working behind the
// middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var exactRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/groups":           true,
	"/api/v1/markers":          true,
	"/api/v1/stream/positions": true,
	"/api/v1/path-cache/stats": true,
}

var paramRoutes = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`^/api/v1/groups/[^/]+/satellites$`), "/api/v1/groups/{group}/satellites"},
	{regexp.MustCompile(`^/api/v1/groups/[^/]+/satellites/\d+/orbit$`), "/api/v1/groups/{group}/satellites/{id}/orbit"},
	{regexp.MustCompile(`^/api/v1/groups/[^/]+/satellites/\d+/position$`), "/api/v1/groups/{group}/satellites/{id}/position"},
	{regexp.MustCompile(`^/api/v1/groups/[^/]+/refresh$`), "/api/v1/groups/{group}/refresh"},
	{regexp.MustCompile(`^/api/v1/markers/[^/]+$`), "/api/v1/markers/{id}"},
}

// normalizeRoute maps a request path to a bounded set of metric labels.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	for _, r := range paramRoutes {
		if r.re.MatchString(path) {
			return r.label
		}
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
