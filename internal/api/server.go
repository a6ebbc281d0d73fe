package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitview/internal/auth"
	"github.com/star/orbitview/internal/cache"
	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/health"
	"github.com/star/orbitview/internal/httputil"
	"github.com/star/orbitview/internal/logging"
	"github.com/star/orbitview/internal/metrics"
	"github.com/star/orbitview/internal/stream"
	"github.com/star/orbitview/internal/tracker"
)

// Deps are the collaborators the HTTP API serves from.
type Deps struct {
	Controller *tracker.Controller
	Store      *elements.Store
	Paths      *cache.PathCache
	Stream     *stream.Handler
}

// Config configures the HTTP server.
type Config struct {
	Addr       string
	Auth       auth.Config
	TrustProxy bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	h := &handlers{
		ctrl:   deps.Controller,
		store:  deps.Store,
		paths:  deps.Paths,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(h.ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/groups", h.listGroups)
	mux.HandleFunc("GET /api/v1/groups/{group}/satellites", h.listSatellites)
	mux.HandleFunc("GET /api/v1/groups/{group}/satellites/{id}/orbit", h.orbitPath)
	mux.HandleFunc("GET /api/v1/groups/{group}/satellites/{id}/position", h.position)
	mux.HandleFunc("POST /api/v1/groups/{group}/refresh", h.refresh)
	mux.HandleFunc("GET /api/v1/path-cache/stats", h.pathCacheStats)

	mux.HandleFunc("GET /api/v1/markers", h.listMarkers)
	mux.HandleFunc("POST /api/v1/markers", h.createMarker)
	mux.HandleFunc("PUT /api/v1/markers/{id}", h.updateMarker)
	mux.HandleFunc("DELETE /api/v1/markers/{id}", h.deleteMarker)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/positions", deps.Stream.HandlePositions)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// healthCheckPath returns true for health and readiness check paths that should not log at INFO.
func healthCheckPath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			if id := r.Header.Get("X-Request-ID"); validRequestID(id) {
				ctx = logging.ContextWithRequestID(ctx, id)
			}
			ctx, id := logging.EnsureRequestID(ctx)
			w.Header().Set("X-Request-ID", id)

			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sr, r.WithContext(ctx))

			duration := time.Since(start)
			level := slog.LevelInfo
			if healthCheckPath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(ctx, level, "request",
				"component", "api",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}

// validRequestID accepts short client-supplied IDs of printable ASCII.
func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '!' || id[i] > '~' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
