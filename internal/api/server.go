// Package api serves the HTTP API: body positions and orbits, time
// conversions, the simulation clock, catalog management, close approaches,
// the keyframe cache and the keyframe streams.
package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orrery/internal/auth"
	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/health"
	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/stream"
)

// Deps are the components the API serves from.
type Deps struct {
	Store      *catalog.Store
	Clock      *clock.Clock
	Propagator *propagation.Propagator
	Cache      *cache.KeyframeCache
	Stream     *stream.Handler
	Refresher  *catalog.Refresher
	Auth       auth.Config
	RateLimit  RateLimitConfig
	TrustProxy bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, deps Deps) *Server {
	logger = logger.With("component", "api")

	mux := http.NewServeMux()
	registerRoutes(mux, logger, deps)

	// Build middleware chain: metrics -> logging -> rate limit -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(deps.Auth)(handler)
	handler = newRateLimiter(deps.RateLimit, deps.TrustProxy).middleware(handler)
	handler = loggingMiddleware(logger, deps.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func registerRoutes(mux *http.ServeMux, logger *slog.Logger, d Deps) {
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool { return d.Store.Get() != nil }))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/bodies", bodiesHandler(d.Store))
	mux.HandleFunc("GET /api/v1/bodies/{name}", bodyHandler(d.Store))
	mux.HandleFunc("GET /api/v1/bodies/{name}/position", positionHandler(logger, d.Propagator))
	mux.HandleFunc("GET /api/v1/bodies/{name}/orbit", orbitHandler(logger, d.Propagator))
	mux.HandleFunc("GET /api/v1/positions", positionsHandler(logger, d.Propagator))

	mux.HandleFunc("GET /api/v1/julian", julianFromTimeHandler())
	mux.HandleFunc("GET /api/v1/julian/{jd}", julianToTimeHandler())
	mux.HandleFunc("GET /api/v1/clock", clockHandler(d.Clock))
	mux.HandleFunc("POST /api/v1/clock", clockUpdateHandler(logger, d.Clock))

	mux.HandleFunc("GET /api/v1/catalog/metadata", catalogMetadataHandler(d.Store, d.Refresher))
	mux.HandleFunc("POST /api/v1/catalog/fetch", catalogFetchHandler(logger, d.Refresher))
	mux.HandleFunc("GET /api/v1/approaches", approachesHandler(logger, d.Store, d.Clock))

	mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(d.Cache))
	mux.HandleFunc("GET /api/v1/cache/keyframes/latest", latestKeyframeHandler(d.Cache))

	if d.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/keyframes", d.Stream.HandleKeyframes)
		mux.HandleFunc("GET /api/v1/stream/ws", d.Stream.HandleWebSocket)
	}
}

// Handler returns the full middleware-wrapped handler.
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

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE works behind the logger.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Hijack passes through so WebSocket upgrades work behind the logger.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
