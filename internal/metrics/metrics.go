package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orrery_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	httpRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_http_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})

	// Propagation.
	propagationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orrery_propagation_duration_seconds",
		Help:    "Time to propagate every catalog body to one instant.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
	propagationBodiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_propagation_bodies_total",
			Help: "Bodies propagated, by result.",
		},
		[]string{"result"},
	)
	propagationWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_propagation_workers",
		Help: "Size of the propagation worker pool.",
	})
	keplerNonConvergentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_kepler_nonconvergent_total",
		Help: "Kepler solves that failed to converge.",
	})

	// Catalog.
	catalogBodies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orrery_catalog_bodies",
			Help: "Bodies in the current catalog dataset, by kind.",
		},
		[]string{"kind"},
	)
	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_catalog_age_seconds",
		Help: "Seconds since the current catalog dataset was fetched.",
	})
	catalogFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_catalog_fetch_total",
			Help: "NEO catalog fetch attempts, by result.",
		},
		[]string{"result"},
	)

	// Clock.
	clockSpeed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_clock_speed",
		Help: "Simulated seconds per wall-clock second.",
	})
	clockPaused = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_clock_paused",
		Help: "1 when the simulation clock is paused.",
	})

	// Keyframe cache.
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_cache_hits_total",
		Help: "Keyframe cache hits.",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_cache_misses_total",
		Help: "Keyframe cache misses.",
	})
	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_cache_evictions_total",
		Help: "Keyframes evicted from the trailing edge of the window.",
	})
	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_cache_entries",
		Help: "Keyframes currently cached.",
	})
	cacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_cache_size_bytes",
		Help: "Estimated memory held by cached keyframes.",
	})
	cacheRegenDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orrery_cache_regeneration_duration_seconds",
		Help:    "Time to generate a leading-edge keyframe or rebuild the window.",
		Buckets: prometheus.DefBuckets,
	})
	cacheRegenErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_cache_regeneration_errors_total",
		Help: "Keyframe generation failures.",
	})
	cacheGracePeriod = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_cache_grace_period_active",
		Help: "1 while the cache is being rebuilt after a catalog or clock change.",
	})

	// Streaming.
	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_stream_connections_total",
			Help: "Stream connections accepted, by transport.",
		},
		[]string{"transport"},
	)
	streamsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orrery_streams_active",
			Help: "Open stream connections, by transport.",
		},
		[]string{"transport"},
	)
	streamMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_stream_messages_total",
		Help: "Stream messages sent.",
	})
	streamBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_stream_bytes_total",
		Help: "Stream payload bytes sent.",
	})
	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_stream_errors_total",
			Help: "Stream errors, by reason.",
		},
		[]string{"reason"},
	)

	// Close approaches.
	approachDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orrery_approach_prediction_duration_seconds",
		Help:    "Time to compute close approaches for a request.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpDurationSeconds, httpRateLimitedTotal,
		propagationDuration, propagationBodiesTotal, propagationWorkers, keplerNonConvergentTotal,
		catalogBodies, catalogAgeSeconds, catalogFetchTotal,
		clockSpeed, clockPaused,
		cacheHits, cacheMisses, cacheEvictions, cacheEntries, cacheSizeBytes,
		cacheRegenDuration, cacheRegenErrors, cacheGracePeriod,
		streamConnections, streamsActive, streamMessages, streamBytes, streamErrors,
		approachDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one batch: its duration and per-body outcomes.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationDuration.Observe(d.Seconds())
	propagationBodiesTotal.WithLabelValues("success").Add(float64(success))
	propagationBodiesTotal.WithLabelValues("error").Add(float64(failed))
}

func SetPropagationWorkers(n int) { propagationWorkers.Set(float64(n)) }
func IncKeplerNonConvergent() { keplerNonConvergentTotal.Inc() }
func IncRateLimited() { httpRateLimitedTotal.Inc() }
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }

// SetCatalogBodies publishes the per-kind body counts of a dataset.
func SetCatalogBodies(counts map[string]int) {
	catalogBodies.Reset()
	for kind, n := range counts {
		catalogBodies.WithLabelValues(kind).Set(float64(n))
	}
}

// IncCatalogFetch counts a fetch attempt; ok selects the result label.
func IncCatalogFetch(ok bool) {
	if ok {
		catalogFetchTotal.WithLabelValues("success").Inc()
		return
	}
	catalogFetchTotal.WithLabelValues("error").Inc()
}

// SetClock publishes the clock speed and pause state.
func SetClock(speed float64, paused bool) {
	clockSpeed.Set(speed)
	if paused {
		clockPaused.Set(1)
	} else {
		clockPaused.Set(0)
	}
}

func IncCacheHits() { cacheHits.Inc() }
func IncCacheMisses() { cacheMisses.Inc() }
func AddCacheEvictions(n int) { cacheEvictions.Add(float64(n)) }
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }
func SetCacheSizeBytes(n int64) { cacheSizeBytes.Set(float64(n)) }
func ObserveCacheRegenerationDuration(d time.Duration) { cacheRegenDuration.Observe(d.Seconds()) }
func IncCacheRegenerationErrors() { cacheRegenErrors.Inc() }
func ObserveApproachDuration(d time.Duration) { approachDuration.Observe(d.Seconds()) }
func IncStreamConnections(transport string) { streamConnections.WithLabelValues(transport).Inc() }
func IncStreamsActive(transport string) { streamsActive.WithLabelValues(transport).Inc() }
func DecStreamsActive(transport string) { streamsActive.WithLabelValues(transport).Dec() }
func IncStreamMessages() { streamMessages.Inc() }
func AddStreamBytes(n int) { streamBytes.Add(float64(n)) }
func IncStreamErrors(reason string) { streamErrors.WithLabelValues(reason).Inc() }

// SetCacheGracePeriodActive flags an in-progress cache rebuild.
func SetCacheGracePeriodActive(active bool) {
	if active {
		cacheGracePeriod.Set(1)
	} else {
		cacheGracePeriod.Set(0)
	}
}

// knownRoutes are label values used verbatim.
var knownRoutes = map[string]bool{
	"/":                              true,
	"/healthz":                       true,
	"/readyz":                        true,
	"/metrics":                       true,
	"/api/v1/bodies":                 true,
	"/api/v1/positions":              true,
	"/api/v1/julian":                 true,
	"/api/v1/clock":                  true,
	"/api/v1/catalog/metadata":       true,
	"/api/v1/catalog/fetch":          true,
	"/api/v1/approaches":             true,
	"/api/v1/cache/stats":            true,
	"/api/v1/cache/keyframes/latest": true,
	"/api/v1/stream/keyframes":       true,
	"/api/v1/stream/ws":              true,
}

// normalizeRoute maps a request path to a bounded set of label values so that
// body names and Julian Dates in URLs do not explode metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/bodies/"); ok && rest != "" {
		name, sub, _ := strings.Cut(rest, "/")
		if name == "" {
			return "other"
		}
		switch sub {
		case "":
			return "/api/v1/bodies/{name}"
		case "position":
			return "/api/v1/bodies/{name}/position"
		case "orbit":
			return "/api/v1/bodies/{name}/orbit"
		}
		return "other"
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/julian/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/julian/{jd}"
	}

	return "other"
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

// Flush forwards to the underlying writer so SSE works through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController and websocket upgrades reach the
// underlying connection.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack exposes the connection for protocol upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
