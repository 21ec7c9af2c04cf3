// Package stream implements keyframe streaming over Server-Sent Events (SSE)
// and WebSocket. Clients connect via GET /api/v1/stream/keyframes (SSE) or
// GET /api/v1/stream/ws and receive a continuous stream of ecliptic J2000
// body positions from the keyframe cache.
//
// Message format (SSE wraps each as "data: {json}\n\n", WebSocket sends one
// text frame per message):
//
//	{"type":"keyframe_batch","t":"2026-02-06T04:00:00Z","jd":2461077.66,"frame":"ECLIPJ2000","bodies":[...]}
//
// First message is always metadata:
//
//	{"type":"metadata","dataset_epoch":"...","catalog_age_seconds":1800,"speed":1,...}
//
// Keep-alives (SSE comment ":\n\n", WebSocket ping) are sent every
// KeepaliveInterval to prevent timeout. Reconnecting clients receive a fresh
// metadata message on each connection.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
)

const (
	transportSSE = "sse"
	transportWS  = "ws"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrentTotal int           // Max concurrent streams on the server (default: 1000).
	BandwidthLimit     int           // Bytes per second per stream, 0 disables (default: 1048576).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from X-Forwarded-For.
	AllowedOrigins     []string      // WebSocket origins; empty allows any.
}

// Handler manages streaming connections.
type Handler struct {
	cache   *cache.KeyframeCache
	store   *catalog.Store
	clock   *clock.Clock
	config  Config
	slots   *streamSlots
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(kfCache *cache.KeyframeCache, store *catalog.Store, clk *clock.Clock, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		cache:   kfCache,
		store:   store,
		clock:   clk,
		config:  config,
		slots:   newStreamSlots(config.MaxConcurrentPerIP, config.MaxConcurrentTotal),
		logger:  logger,
	}
}

// HandleKeyframes serves the SSE keyframe stream.
// GET /api/v1/stream/keyframes?step=5&horizon=600&trail=20
func (h *Handler) HandleKeyframes(w http.ResponseWriter, r *http.Request) {
	p, ok := parseParams(w, r)
	if !ok {
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, ok := h.admit(w, ip, transportSSE)
	if !ok {
		return
	}
	defer h.connected(r, ip, transportSSE, p, release)()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Use ResponseController to manage write deadlines for long-lived SSE.
	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &sseClient{
		w:       w,
		flusher: flusher,
		rc:      rc,
		bw:      newBandwidthLimiter(h.config.BandwidthLimit),
		logger:  h.logger,
	}

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	h.run(r.Context(), c, p, ip)
}

// admit reserves a stream slot for ip, writing a 429 when the client or the
// server is at capacity.
func (h *Handler) admit(w http.ResponseWriter, ip, transport string) (func(), bool) {
	release, err := h.slots.take(ip, transport)
	if err == nil {
		return release, true
	}

	reason := "client_limit"
	if errors.Is(err, errServerSlots) {
		reason = "server_limit"
	}
	metrics.IncStreamErrors(reason)
	h.logger.Warn("stream rejected",
		"transport", transport,
		"remote_ip", ip,
		"held", h.slots.held(ip),
		"open_on_transport", h.slots.onTransport(transport),
		"error", err,
	)
	w.Header().Set("Retry-After", "30")
	writeError(w, http.StatusTooManyRequests, err.Error())
	return nil, false
}

// connected records a new stream and returns the cleanup to run on
// disconnect.
func (h *Handler) connected(r *http.Request, ip, transport string, p params, release func()) func() {
	metrics.IncStreamConnections(transport)
	metrics.IncStreamsActive(transport)

	startTime := time.Now()
	h.logger.Info("stream connected",
		"transport", transport,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", p.step.Seconds(),
		"trail", p.trail,
	)

	return func() {
		release()
		metrics.DecStreamsActive(transport)
		h.logger.Info("stream disconnected",
			"transport", transport,
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
