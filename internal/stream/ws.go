package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
	"golang.org/x/time/rate"
)

// HandleWebSocket serves the keyframe stream over a WebSocket.
// GET /api/v1/stream/ws?step=5&trail=20
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	p, ok := parseParams(w, r)
	if !ok {
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, ok := h.admit(w, ip, transportWS)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		release()
		metrics.IncStreamErrors("upgrade_error")
		h.logger.Warn("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()
	defer h.connected(r, ip, transportWS, p, release)()

	// The request context is not cancelled when a hijacked connection closes,
	// so a read loop watches for the peer going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	c := &wsClient{
		conn: conn,
		bw:   newBandwidthLimiter(h.config.BandwidthLimit),
	}
	h.run(ctx, c, p, ip)

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.config.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// wsClient writes stream messages as WebSocket text frames. Only the stream
// loop writes, so no write lock is needed.
type wsClient struct {
	conn *websocket.Conn
	bw   *rate.Limiter
}

func (c *wsClient) send(ctx context.Context, data []byte) error {
	if err := waitBandwidth(ctx, c.bw, len(data)); err != nil {
		return fmt.Errorf("bandwidth: %w", err)
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(len(data))
	return nil
}

func (c *wsClient) keepalive(ctx context.Context) error {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
