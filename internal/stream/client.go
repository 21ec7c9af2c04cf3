package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/orrery/internal/metrics"
	"golang.org/x/time/rate"
)

const writeTimeout = 30 * time.Second

// sseClient manages a single SSE connection's write operations.
type sseClient struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	bw      *rate.Limiter
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// send writes data as an SSE "data:" message.
// SSE format: "data: {json}\n\n"
func (c *sseClient) send(ctx context.Context, data []byte) error {
	msg := fmt.Sprintf("data: %s\n\n", data)
	if err := waitBandwidth(ctx, c.bw, len(msg)); err != nil {
		return fmt.Errorf("bandwidth: %w", err)
	}

	// Extend write deadline before each write to prevent timeout on long-lived connections.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprint(c.w, msg)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.messagesSent++
	c.bytesSent += int64(n)
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(n)

	return nil
}

// keepalive sends an SSE comment line to keep the connection alive.
// SSE comment format: ":\n\n"
func (c *sseClient) keepalive(ctx context.Context) error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprint(c.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(n)

	return nil
}

// newBandwidthLimiter returns a token bucket of bytesPerSec bytes with one
// second of burst, or nil when limiting is disabled.
func newBandwidthLimiter(bytesPerSec int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
}

// waitBandwidth blocks until n bytes may be sent. Messages larger than the
// burst are paid for in burst-sized chunks, since WaitN rejects n > burst.
func waitBandwidth(ctx context.Context, l *rate.Limiter, n int) error {
	if l == nil {
		return nil
	}
	burst := l.Burst()
	for n > 0 {
		k := min(n, burst)
		if err := l.WaitN(ctx, k); err != nil {
			return err
		}
		n -= k
	}
	return nil
}
