package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 // 0 disables limiting
	Burst             int
}

// visitorTTL is how long an idle client's bucket is kept.
const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter holds one token bucket per client IP.
type rateLimiter struct {
	config     RateLimitConfig
	trustProxy bool

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(config RateLimitConfig, trustProxy bool) *rateLimiter {
	if config.Burst < 1 {
		config.Burst = int(math.Max(1, math.Ceil(config.RequestsPerSecond)))
	}
	return &rateLimiter{
		config:     config,
		trustProxy: trustProxy,
		visitors:   make(map[string]*visitor),
		now:        time.Now,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > visitorTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// exemptFromRateLimit covers probes, metrics scrapes and streams, which
// have their own concurrency cap.
func exemptFromRateLimit(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/api/v1/stream/keyframes", "/api/v1/stream/ws":
		return true
	}
	return false
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	if rl.config.RequestsPerSecond <= 0 {
		return next
	}
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/rl.config.RequestsPerSecond))))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptFromRateLimit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.allow(httputil.ClientIP(r, rl.trustProxy)) {
			metrics.IncRateLimited()
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
