// Package server implements per-client publish throttling that protects the
// relay from a single noisy producer.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/relay/internal/logger"
)

// visitorTTL is how long an idle client's bucket is kept.
const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	visitors  map[string]*visitor
	lastSweep time.Time
	cfg       RateLimitConfig
	log       *slog.Logger
	now       func() time.Time
}

func newRateLimiter(cfg RateLimitConfig, log *slog.Logger) *rateLimiter {
	capacity := cfg.Burst
	if capacity <= 0 {
		capacity = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		limit:    rate.Limit(float64(capacity) / interval.Seconds()),
		burst:    capacity,
		visitors: make(map[string]*visitor),
		cfg:      RateLimitConfig{Burst: capacity, RefillInterval: interval},
		log:      log,
		now:      time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
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

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

// Middleware rejects requests from clients that exceeded their budget with
// 429 Too Many Requests.
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.allow(key) {
			rl.log.Warn("rate limit exceeded; discarding message",
				logger.Remote(key),
				slog.String("limit", fmt.Sprintf("%d per %s", rl.cfg.Burst, rl.cfg.RefillInterval)),
			)
			writeError(w, rl.log, ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey strips the port from RemoteAddr so one host shares one bucket.
// RemoteAddr is the transport peer; forwarding headers are never consulted.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
