package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig tunes the per-client token bucket limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the limiter settings used when the
// deployment does not configure its own.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// How often the limiter scans for buckets that have refilled completely
// and can be dropped.
const sweepInterval = 10 * time.Minute

// bucket tracks spendable tokens for one client. Tokens refill lazily on
// access instead of on a timer.
type bucket struct {
	tokens float64
	last   time.Time
}

// limiter hands out one token bucket per client IP. Access is serialized
// on a single mutex; the hot path is a map lookup and a few float ops.
type limiter struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		cfg:       cfg,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// take spends one token for key if available. When the bucket is empty it
// reports how many seconds until a token refills, rounded up for the
// Retry-After header.
func (l *limiter) take(key string) (allowed bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstSize), last: now}
		l.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.last).Seconds() * l.cfg.RequestsPerSecond
		if full := float64(l.cfg.BurstSize); b.tokens > full {
			b.tokens = full
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/l.cfg.RequestsPerSecond) + 1
}

// sweep drops buckets idle long enough to be full again, so one-off
// clients do not pin memory forever. Caller holds the lock.
func (l *limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		idle := now.Sub(b.last).Seconds()
		if b.tokens+idle*l.cfg.RequestsPerSecond >= float64(l.cfg.BurstSize) {
			delete(l.buckets, key)
		}
	}
}

// RateLimit limits requests per client IP with a token bucket. Limited
// requests get a 429 with a Retry-After hint.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	lim := newLimiter(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowed, retryAfter := lim.take(c.RealIP())
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if !allowed {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
