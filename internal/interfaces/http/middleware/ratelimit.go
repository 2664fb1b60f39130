package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per key.
	RequestsPerSecond float64
	// BurstSize is the number of requests allowed above the sustained rate.
	BurstSize int
	// KeyFunc extracts the limit key; the client IP when nil.
	KeyFunc func(c *gin.Context) string
	// SkipPaths bypass limiting.
	SkipPaths []string
	// IdleTTL drops limiters of keys not seen for this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the limits used when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		SkipPaths:         []string{"/healthz", "/readyz", "/metrics"},
		IdleTTL:           5 * time.Minute,
	}
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key.
type KeyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	keys    map[string]*keyedLimiter
	swept   time.Time
}

// NewKeyedLimiter allows rps requests per second per key with the given burst.
func NewKeyedLimiter(rps float64, burst int, idleTTL time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		keys:    make(map[string]*keyedLimiter),
		swept:   time.Now(),
	}
}

// Allow consumes one token for key.  It returns the tokens left and, when
// refused, how long until the next token.
func (l *KeyedLimiter) Allow(key string) (bool, int, time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.keys[key] = kl
	}
	kl.lastSeen = now

	if kl.limiter.AllowN(now, 1) {
		return true, int(math.Max(0, kl.limiter.TokensAt(now))), 0
	}
	r := kl.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, 0, wait
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// sweep drops idle keys at most once per idleTTL.  Callers hold mu.
func (l *KeyedLimiter) sweep(now time.Time) {
	if l.idleTTL <= 0 || now.Sub(l.swept) < l.idleTTL {
		return
	}
	for k, kl := range l.keys {
		if now.Sub(kl.lastSeen) >= l.idleTTL {
			delete(l.keys, k)
		}
	}
	l.swept = now
}

// RateLimit refuses requests over the per-client rate with 429 and a
// Retry-After header.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	limiter := NewKeyedLimiter(config.RequestsPerSecond, config.BurstSize, config.IdleTTL)
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		allowed, remaining, wait := limiter.Allow(keyFunc(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.BurstSize))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    errors.ErrCodeTooManyRequests.String(),
					"message": "rate limit exceeded, please retry later",
				},
			})
			return
		}
		c.Next()
	}
}
