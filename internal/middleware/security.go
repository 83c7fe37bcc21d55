package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a global token bucket plus one bucket per client IP
type RateLimiter struct {
	global   *rate.Limiter
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	perIP    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing rps requests per second overall
// and perIPRPS per client, both with the given burst
func NewRateLimiter(rps, perIPRPS float64, burst int) *RateLimiter {
	return &RateLimiter{
		global:   rate.NewLimiter(rate.Limit(rps), burst),
		limiters: make(map[string]*clientLimiter),
		perIP:    rate.Limit(perIPRPS),
		burst:    burst,
	}
}

// Allow reports whether a request from ip may proceed
func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.global.Allow() {
		return false
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.limiters[ip]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.perIP, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now
	if len(rl.limiters) > 1_000 {
		for k, v := range rl.limiters {
			if v.lastSeen.Before(now.Add(-10 * time.Minute)) {
				delete(rl.limiters, k)
			}
		}
	}
	return entry.limiter.Allow()
}

// RateLimitMiddleware rejects requests over the limit. onDrop may be nil.
func RateLimitMiddleware(limiter *RateLimiter, onDrop func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			slog.WarnContext(c.Request.Context(), "rate limit exceeded", "ip", ip)
			if onDrop != nil {
				onDrop()
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 1,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}

// CORSMiddleware allows the listed origins. An entry without a scheme
// matches on host only; "*" allows any origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimRight(c.GetHeader("Origin"), "/")

		if origin != "" && OriginAllowed(origin, allowedOrigins) {
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginAllowed reports whether origin matches one of allowed
func OriginAllowed(origin string, allowed []string) bool {
	for _, o := range allowed {
		trimmed := strings.TrimRight(strings.TrimSpace(o), "/")
		if trimmed == "" {
			continue
		}
		if trimmed == "*" || origin == trimmed {
			return true
		}
		if !strings.Contains(trimmed, "://") {
			if parsed, err := url.Parse(origin); err == nil && parsed.Host == trimmed {
				return true
			}
		}
	}
	return false
}
