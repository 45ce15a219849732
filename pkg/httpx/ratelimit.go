package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cataloghq/authcore/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the token-bucket parameters for a limiter profile.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the window.
	RequestsPerWindow int
	// Window is the time window for rate limiting.
	Window time.Duration
	// Burst allows temporary bursts above the steady rate.
	Burst int
}

// Limiter profiles. Authentication endpoints get the strict profile; the
// gate runs before the auth core, which stays correct regardless of call
// frequency.
var (
	// StrictLimit for credential and 2FA endpoints (brute force prevention).
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit for authenticated state-changing operations.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit for health and read endpoints.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}
)

// KeyExtractor derives the rate-limit bucket key from a request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP, honoring proxy headers.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// AccountKeyExtractor keys by authenticated account, falling back to IP for
// anonymous requests.
func AccountKeyExtractor(r *http.Request) string {
	if id := AccountIDFromContext(r.Context()); id != "" {
		return "acct:" + id
	}
	return "ip:" + IPKeyExtractor(r)
}

type limiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*registryEntry
	config   RateLimitConfig
}

type registryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterRegistry(config RateLimitConfig) *limiterRegistry {
	reg := &limiterRegistry{
		limiters: make(map[string]*registryEntry),
		config:   config,
	}
	go reg.cleanupLoop()
	return reg
}

func (reg *limiterRegistry) get(key string) *rate.Limiter {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	entry, ok := reg.limiters[key]
	if !ok {
		limit := rate.Every(reg.config.Window / time.Duration(reg.config.RequestsPerWindow))
		entry = &registryEntry{limiter: rate.NewLimiter(limit, reg.config.Burst)}
		reg.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// cleanupLoop evicts buckets idle for several windows to bound memory.
func (reg *limiterRegistry) cleanupLoop() {
	interval := reg.config.Window * 3
	for range time.Tick(interval) {
		cutoff := time.Now().Add(-interval)
		reg.mu.Lock()
		for key, entry := range reg.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(reg.limiters, key)
			}
		}
		reg.mu.Unlock()
	}
}

// RateLimitMiddleware enforces the given profile keyed by keyFn.
func RateLimitMiddleware(config RateLimitConfig, keyFn KeyExtractor) Middleware {
	reg := newLimiterRegistry(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			limiter := reg.get(key)

			if !limiter.Allow() {
				reservation := limiter.Reserve()
				delay := reservation.Delay()
				reservation.Cancel()

				retryAfter := max(int(delay.Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))

				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded", "too many requests, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client IP only.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor)
}

// RateLimitByAccount limits by authenticated account, IP fallback.
func RateLimitByAccount(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, AccountKeyExtractor)
}
