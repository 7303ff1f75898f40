package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hrpay/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

type rateBucket struct {
	count int
	reset time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	clients map[string]*rateBucket
}

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(rl)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SensitiveMutationRateLimit applies a tighter per-actor budget to the
// loan mutation endpoints than the global limiter allows.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	mutationLimit := max(baseLimit/2, 1)
	sensitiveByActor := newRateLimiter(mutationLimit, window, actorOrIPKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSensitiveMutation(r) {
				if !sensitiveByActor.enforce(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.CompanyID + ":" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		if len(parts) > 0 {
			value := strings.TrimSpace(parts[0])
			if value != "" {
				return value
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func newRateLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *rateLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		clients: map[string]*rateBucket{},
	}
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.limit <= 0 {
		return true
	}

	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	now := time.Now()

	rl.mu.Lock()
	bucket, ok := rl.clients[key]
	if !ok || now.After(bucket.reset) {
		bucket = &rateBucket{count: 0, reset: now.Add(rl.window)}
		rl.clients[key] = bucket
	}
	bucket.count++
	remaining := rl.limit - bucket.count
	resetIn := durationSeconds(bucket.reset.Sub(now))
	overLimit := bucket.count > rl.limit
	rl.mu.Unlock()

	w.Header().Set("X-RateLimit-Limit", itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", itoa(max(remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", itoa(resetIn))

	if overLimit {
		w.Header().Set("Retry-After", itoa(max(resetIn, 1)))
		slog.Warn("rate limit exceeded",
			"key", key,
			"path", r.URL.Path,
			"method", r.Method,
			"limit", rl.limit,
			"windowSec", int(rl.window.Seconds()),
		)
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
		return false
	}

	return true
}

func durationSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	seconds := int(d.Seconds())
	if seconds <= 0 {
		return 1
	}
	return seconds
}

func isSensitiveMutation(r *http.Request) bool {
	if r == nil {
		return false
	}
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return false
	}

	path := normalizedAPIPath(r.URL.Path)
	if path == "/loans" || path == "/admin/jobs/overdue-sweep" {
		return true
	}
	if strings.HasPrefix(path, "/loans/") {
		if strings.HasSuffix(path, "/payments") || strings.HasSuffix(path, "/approve") {
			return true
		}
		if method == http.MethodPatch {
			return true
		}
	}
	return false
}

func normalizedAPIPath(path string) string {
	cleaned := strings.TrimSpace(path)
	if strings.HasPrefix(cleaned, "/api/v1") {
		cleaned = strings.TrimPrefix(cleaned, "/api/v1")
	}
	if cleaned == "" {
		return "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		return "/" + cleaned
	}
	return cleaned
}

func itoa(value int) string {
	return strconv.Itoa(value)
}
