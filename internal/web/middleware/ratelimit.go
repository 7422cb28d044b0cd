package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle client's bucket is remembered.
const visitorTTL = 3 * time.Minute

// RateLimiter is a token bucket per client IP. Buckets hold a full minute
// of requests as burst and refill continuously.
type RateLimiter struct {
	perMinute int

	mu       sync.Mutex
	visitors *ttlworker.Cache[string, *rate.Limiter]
}

// NewRateLimiter allows perMinute requests per IP.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RateLimiter{
		perMinute: perMinute,
		visitors:  ttlworker.NewCache[string, *rate.Limiter](visitorTTL),
	}
}

// Allow consumes a token for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	l := rl.visitors.Get(ip)
	if l == nil {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)
	}
	// Re-setting refreshes the entry's expiry.
	rl.visitors.Set(ip, l)
	rl.mu.Unlock()
	return l.Allow()
}

// Handler rejects requests over the limit with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int((time.Minute / time.Duration(rl.perMinute)).Seconds())+1))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE001")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already rewritten for proxied requests.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSONError(w http.ResponseWriter, status int, msg, code string) {
	body, _ := sonic.Marshal(map[string]string{"error": msg, "code": code})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
