package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter holds rate limiters for each IP address
type IPRateLimiter struct {
	limiters map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a new IP-based rate limiter
// rps: requests per second allowed per IP
// burst: maximum burst size
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	limiter := &IPRateLimiter{
		limiters: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  5 * time.Minute,
		stopCh:   make(chan struct{}),
	}

	// Start cleanup goroutine to remove idle limiters
	go limiter.cleanupRoutine()

	return limiter
}

// Allow reports whether a request from ip may proceed
func (i *IPRateLimiter) Allow(ip string) bool {
	return i.getLimiter(ip).Allow()
}

// getLimiter returns the rate limiter for an IP address
func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, exists := i.limiters[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(i.rps, i.burst)}
		i.limiters[ip] = v
	}
	v.lastSeen = time.Now()

	return v.limiter
}

// Stop terminates the cleanup goroutine
func (i *IPRateLimiter) Stop() {
	i.stopOnce.Do(func() { close(i.stopCh) })
}

// cleanupRoutine periodically removes limiters of idle clients to prevent memory leaks
func (i *IPRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(i.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.evictIdle(time.Now())
		case <-i.stopCh:
			return
		}
	}
}

func (i *IPRateLimiter) evictIdle(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for ip, v := range i.limiters {
		if now.Sub(v.lastSeen) > i.idleTTL {
			delete(i.limiters, ip)
		}
	}
}

// RateLimit middleware limits requests per IP address
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the client address from X-Forwarded-For, X-Real-IP or RemoteAddr
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
