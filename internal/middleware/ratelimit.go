package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	limit     rate.Limit
	burst     int
	window    time.Duration
	whitelist map[string]struct{}
	onLimit   func()
	logger    *slog.Logger

	stop chan struct{}
	once sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perWindow requests per window for every IP, refilled
// evenly across the window. IPs in whitelist bypass the limiter. A non-positive
// perWindow disables limiting.
func NewRateLimiter(perWindow int, window time.Duration, whitelist []string, logger *slog.Logger) *RateLimiter {
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}

	limit := rate.Inf
	if perWindow > 0 && window > 0 {
		limit = rate.Every(window / time.Duration(perWindow))
	}

	rl := &RateLimiter{
		clients:   make(map[string]*client),
		limit:     limit,
		burst:     perWindow,
		window:    window,
		whitelist: wl,
		logger:    logger.With("component", "rate_limiter"),
		stop:      make(chan struct{}),
	}

	if window > 0 {
		go rl.cleanupLoop(window * 2)
	}

	return rl
}

func (rl *RateLimiter) cleanupLoop(idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now, idle)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time, idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > idle {
			delete(rl.clients, ip)
		}
	}
}

// OnLimit registers a callback run for every rejected request
func (rl *RateLimiter) OnLimit(fn func()) {
	rl.onLimit = fn
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) IsWhitelisted(ip string) bool {
	_, ok := rl.whitelist[ip]
	return ok
}

// Allow reports whether a request from ip may proceed now
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.limit == rate.Inf {
		return true
	}

	rl.mu.Lock()
	c, exists := rl.clients[ip]
	if !exists {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = time.Now()
	rl.mu.Unlock()

	return c.limiter.Allow()
}

// Middleware returns an HTTP middleware that applies rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if rl.IsWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.Allow(ip) {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			if rl.onLimit != nil {
				rl.onLimit()
			}
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) retryAfterSeconds() int {
	if rl.limit <= 0 {
		return int(rl.window.Seconds())
	}
	seconds := int(time.Duration(float64(time.Second) / float64(rl.limit)).Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}

// ClientIP resolves the caller address, honouring proxy headers
func ClientIP(r *http.Request) string {
	// X-Forwarded-For: "client, proxy1, proxy2"
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Stats returns current rate limiter statistics
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"tracked_ips":       len(rl.clients),
		"rate_per_window":   rl.burst,
		"window_seconds":    rl.window.Seconds(),
		"whitelist_entries": len(rl.whitelist),
	}
}
