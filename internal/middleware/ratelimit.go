package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps requests per client IP over a fixed window. Map clients
// are chatty while panning, so limits should be generous; the limiter is
// protection against scrapers hammering the feed endpoints, not a fairness
// scheduler.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit  int
	window time.Duration

	exemptIPs   map[string]struct{}
	exemptPaths []string

	logger *slog.Logger
}

type bucket struct {
	remaining int
	resetAt   time.Time
}

// NewRateLimiter allows limit requests per window for each IP. Exempt IPs
// bypass the limiter entirely; exempt path prefixes (health probes, the
// websocket upgrade) are never counted.
func NewRateLimiter(limit int, window time.Duration, exemptIPs []string, exemptPaths []string, logger *slog.Logger) *RateLimiter {
	ips := make(map[string]struct{}, len(exemptIPs))
	for _, ip := range exemptIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			ips[ip] = struct{}{}
		}
	}

	return &RateLimiter{
		buckets:     make(map[string]*bucket),
		limit:       limit,
		window:      window,
		exemptIPs:   ips,
		exemptPaths: exemptPaths,
		logger:      logger.With("component", "rate_limiter"),
	}
}

// Run evicts idle buckets until the context ends.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, b := range rl.buckets {
				if now.After(b.resetAt.Add(rl.window)) {
					delete(rl.buckets, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Allow consumes one token for the IP, refilling when the window rolled
// over.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[ip]
	if !ok || now.After(b.resetAt) {
		rl.buckets[ip] = &bucket{
			remaining: rl.limit - 1,
			resetAt:   now.Add(rl.window),
		}
		return true
	}

	if b.remaining > 0 {
		b.remaining--
		return true
	}
	return false
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exemptPaths {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := clientIP(r)
		if _, exempt := rl.exemptIPs[ip]; exempt {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.Allow(ip) {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TrackedIPs reports how many buckets are live, for the stats endpoint.
func (rl *RateLimiter) TrackedIPs() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func clientIP(r *http.Request) string {
	// Behind a reverse proxy the first X-Forwarded-For entry is the client.
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
