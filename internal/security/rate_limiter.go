package security

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/doc-sentinel/internal/config"
)

const (
	cleanupInterval = time.Minute
	clientIdleTTL   = 3 * time.Minute
)

// RateLimiter applies a token bucket per client IP
type RateLimiter struct {
	enabled        bool
	limit          rate.Limit
	burst          int
	trustedProxies map[string]bool

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.SecurityConfig) *RateLimiter {
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 1
	}
	trusted := make(map[string]bool, len(cfg.TrustedProxies))
	for _, ip := range cfg.TrustedProxies {
		trusted[strings.TrimSpace(ip)] = true
	}
	return &RateLimiter{
		enabled:        cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMin > 0,
		limit:          rate.Limit(float64(cfg.RateLimit.RequestsPerMin) / 60.0),
		burst:          burst,
		trustedProxies: trusted,
		clients:        make(map[string]*clientLimiter),
		now:            time.Now,
	}
}

// Allow reports whether a request from clientIP may proceed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	c, ok := r.clients[clientIP]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientIP] = c
	}
	now := r.now()
	c.lastSeen = now
	r.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked client IPs
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Cleanup forgets clients that have been idle for a while
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-clientIdleTTL)
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
}

// StartCleanup runs Cleanup periodically until ctx is done
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ClientIP returns the caller's address. Forwarding headers are honoured only
// when the direct peer is a trusted proxy.
func (r *RateLimiter) ClientIP(req *http.Request) string {
	remote, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		remote = req.RemoteAddr
	}
	if !r.trustedProxies[remote] {
		return remote
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return remote
}
