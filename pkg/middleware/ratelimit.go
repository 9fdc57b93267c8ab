package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	seen   time.Time
}

// Limiter is a token bucket per client key. Each key holds up to burst
// tokens and regains perMinute of them every minute.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perMinute int
	burst     int
	now       func() time.Time
}

func NewLimiter(perMinute, burst int) *Limiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &Limiter{
		buckets:   make(map[string]*bucket),
		perMinute: perMinute,
		burst:     burst,
		now:       time.Now,
	}
}

// Allow takes one token from key's bucket if one is left.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.burst - 1), seen: now}
		return l.burst > 0
	}
	b.tokens = min(float64(l.burst), b.tokens+now.Sub(b.seen).Minutes()*float64(l.perMinute))
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfter is the wait until one token has refilled.
func (l *Limiter) retryAfter() time.Duration {
	if l.perMinute <= 0 {
		return time.Minute
	}
	return time.Minute / time.Duration(l.perMinute)
}

// Prune drops buckets idle for longer than a full refill.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * time.Minute * time.Duration(max(l.burst, 1)) / time.Duration(max(l.perMinute, 1)))
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// StartPruning prunes every interval until ctx ends.
func (l *Limiter) StartPruning(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Prune()
			}
		}
	}()
}

// RateLimit rejects requests over the client's budget with 429. Clients
// are keyed by remote IP; health probes are never limited. A nil limiter
// disables the middleware.
func RateLimit(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthPath(r.URL.Path) || l.Allow(clientKey(r)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(l.retryAfter().Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isHealthPath(p string) bool {
	return p == "/health" || len(p) > 8 && p[:8] == "/health/"
}
