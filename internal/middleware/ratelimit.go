package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ParseRate parses limits written as "N per second|minute|hour|day".
// The burst equals N.
func ParseRate(s string) (rate.Limit, int, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 3 || fields[1] != "per" {
		return 0, 0, fmt.Errorf("invalid rate %q: want \"N per unit\"", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid rate %q: count must be a positive integer", s)
	}

	var period time.Duration
	switch strings.TrimSuffix(fields[2], "s") {
	case "second":
		period = time.Second
	case "minute":
		period = time.Minute
	case "hour":
		period = time.Hour
	case "day":
		period = 24 * time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate %q: unknown unit %q", s, fields[2])
	}
	return rate.Limit(float64(n) / period.Seconds()), n, nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	onLimit http.HandlerFunc

	mu       sync.Mutex
	visitors map[string]*visitor

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter from a rate string and starts its eviction
// loop. onLimit writes the response for throttled requests. Call Close to stop.
func NewRateLimiter(spec string, onLimit http.HandlerFunc) (*RateLimiter, error) {
	limit, burst, err := ParseRate(spec)
	if err != nil {
		return nil, err
	}
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}

	// A bucket idle for one full period has refilled.
	idleTTL := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	rl := &RateLimiter{
		limit:    limit,
		burst:    burst,
		idleTTL:  idleTTL,
		onLimit:  onLimit,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go rl.evictLoop(min(idleTTL, time.Minute))
	return rl, nil
}

// Handler wraps next with the limit.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			slog.Warn("Rate limit exceeded", "path", r.URL.Path, "client", clientIP(r))
			rl.onLimit(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close stops the eviction loop.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (rl *RateLimiter) evictLoop(interval time.Duration) {
	defer close(rl.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	evicted := 0
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, key)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("Evicted idle rate limit entries", "count", evicted)
	}
	return evicted
}

// clientIP expects chi's RealIP middleware to have normalized RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
