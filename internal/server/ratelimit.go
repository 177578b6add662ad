package server

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/pdfchat-go/internal/logging"
)

const (
	// defaultRateLimit is the per-IP sustained rate (requests/second) on
	// limited routes.
	defaultRateLimit = 10
	// defaultRateBurst is the per-IP burst on limited routes.
	defaultRateBurst = 20

	// limiterIdleTTL is how long an IP's bucket is kept after its last request.
	limiterIdleTTL = 5 * time.Minute
)

// ipLimiter is one client IP's token bucket.
type ipLimiter struct {
	// limiter is the IP's token bucket.
	limiter *rate.Limiter
	// lastSeen is the time of the IP's latest request, used for eviction.
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket on the routes that upload,
// process, or call the model. Idle buckets are evicted every minute.
type rateLimiter struct {
	// mu guards limiters.
	mu sync.Mutex
	// limiters maps client IP to its bucket.
	limiters map[string]*ipLimiter
	// rps is the sustained rate per IP in requests/second.
	rps rate.Limit
	// burst is the bucket size per IP.
	burst int
	// log receives rate-limit events.
	log *slog.Logger
}

// newRateLimiter starts the eviction goroutine; call the returned func to
// stop it.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-limiterIdleTTL)
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// middleware rejects over-limit requests with 429 and a Retry-After header
// giving the whole seconds until the next token is available.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		res := rl.getLimiter(ip).Reserve()

		var wait time.Duration
		switch {
		case !res.OK():
			wait = time.Second
		case res.Delay() > 0:
			wait = res.Delay()
			res.Cancel()
		default:
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
			slog.Duration("retry_after", wait),
		)
		secs := max(int(math.Ceil(wait.Seconds())), 1)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	})
}

// clientIP returns RemoteAddr without its port. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
