package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Per-client budget defaults, in queries. A retrieve batch of n queries
// costs n tokens; chunk and classify cost one.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Route classes. Each class has its own bucket per client.
const (
	classRetrieve = "retrieve"
	classChunk    = "chunk"
	classClassify = "classify"
)

// idleBucketTTL is how long a client's unused buckets are kept.
const idleBucketTTL = 5 * time.Minute

// bucketKey identifies one client's bucket for one route class.
type bucketKey struct {
	class string
	ip    string
}

// bucket is a token bucket plus the time it was last drawn from.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter meters query volume per client and route class.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	// rps is the sustained refill rate in queries per second.
	rps rate.Limit
	// burst is the bucket size, and the most a single batch is charged.
	burst int
	log   *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts its eviction goroutine,
// which exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[bucketKey]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// bucketFor returns the limiter for key, creating a full bucket on first use.
func (rl *rateLimiter) bucketFor(key bucketKey) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
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

// evict drops buckets idle for longer than idleBucketTTL.
func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-idleBucketTTL)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// limit admits a request to class if the client's bucket holds one token.
func (rl *rateLimiter) limit(class string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.bucketFor(bucketKey{class, ip}).Allow() {
			rl.reject(w, r, class, ip, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// charge draws n further tokens from the client's class bucket, after limit
// has taken the first. The total charged for one request never exceeds the
// burst, so any batch can eventually run. It writes the 429 and returns
// false when the bucket cannot cover n. A nil limiter admits everything.
func (rl *rateLimiter) charge(w http.ResponseWriter, r *http.Request, class string, n int) bool {
	if rl == nil || n <= 0 {
		return true
	}
	n = min(n, rl.burst-1)
	if n <= 0 {
		return true
	}
	ip := clientIP(r)
	if !rl.bucketFor(bucketKey{class, ip}).AllowN(time.Now(), n) {
		rl.reject(w, r, class, ip, n+1)
		return false
	}
	return true
}

// reject answers 429 with a Retry-After long enough to refill cost tokens.
func (rl *rateLimiter) reject(w http.ResponseWriter, r *http.Request, class, ip string, cost int) {
	logging.FromContext(r.Context()).Warn("rate limit exceeded",
		slog.String("class", class),
		slog.String("ip", ip),
		slog.Int("cost", cost),
	)
	w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter(cost)))
	writeError(w, r, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded: %s request costs %d of %d queries per client", class, cost, rl.burst))
}

// retryAfter returns the whole seconds needed to refill cost tokens, at
// least one.
func (rl *rateLimiter) retryAfter(cost int) int {
	if rl.rps <= 0 {
		return 1
	}
	secs := int(float64(cost)/float64(rl.rps) + 0.999)
	return max(secs, 1)
}

// clientIP returns the remote IP without its port. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
