package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
	"github.com/kgraph-io/plater-automat/internal/httputil"
	"github.com/kgraph-io/plater-automat/internal/logging"
)

// RateLimiter caps request volume per client IP with a token bucket, applied
// to every route of the router it is mounted on, so that a single caller
// cannot monopolize the service.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	limit    int
	window   time.Duration
	logger   *logging.Logger
}

// NewRateLimiter constructs a RateLimiter allowing limit requests per window,
// bursting up to burst.
func NewRateLimiter(limit int, window time.Duration, burst int, logger *logging.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	requestsPerSecond := float64(limit) / window.Seconds()
	if requestsPerSecond < 0 {
		requestsPerSecond = 0
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler rejects requests over budget with 429 and a Retry-After header.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := httputil.ClientIP(r)
		if key == "" {
			key = "unknown"
		}

		if !rl.getLimiter(key).Allow() {
			if rl.logger != nil {
				rl.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
					"key":  key,
					"path": r.URL.Path,
				}).Warn("rate limit exceeded")
			}
			if seconds := int(math.Ceil(rl.window.Seconds())); seconds > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			httputil.WriteErrorResponse(w, r, svcerrors.RateLimitExceeded(rl.limit, rl.window.String()))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup drops every tracked limiter once the table grows unreasonably
// large, trading a brief relaxation in enforcement for bounded memory.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup on a ticker until the returned stop func is
// called.
func (rl *RateLimiter) StartCleanup(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
