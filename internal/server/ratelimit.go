package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cineshelf/internal/api"
)

// RateLimitConfig controls the global request bucket and the per-IP login
// throttle. Zero values disable the corresponding limit.
type RateLimitConfig struct {
	// RequestsPerSecond refills the global bucket; Burst caps it.
	RequestsPerSecond float64
	Burst             int
	// LoginLimit bounds login attempts per client IP within LoginWindow.
	LoginLimit  int
	LoginWindow time.Duration
	// Redis enables a shared throttle store so limits hold across replicas.
	Redis RedisConfig
}

// throttleStore counts login attempts per key inside a rolling window.
type throttleStore interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration, error)
	Close() error
}

type rateLimiter struct {
	global  *tokenBucket
	logins  throttleStore
	limit   int
	window  time.Duration
	logger  *slog.Logger
	enabled bool
}

func newRateLimiter(cfg RateLimitConfig, logger *slog.Logger) (*rateLimiter, error) {
	limiter := &rateLimiter{
		limit:  cfg.LoginLimit,
		window: cfg.LoginWindow,
		logger: logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RequestsPerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		limiter.global = newTokenBucket(cfg.RequestsPerSecond, burst)
		limiter.enabled = true
	}
	if cfg.LoginLimit > 0 && cfg.LoginWindow > 0 {
		if len(cfg.Redis.Addrs) > 0 {
			store, err := newRedisThrottleStore(cfg.Redis)
			if err != nil {
				return nil, err
			}
			limiter.logins = store
		} else {
			limiter.logins = newMemoryThrottleStore()
		}
		limiter.enabled = true
	}
	return limiter, nil
}

func (l *rateLimiter) close() {
	if l.logins != nil {
		_ = l.logins.Close()
	}
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	if !l.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.global != nil && !l.global.take() {
			api.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if l.logins != nil && r.Method == http.MethodPost && r.URL.Path == "/auth/login" {
			key := "cineshelf:login:" + clientIP(r)
			allowed, retryAfter, err := l.logins.Allow(key, l.limit, l.window)
			if err != nil {
				// Throttle store failures must not take logins down with
				// them; fall through and let the attempt proceed.
				l.logger.Warn("login throttle unavailable", "error", err)
			} else if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+1)))
				}
				api.WriteError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// tokenBucket is a minimal refilling bucket guarded by a mutex.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(ratePerSecond float64, burst int) *tokenBucket {
	now := func() time.Time { return time.Now() }
	return &tokenBucket{
		tokens:     float64(burst),
		capacity:   float64(burst),
		refillRate: ratePerSecond,
		lastRefill: now(),
		now:        now,
	}
}

func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.now()
	elapsed := current.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = current
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// memoryThrottleStore is the single-instance fallback for login throttling.
type memoryThrottleStore struct {
	mu      sync.Mutex
	windows map[string]*throttleWindow
	now     func() time.Time
}

type throttleWindow struct {
	count   int
	resetAt time.Time
}

func newMemoryThrottleStore() *memoryThrottleStore {
	return &memoryThrottleStore{
		windows: make(map[string]*throttleWindow),
		now:     func() time.Time { return time.Now() },
	}
}

func (s *memoryThrottleStore) Allow(key string, limit int, window time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.now()
	entry, ok := s.windows[key]
	if !ok || current.After(entry.resetAt) {
		s.windows[key] = &throttleWindow{count: 1, resetAt: current.Add(window)}
		return true, 0, nil
	}
	entry.count++
	if entry.count > limit {
		return false, entry.resetAt.Sub(current), nil
	}
	return true, 0, nil
}

func (s *memoryThrottleStore) Close() error {
	return nil
}

var _ throttleStore = (*memoryThrottleStore)(nil)

func (cfg RedisConfig) validate() error {
	if len(cfg.Addrs) == 0 {
		return fmt.Errorf("redis throttle store requires at least one address")
	}
	return nil
}
