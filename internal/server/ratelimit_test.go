package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	bucket := newTokenBucket(1, 2)
	bucket.now = func() time.Time { return current }
	bucket.lastRefill = current

	if !bucket.take() || !bucket.take() {
		t.Fatalf("burst capacity not honoured")
	}
	if bucket.take() {
		t.Fatalf("bucket should be empty")
	}

	current = current.Add(time.Second)
	if !bucket.take() {
		t.Fatalf("bucket did not refill")
	}
	if bucket.take() {
		t.Fatalf("refill exceeded rate")
	}
}

func TestMemoryThrottleStoreWindow(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := newMemoryThrottleStore()
	store.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		allowed, _, err := store.Allow("key", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("attempt %d blocked under the limit", i)
		}
	}
	allowed, retryAfter, err := store.Allow("key", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatalf("limit not enforced")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", retryAfter)
	}

	// A fresh window resets the count.
	current = current.Add(2 * time.Minute)
	if allowed, _, _ := store.Allow("key", 3, time.Minute); !allowed {
		t.Fatalf("window did not reset")
	}
	// Other keys are independent.
	if allowed, _, _ := store.Allow("other", 3, time.Minute); !allowed {
		t.Fatalf("unrelated key throttled")
	}
}

func TestLoginThrottleMiddleware(t *testing.T) {
	limiter, err := newRateLimiter(RateLimitConfig{
		LoginLimit:  2,
		LoginWindow: time.Minute,
	}, slog.Default())
	if err != nil {
		t.Fatalf("newRateLimiter: %v", err)
	}
	defer limiter.close()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := limiter.middleware(next)

	attempt := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := attempt("10.0.0.1:5000"); code != http.StatusOK {
			t.Fatalf("attempt %d: %d", i, code)
		}
	}
	if code := attempt("10.0.0.1:5000"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the login limit, got %d", code)
	}
	// A different client IP has its own budget.
	if code := attempt("10.0.0.2:5000"); code != http.StatusOK {
		t.Fatalf("unrelated IP throttled: %d", code)
	}
	// Non-login traffic is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/movies", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("non-login request throttled: %d", rec.Code)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	limiter, err := newRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
	}, slog.Default())
	if err != nil {
		t.Fatalf("newRateLimiter: %v", err)
	}
	defer limiter.close()

	wrapped := limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/movies", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request blocked: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the bucket drained, got %d", rec.Code)
	}
}
