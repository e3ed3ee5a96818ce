package auth

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	manager := NewSessionManager()
	session, err := manager.Create("acct_1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.Token == "" {
		t.Fatalf("empty token")
	}

	accountID, ok := manager.Validate(session.Token)
	if !ok || accountID != "acct_1" {
		t.Fatalf("Validate returned %q, %v", accountID, ok)
	}

	manager.Revoke(session.Token)
	if _, ok := manager.Validate(session.Token); ok {
		t.Fatalf("revoked token still valid")
	}
}

func TestValidateUnknownToken(t *testing.T) {
	manager := NewSessionManager()
	if _, ok := manager.Validate("nope"); ok {
		t.Fatalf("unknown token validated")
	}
	if _, ok := manager.Validate(""); ok {
		t.Fatalf("empty token validated")
	}
}

func TestSessionAbsoluteExpiry(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	manager := NewSessionManager(
		WithTTL(time.Hour),
		WithSessionClock(func() time.Time { return current }),
	)
	session, err := manager.Create("acct_1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, ok := manager.Validate(session.Token); ok {
		t.Fatalf("expired token still valid")
	}
}

func TestSessionIdleTimeoutSlides(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	manager := NewSessionManager(
		WithTTL(24*time.Hour),
		WithIdleTimeout(30*time.Minute),
		WithSessionClock(func() time.Time { return current }),
	)
	session, err := manager.Create("acct_1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Touch the session every 20 minutes; it must stay alive past the idle
	// window because each use slides the expiry.
	for i := 0; i < 4; i++ {
		current = current.Add(20 * time.Minute)
		if _, ok := manager.Validate(session.Token); !ok {
			t.Fatalf("session expired while active (step %d)", i)
		}
	}

	// Going quiet for longer than the idle timeout ends the session.
	current = current.Add(31 * time.Minute)
	if _, ok := manager.Validate(session.Token); ok {
		t.Fatalf("idle session still valid")
	}
}

func TestIdleTimeoutNeverOutlivesAbsoluteTTL(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	manager := NewSessionManager(
		WithTTL(time.Hour),
		WithIdleTimeout(45*time.Minute),
		WithSessionClock(func() time.Time { return current }),
	)
	session, err := manager.Create("acct_1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	current = current.Add(40 * time.Minute)
	if _, ok := manager.Validate(session.Token); !ok {
		t.Fatalf("session expired early")
	}
	// Even with constant activity the absolute TTL wins.
	current = current.Add(25 * time.Minute)
	if _, ok := manager.Validate(session.Token); ok {
		t.Fatalf("session outlived its absolute TTL")
	}
}

func TestPurgeExpired(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore()
	manager := NewSessionManager(
		WithStore(store),
		WithTTL(time.Hour),
		WithSessionClock(func() time.Time { return current }),
	)
	stale, err := manager.Create("acct_1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	current = current.Add(90 * time.Minute)
	fresh, err := manager.Create("acct_2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := manager.PurgeExpired(); err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if _, ok, _ := store.Get(stale.Token); ok {
		t.Fatalf("stale session survived purge")
	}
	if _, ok, _ := store.Get(fresh.Token); !ok {
		t.Fatalf("fresh session purged")
	}
}
