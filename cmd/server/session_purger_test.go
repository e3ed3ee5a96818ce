package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"cineshelf/internal/auth"
)

func TestSessionPurgeWorker(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := auth.NewMemorySessionStore()
	sessions := auth.NewSessionManager(
		auth.WithStore(store),
		auth.WithTTL(time.Hour),
		auth.WithSessionClock(func() time.Time { return current }),
	)
	session, err := sessions.Create("acct_1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	current = current.Add(2 * time.Hour)

	tick := make(chan time.Time, 1)
	newTicker := func(time.Duration) *time.Ticker {
		ticker := time.NewTicker(time.Hour)
		ticker.C = tick
		return ticker
	}
	stop := startSessionPurgeWorker(context.Background(), sessions, time.Minute, slog.Default(), newTicker)

	tick <- current
	deadline := time.After(2 * time.Second)
	for {
		if _, ok, _ := store.Get(session.Token); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expired session never purged")
		case <-time.After(5 * time.Millisecond):
		}
	}
	stop()
}

func TestSessionPurgeWorkerDisabled(t *testing.T) {
	sessions := auth.NewSessionManager()
	stop := startSessionPurgeWorker(context.Background(), sessions, 0, slog.Default(), time.NewTicker)
	stop()
}
