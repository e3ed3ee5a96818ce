package main

import (
	"context"
	"log/slog"
	"time"

	"cineshelf/internal/auth"
)

// startSessionPurgeWorker periodically removes expired sessions. The ticker
// factory is injectable so tests can drive the loop. The returned stop
// function blocks until the worker exits.
func startSessionPurgeWorker(ctx context.Context, sessions *auth.SessionManager, interval time.Duration, logger *slog.Logger, newTicker func(time.Duration) *time.Ticker) func() {
	if interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := newTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if err := sessions.PurgeExpired(); err != nil {
					logger.Warn("session purge failed", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
