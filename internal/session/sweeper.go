package session

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that periodically evicts idle
// sessions. It stops when ctx is done.
func StartSweeper(ctx context.Context, st *Store, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		slog.Info("Session sweeper disabled")
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := st.EvictIdle(ttl); n > 0 {
					slog.Info("Session sweeper evicted idle sessions", "count", n, "remaining", st.Len())
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
