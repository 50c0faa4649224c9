package agent

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTTLInterval is how often the TTL worker sweeps.
const DefaultTTLInterval = 5 * time.Minute

// ConversationCleaner deletes conversations idle longer than a TTL.
type ConversationCleaner interface {
	CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error)
}

// StartTTLWorker runs a background goroutine that periodically deletes
// conversations idle longer than ttl. It stops when ctx is done.
func StartTTLWorker(ctx context.Context, cleaner ConversationCleaner, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTTLInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupExpiredConversations(ctx, cleaner, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupExpiredConversations(ctx context.Context, cleaner ConversationCleaner, ttl time.Duration) int64 {
	deleted, err := cleaner.CleanupExpiredConversations(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to cleanup expired conversations", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("TTL worker cleaned up expired conversations", "count", deleted)
	}
	return deleted
}
