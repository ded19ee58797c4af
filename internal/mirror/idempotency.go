package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Saivel1/panelsync/internal/cache"
)

// Guard suppresses duplicate webhook deliveries. Each (username, action)
// pair is claimed atomically in the cache for its action's TTL; only the
// first claimant processes the event.
type Guard struct {
	cache  cache.Cache
	logger *slog.Logger
}

// NewGuard creates a deduplication guard over the given cache.
func NewGuard(c cache.Cache, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{cache: c, logger: logger}
}

func dedupKey(username string, action Action) string {
	return fmt.Sprintf("dedup:%s:%s", username, action)
}

// Acquire attempts to claim the (username, action) pair. Returns true when
// this delivery is the first within the window and should be processed.
// Check and claim happen in one cache operation so concurrent deliveries of
// the same event cannot both win.
func (g *Guard) Acquire(ctx context.Context, username string, action Action) (bool, error) {
	ok, err := g.cache.SetNX(ctx, dedupKey(username, action), []byte("1"), TTLFor(action))
	if err != nil {
		return false, fmt.Errorf("claim dedup key: %w", err)
	}
	if !ok {
		g.logger.Debug("duplicate event suppressed", "username", username, "action", string(action))
	}
	return ok, nil
}

// Seen reports whether the pair is currently claimed, without claiming it.
func (g *Guard) Seen(ctx context.Context, username string, action Action) (bool, error) {
	return g.cache.Exists(ctx, dedupKey(username, action))
}

// Release drops a claim early, letting the next delivery through. Used when
// processing failed before any side effect happened.
func (g *Guard) Release(ctx context.Context, username string, action Action) error {
	return g.cache.Delete(ctx, dedupKey(username, action))
}
