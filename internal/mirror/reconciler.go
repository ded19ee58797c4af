package mirror

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Saivel1/panelsync/internal/panel"
	"github.com/Saivel1/panelsync/internal/store"
)

// Reconciler drains the retry queue in the background, replaying mirror
// operations that failed synchronously. Replay is create-with-options; a
// conflict means the account made it across at some point, so the entry is
// done either way.
type Reconciler struct {
	registry  *panel.Registry
	queue     store.RetryQueue
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewReconciler creates a reconciler. Non-positive interval and batch size
// fall back to 5 minutes and 50 entries.
func NewReconciler(registry *panel.Registry, queue store.RetryQueue, interval time.Duration, batchSize int, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		registry:  registry,
		queue:     queue,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run drains the queue on a fixed interval until the context is canceled.
// Intended to be launched as a goroutine from main.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce replays one batch of queued operations. Entries that succeed or
// conflict are removed; entries that fail again stay queued with their
// attempt counter bumped.
func (r *Reconciler) DrainOnce(ctx context.Context) {
	entries, err := r.queue.List(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("retry queue listing failed", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	r.logger.Info("draining retry queue", "entries", len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		r.replay(ctx, entry)
	}
}

func (r *Reconciler) replay(ctx context.Context, entry *store.RetryEntry) {
	target, err := r.registry.ByBaseURL(entry.PanelURL)
	if err != nil {
		// The panel left the config; the entry can never be applied.
		r.logger.Warn("dropping unreplayable entry", "id", entry.ID, "panel_url", entry.PanelURL)
		if derr := r.queue.Delete(ctx, entry.ID); derr != nil {
			r.logger.Error("retry entry delete failed", "id", entry.ID, "error", derr)
		}
		return
	}

	_, err = target.CreateUserWithOptions(ctx, entry.Username, entry.ProxyID, entry.InboundList(), entry.Expire)
	switch {
	case err == nil, errors.Is(err, panel.ErrConflict):
		if derr := r.queue.Delete(ctx, entry.ID); derr != nil {
			r.logger.Error("retry entry delete failed", "id", entry.ID, "error", derr)
			return
		}
		r.logger.Info("queued operation replayed", "id", entry.ID,
			"username", entry.Username, "panel", target.Endpoint().Name)
	default:
		if merr := r.queue.MarkAttempt(ctx, entry.ID); merr != nil {
			r.logger.Error("attempt bump failed", "id", entry.ID, "error", merr)
		}
		r.logger.Warn("replay failed, keeping entry", "id", entry.ID,
			"username", entry.Username, "attempts", entry.Attempts+1, "error", err)
	}
}
