package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Saivel1/panelsync/internal/panel"
	"github.com/Saivel1/panelsync/internal/store"
)

// Coordinator applies webhook events to the peer panel and keeps the link
// records current. Failures never bubble back to the panel as webhook
// errors; they land in the retry queue instead.
type Coordinator struct {
	registry *panel.Registry
	guard    *Guard
	links    store.LinkStore
	queue    store.RetryQueue
	logger   *slog.Logger
}

// NewCoordinator wires the mirror flow together.
func NewCoordinator(registry *panel.Registry, guard *Guard, links store.LinkStore, queue store.RetryQueue, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		guard:    guard,
		links:    links,
		queue:    queue,
		logger:   logger,
	}
}

// HandleBatch processes a webhook payload event by event. One bad event
// does not stop the rest; the panel retries delivery on its own schedule
// and the guard absorbs the duplicates.
func (c *Coordinator) HandleBatch(ctx context.Context, events []Event) {
	for _, ev := range events {
		if err := c.HandleEvent(ctx, ev); err != nil {
			c.logger.Error("event processing failed",
				"username", ev.Username, "action", string(ev.Action), "error", err)
		}
	}
}

// HandleEvent applies one event. Duplicate deliveries inside the action's
// dedup window are silently dropped.
func (c *Coordinator) HandleEvent(ctx context.Context, ev Event) error {
	if ev.Username == "" {
		return fmt.Errorf("event without username")
	}

	first, err := c.guard.Acquire(ctx, ev.Username, ev.Action)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	switch ev.Action {
	case ActionUserCreated:
		return c.mirrorCreate(ctx, ev)
	case ActionUserUpdated:
		return c.mirrorUpdate(ctx, ev)
	case ActionUserExpired, ActionReachedDaysLeft:
		// Expiry notices only need deduplication; the panels expire
		// accounts on their own.
		c.logger.Debug("expiry notice absorbed", "username", ev.Username, "action", string(ev.Action))
		return nil
	default:
		c.logger.Warn("unknown action ignored", "username", ev.Username, "action", string(ev.Action))
		return nil
	}
}

// mirrorCreate replicates a freshly created account onto the peer panel and
// records the peer's subscription URL under the user's link. Only the peer
// slot is written here; the origin slot is populated by the provisioning
// flow when the account is first created through this service.
func (c *Coordinator) mirrorCreate(ctx context.Context, ev Event) error {
	peer, peerSlot := c.registry.Peer(ev.User.SubscriptionURL)

	created, err := peer.CreateUserWithOptions(ctx, ev.Username,
		ev.User.Proxies.VLESS.ID, ev.User.Inbounds.VLESS, int64(ev.User.Expire))
	if errors.Is(err, panel.ErrConflict) {
		// Already mirrored, most likely by an earlier delivery or the
		// reconciler. Nothing to do.
		c.logger.Debug("peer account already exists", "username", ev.Username, "panel", peer.Endpoint().Name)
		return nil
	}
	if err != nil {
		c.enqueueReplay(ctx, peer, ev)
		return nil
	}

	if err := c.recordLink(ctx, ev.Username, map[int]string{
		peerSlot: created.SubscriptionURL,
	}); err != nil {
		return fmt.Errorf("record link for %s: %w", ev.Username, err)
	}

	c.logger.Info("account mirrored", "username", ev.Username, "panel", peer.Endpoint().Name)
	return nil
}

// mirrorUpdate propagates an expiry change onto the peer panel and persists
// the subscription URL the peer reports back, which may have rotated.
func (c *Coordinator) mirrorUpdate(ctx context.Context, ev Event) error {
	peer, peerSlot := c.registry.Peer(ev.User.SubscriptionURL)

	updated, err := peer.ModifyUser(ctx, ev.Username, int64(ev.User.Expire))
	if err != nil {
		c.enqueueReplay(ctx, peer, ev)
		return nil
	}

	if err := c.recordLink(ctx, ev.Username, map[int]string{
		peerSlot: updated.SubscriptionURL,
	}); err != nil {
		return fmt.Errorf("record link for %s: %w", ev.Username, err)
	}

	c.logger.Info("account update mirrored", "username", ev.Username, "panel", peer.Endpoint().Name)
	return nil
}

// enqueueReplay parks a failed mirror operation for the reconciler. Create
// and update converge to the same replay shape because replaying a create
// against an existing account yields a conflict, which the reconciler
// treats as done.
func (c *Coordinator) enqueueReplay(ctx context.Context, peer *panel.Client, ev Event) {
	entry := &store.RetryEntry{
		PanelURL: peer.BaseURL(),
		Username: ev.Username,
		ProxyID:  ev.User.Proxies.VLESS.ID,
		Expire:   int64(ev.User.Expire),
	}
	entry.SetInbounds(ev.User.Inbounds.VLESS)

	if err := c.queue.Enqueue(ctx, entry); err != nil {
		// The operation is now neither applied nor queued. Drop the dedup
		// claim so the panel's own redelivery gets another chance.
		c.logger.Error("enqueue failed, releasing dedup claim",
			"username", ev.Username, "action", string(ev.Action), "error", err)
		if rerr := c.guard.Release(ctx, ev.Username, ev.Action); rerr != nil {
			c.logger.Error("dedup release failed", "username", ev.Username, "error", rerr)
		}
		return
	}
	c.logger.Warn("mirror operation queued for replay",
		"username", ev.Username, "action", string(ev.Action), "panel", peer.Endpoint().Name)
}

// recordLink updates the slot URLs of an existing link record, creating the
// record with a fresh public uuid when none exists yet.
func (c *Coordinator) recordLink(ctx context.Context, username string, slots map[int]string) error {
	fields := make(map[string]any, len(slots))
	for slot, url := range slots {
		if url != "" {
			fields[store.SlotColumn(slot)] = url
		}
	}
	if len(fields) == 0 {
		return nil
	}

	err := c.links.UpdateLinkWhere(ctx, username, fields)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := time.Now().Unix()
	rec := &store.LinkRecord{
		UserID:    username,
		UUID:      uuid.NewString(),
		Panel1URL: slots[panel.Slot1],
		Panel2URL: slots[panel.Slot2],
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cerr := c.links.CreateLink(ctx, rec); cerr != nil {
		if errors.Is(cerr, store.ErrAlreadyExists) {
			// Lost a race with a concurrent event for the same user.
			return c.links.UpdateLinkWhere(ctx, username, fields)
		}
		return cerr
	}
	return nil
}
