// Package provision creates panel accounts on demand and hands out the
// public link record for a user.
package provision

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

// Service provisions accounts. Creation happens against the primary panel;
// the webhook pipeline mirrors the account to the peer afterwards.
type Service struct {
	registry *panel.Registry
	links    store.LinkStore
	logger   *slog.Logger
}

// New creates a provisioning service.
func New(registry *panel.Registry, links store.LinkStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, links: links, logger: logger}
}

// EnsureUser makes sure a panel account and a link record exist for the
// user, creating both when missing. Idempotent: an existing link is
// returned as is, and an existing panel account is adopted rather than
// treated as an error.
func (s *Service) EnsureUser(ctx context.Context, userID string) (*store.LinkRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("empty user id")
	}

	if rec, err := s.links.GetLinkByUser(ctx, userID); err == nil {
		return rec, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	primary := s.registry.Primary()
	u, err := primary.CreateUser(ctx, userID)
	if errors.Is(err, panel.ErrConflict) {
		u, err = primary.GetUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("provision %s: %w", userID, err)
	}

	// Fresh accounts start without an expiry; subscription management sets
	// one later through the update flow.
	if _, err := primary.ModifyUser(ctx, userID, 0); err != nil {
		s.logger.Warn("expiry reset failed", "username", userID, "error", err)
	}

	now := time.Now().Unix()
	rec := &store.LinkRecord{
		UserID:    userID,
		UUID:      uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch s.registry.OriginSlot(u.SubscriptionURL) {
	case panel.Slot1:
		rec.Panel1URL = u.SubscriptionURL
	default:
		rec.Panel2URL = u.SubscriptionURL
	}

	if err := s.links.CreateLink(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return s.links.GetLinkByUser(ctx, userID)
		}
		return nil, err
	}

	s.logger.Info("user provisioned", "username", userID, "panel", primary.Endpoint().Name)
	return rec, nil
}
