// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (sqlite).
	Name() string
}

// LinkStore defines operations for cross-panel link records.
// Filters are single-column; the store never sees raw SQL from callers.
type LinkStore interface {
	// CreateLink creates a new link record. Fails with ErrAlreadyExists
	// when a record for the same user id is present.
	CreateLink(ctx context.Context, link *LinkRecord) error

	// GetLinkByUser retrieves a link record by internal user id.
	GetLinkByUser(ctx context.Context, userID string) (*LinkRecord, error)

	// GetLinkByUUID retrieves a link record by public uuid.
	GetLinkByUUID(ctx context.Context, uuid string) (*LinkRecord, error)

	// UpdateLinkWhere applies field updates to the record matching userID.
	// Returns ErrNotFound when no record matches.
	UpdateLinkWhere(ctx context.Context, userID string, fields map[string]any) error

	// DeleteLinkWhere removes the record matching userID.
	DeleteLinkWhere(ctx context.Context, userID string) error
}

// RetryQueue defines operations for pending mirror operations that failed
// synchronously. Entries must survive process restart.
type RetryQueue interface {
	// Enqueue durably appends a retry entry.
	Enqueue(ctx context.Context, entry *RetryEntry) error

	// List returns up to limit entries, oldest first.
	List(ctx context.Context, limit int) ([]*RetryEntry, error)

	// Delete removes an entry by id.
	Delete(ctx context.Context, id uint) error

	// MarkAttempt increments the attempt counter of an entry.
	MarkAttempt(ctx context.Context, id uint) error
}

// LinkRecord maps a user to the subscription URL issued by each panel.
// UUID is the public-facing identifier used in outward subscription URLs;
// it is random and decoupled from the internal user id.
type LinkRecord struct {
	UserID    string `json:"user_id" gorm:"column:user_id;primaryKey"`
	UUID      string `json:"uuid" gorm:"column:uuid;uniqueIndex"`
	Panel1URL string `json:"panel_1_url,omitempty" gorm:"column:panel_1_url"`
	Panel2URL string `json:"panel_2_url,omitempty" gorm:"column:panel_2_url"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// PanelURL returns the subscription URL stored in the given slot (1 or 2).
func (l *LinkRecord) PanelURL(slot int) string {
	if slot == 1 {
		return l.Panel1URL
	}
	return l.Panel2URL
}

// SlotColumn returns the column name for a link slot, for update-where calls.
func SlotColumn(slot int) string {
	if slot == 1 {
		return "panel_1_url"
	}
	return "panel_2_url"
}

// RetryEntry captures everything needed to replay a mirror operation out of
// band: which panel to call and the normalized user parameters.
type RetryEntry struct {
	ID        uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	PanelURL  string `json:"panel_url"`
	Username  string `json:"username" gorm:"index"`
	ProxyID   string `json:"proxy_id"`
	Expire    int64  `json:"expire"`
	Inbounds  string `json:"inbounds"` // JSON-encoded list of inbound tags
	Attempts  int    `json:"attempts"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// SetInbounds stores the inbound tag list as JSON.
func (e *RetryEntry) SetInbounds(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		e.Inbounds = "[]"
		return
	}
	e.Inbounds = string(data)
}

// InboundList decodes the stored inbound tag list.
func (e *RetryEntry) InboundList() []string {
	if e.Inbounds == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(e.Inbounds), &tags); err != nil {
		return []string{}
	}
	return tags
}
