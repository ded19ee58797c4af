// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Saivel1/panelsync/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "panelsync.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.LinkRecord{},
		&store.RetryEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LinkStore implementation

// CreateLink creates a new link record.
func (d *Driver) CreateLink(ctx context.Context, link *store.LinkRecord) error {
	var existing store.LinkRecord
	err := d.db.WithContext(ctx).First(&existing, "user_id = ?", link.UserID).Error
	if err == nil {
		return store.ErrAlreadyExists
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	now := time.Now().Unix()
	if link.CreatedAt == 0 {
		link.CreatedAt = now
	}
	link.UpdatedAt = now
	return d.db.WithContext(ctx).Create(link).Error
}

// GetLinkByUser retrieves a link record by internal user id.
func (d *Driver) GetLinkByUser(ctx context.Context, userID string) (*store.LinkRecord, error) {
	var link store.LinkRecord
	result := d.db.WithContext(ctx).First(&link, "user_id = ?", userID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &link, nil
}

// GetLinkByUUID retrieves a link record by public uuid.
func (d *Driver) GetLinkByUUID(ctx context.Context, uuid string) (*store.LinkRecord, error) {
	var link store.LinkRecord
	result := d.db.WithContext(ctx).First(&link, "uuid = ?", uuid)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &link, nil
}

// UpdateLinkWhere applies field updates to the record matching userID.
func (d *Driver) UpdateLinkWhere(ctx context.Context, userID string, fields map[string]any) error {
	fields["updated_at"] = time.Now().Unix()
	result := d.db.WithContext(ctx).
		Model(&store.LinkRecord{}).
		Where("user_id = ?", userID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteLinkWhere removes the record matching userID.
func (d *Driver) DeleteLinkWhere(ctx context.Context, userID string) error {
	result := d.db.WithContext(ctx).Delete(&store.LinkRecord{}, "user_id = ?", userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RetryQueue implementation

// Enqueue durably appends a retry entry.
func (d *Driver) Enqueue(ctx context.Context, entry *store.RetryEntry) error {
	now := time.Now().Unix()
	if entry.CreatedAt == 0 {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	return d.db.WithContext(ctx).Create(entry).Error
}

// List returns up to limit entries, oldest first.
func (d *Driver) List(ctx context.Context, limit int) ([]*store.RetryEntry, error) {
	var entries []*store.RetryEntry
	query := d.db.WithContext(ctx).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

// Delete removes an entry by id.
func (d *Driver) Delete(ctx context.Context, id uint) error {
	result := d.db.WithContext(ctx).Delete(&store.RetryEntry{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkAttempt increments the attempt counter of an entry.
func (d *Driver) MarkAttempt(ctx context.Context, id uint) error {
	result := d.db.WithContext(ctx).
		Model(&store.RetryEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.LinkStore = (*Driver)(nil)
var _ store.RetryQueue = (*Driver)(nil)
