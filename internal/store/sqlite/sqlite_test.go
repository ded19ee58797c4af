package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/Saivel1/panelsync/internal/store"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := NewDriver(&store.DriverConfig{Driver: "sqlite", DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}
	drv := d.(*Driver)
	if err := drv.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { drv.Close() })
	return drv
}

func TestLinkCRUD(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	link := &store.LinkRecord{
		UserID:    "alice",
		UUID:      "uuid-alice",
		Panel1URL: "https://one.example.com/sub/abc",
	}
	if err := d.CreateLink(ctx, link); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if err := d.CreateLink(ctx, link); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate CreateLink() error = %v, want ErrAlreadyExists", err)
	}

	got, err := d.GetLinkByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetLinkByUser() error = %v", err)
	}
	if got.UUID != "uuid-alice" || got.Panel1URL != link.Panel1URL {
		t.Errorf("GetLinkByUser() = %+v", got)
	}
	if got.CreatedAt == 0 || got.UpdatedAt == 0 {
		t.Error("timestamps not set on create")
	}

	byUUID, err := d.GetLinkByUUID(ctx, "uuid-alice")
	if err != nil {
		t.Fatalf("GetLinkByUUID() error = %v", err)
	}
	if byUUID.UserID != "alice" {
		t.Errorf("GetLinkByUUID().UserID = %q", byUUID.UserID)
	}

	err = d.UpdateLinkWhere(ctx, "alice", map[string]any{
		store.SlotColumn(2): "https://two.example.com/sub/def",
	})
	if err != nil {
		t.Fatalf("UpdateLinkWhere() error = %v", err)
	}
	got, _ = d.GetLinkByUser(ctx, "alice")
	if got.Panel2URL != "https://two.example.com/sub/def" {
		t.Errorf("Panel2URL after update = %q", got.Panel2URL)
	}
	if got.Panel1URL != link.Panel1URL {
		t.Errorf("Panel1URL clobbered by slot update: %q", got.Panel1URL)
	}

	if err := d.DeleteLinkWhere(ctx, "alice"); err != nil {
		t.Fatalf("DeleteLinkWhere() error = %v", err)
	}
	if _, err := d.GetLinkByUser(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetLinkByUser() after delete error = %v, want ErrNotFound", err)
	}
}

func TestUpdateMissingLink(t *testing.T) {
	d := newTestDriver(t)
	err := d.UpdateLinkWhere(context.Background(), "ghost", map[string]any{"uuid": "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateLinkWhere(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRetryQueueOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	for _, name := range []string{"first", "second", "third"} {
		e := &store.RetryEntry{PanelURL: "https://two.example.com", Username: name}
		e.SetInbounds([]string{"VLESS TCP"})
		if err := d.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", name, err)
		}
	}

	entries, err := d.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List(2) returned %d entries", len(entries))
	}
	if entries[0].Username != "first" || entries[1].Username != "second" {
		t.Errorf("List() order = %s, %s; want first, second", entries[0].Username, entries[1].Username)
	}
	if got := entries[0].InboundList(); len(got) != 1 || got[0] != "VLESS TCP" {
		t.Errorf("InboundList() = %v", got)
	}
}

func TestRetryQueueMarkAttemptAndDelete(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	e := &store.RetryEntry{PanelURL: "https://two.example.com", Username: "alice"}
	if err := d.Enqueue(ctx, e); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	entries, _ := d.List(ctx, 10)
	id := entries[0].ID

	if err := d.MarkAttempt(ctx, id); err != nil {
		t.Fatalf("MarkAttempt() error = %v", err)
	}
	if err := d.MarkAttempt(ctx, id); err != nil {
		t.Fatalf("MarkAttempt() error = %v", err)
	}
	entries, _ = d.List(ctx, 10)
	if entries[0].Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", entries[0].Attempts)
	}

	if err := d.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := d.Delete(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}

	entries, _ = d.List(ctx, 10)
	if len(entries) != 0 {
		t.Errorf("queue has %d entries after delete, want 0", len(entries))
	}
}

func TestEntriesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d1, err := NewDriver(&store.DriverConfig{Driver: "sqlite", DataDir: dir})
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}
	drv1 := d1.(*Driver)
	if err := drv1.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := drv1.Enqueue(ctx, &store.RetryEntry{PanelURL: "https://two.example.com", Username: "alice"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := drv1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	d2, err := NewDriver(&store.DriverConfig{Driver: "sqlite", DataDir: dir})
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}
	drv2 := d2.(*Driver)
	if err := drv2.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer drv2.Close()

	entries, err := drv2.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "alice" {
		t.Errorf("entries after reopen = %+v, want one alice entry", entries)
	}
}
