package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Saivel1/panelsync/internal/store"
)

func queuedEntry(panelURL string) *store.RetryEntry {
	e := &store.RetryEntry{
		PanelURL: panelURL,
		Username: "alice",
		ProxyID:  "uuid-1",
		Expire:   1767139200,
	}
	e.SetInbounds([]string{"VLESS TCP"})
	return e
}

func TestDrainOnceRemovesReplayedEntries(t *testing.T) {
	var created atomic.Int32
	reg, _, srv2 := testMirrorRegistry(t,
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {
			created.Add(1)
			json.NewEncoder(w).Encode(map[string]any{"username": "alice"})
		},
	)

	queue := newFakeQueue()
	if err := queue.Enqueue(context.Background(), queuedEntry(srv2.URL)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	r := NewReconciler(reg, queue, time.Minute, 50, nil)
	r.DrainOnce(context.Background())

	if got := created.Load(); got != 1 {
		t.Errorf("replay create called %d times, want 1", got)
	}
	if queue.len() != 0 {
		t.Errorf("queue has %d entries after drain, want 0", queue.len())
	}
}

func TestDrainOnceTreatsConflictAsDone(t *testing.T) {
	reg, _, srv2 := testMirrorRegistry(t,
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		},
	)

	queue := newFakeQueue()
	queue.Enqueue(context.Background(), queuedEntry(srv2.URL))

	r := NewReconciler(reg, queue, time.Minute, 50, nil)
	r.DrainOnce(context.Background())

	if queue.len() != 0 {
		t.Errorf("conflict left %d entries queued, want 0", queue.len())
	}
}

func TestDrainOnceKeepsFailedEntries(t *testing.T) {
	reg, _, srv2 := testMirrorRegistry(t,
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	)

	queue := newFakeQueue()
	queue.Enqueue(context.Background(), queuedEntry(srv2.URL))

	r := NewReconciler(reg, queue, time.Minute, 50, nil)
	r.DrainOnce(context.Background())

	entries, _ := queue.List(context.Background(), 10)
	if len(entries) != 1 {
		t.Fatalf("queue has %d entries, want 1", len(entries))
	}
	if entries[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", entries[0].Attempts)
	}
}

func TestDrainOnceDropsUnknownPanel(t *testing.T) {
	reg, _, _ := testMirrorRegistry(t,
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	queue := newFakeQueue()
	queue.Enqueue(context.Background(), queuedEntry("https://gone.example.com"))

	r := NewReconciler(reg, queue, time.Minute, 50, nil)
	r.DrainOnce(context.Background())

	if queue.len() != 0 {
		t.Errorf("entry for unknown panel kept, queue len = %d", queue.len())
	}
}
