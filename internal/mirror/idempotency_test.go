package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Saivel1/panelsync/internal/cache"
)

// fakeCache is an in-memory cache.Cache that records the TTL of each SetNX.
type fakeCache struct {
	mu   sync.Mutex
	keys map[string][]byte
	ttls map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		keys: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.keys[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = value
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[key]
	return ok, nil
}

func (f *fakeCache) Close() error { return nil }

func (f *fakeCache) ttlOf(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

var _ cache.Cache = (*fakeCache)(nil)

func TestGuardAcquireOncePerWindow(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCache()
	g := NewGuard(fc, nil)

	first, err := g.Acquire(ctx, "alice", ActionUserCreated)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !first {
		t.Fatal("first Acquire() = false, want true")
	}

	second, err := g.Acquire(ctx, "alice", ActionUserCreated)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if second {
		t.Error("duplicate Acquire() = true, want false")
	}

	// A different action for the same user is its own claim.
	other, err := g.Acquire(ctx, "alice", ActionUserUpdated)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !other {
		t.Error("Acquire() for different action = false, want true")
	}
}

func TestGuardUsesActionTTL(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCache()
	g := NewGuard(fc, nil)

	cases := []struct {
		action Action
		want   time.Duration
	}{
		{ActionReachedDaysLeft, time.Hour},
		{ActionUserExpired, 5 * time.Minute},
		{ActionUserCreated, 20 * time.Second},
	}
	for _, tc := range cases {
		if _, err := g.Acquire(ctx, "alice", tc.action); err != nil {
			t.Fatalf("Acquire(%s) error = %v", tc.action, err)
		}
		if got := fc.ttlOf(dedupKey("alice", tc.action)); got != tc.want {
			t.Errorf("ttl for %s = %v, want %v", tc.action, got, tc.want)
		}
	}
}

func TestGuardRelease(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(newFakeCache(), nil)

	if _, err := g.Acquire(ctx, "alice", ActionUserCreated); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := g.Release(ctx, "alice", ActionUserCreated); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	again, err := g.Acquire(ctx, "alice", ActionUserCreated)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !again {
		t.Error("Acquire() after Release() = false, want true")
	}
}
