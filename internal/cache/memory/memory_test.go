package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Saivel1/panelsync/internal/cache"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute, 0)
	defer c.Close()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get() = %q, want v", got)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("Exists() after delete = true")
	}
}

func TestExpiration(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute, 0)
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrExpired) {
		t.Errorf("Get(expired) error = %v, want ErrExpired", err)
	}
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("Exists(expired) = true")
	}
}

func TestSetNXSingleWinner(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute, 0)
	defer c.Close()

	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.SetNX(ctx, "claim", []byte("1"), time.Minute)
			if err != nil {
				t.Errorf("SetNX() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("SetNX winners = %d, want 1", wins)
	}
}

func TestSetNXReclaimsExpiredKey(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute, 0)
	defer c.Close()

	if ok, _ := c.SetNX(ctx, "k", []byte("1"), 10*time.Millisecond); !ok {
		t.Fatal("first SetNX() = false")
	}
	time.Sleep(20 * time.Millisecond)

	ok, err := c.SetNX(ctx, "k", []byte("2"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if !ok {
		t.Error("SetNX() on expired key = false, want true")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute, 0)
	defer c.Close()

	c.Set(ctx, "k", []byte("abc"), 0)
	got, _ := c.Get(ctx, "k")
	got[0] = 'x'

	again, _ := c.Get(ctx, "k")
	if !bytes.Equal(again, []byte("abc")) {
		t.Errorf("stored value mutated through Get(): %q", again)
	}
}
