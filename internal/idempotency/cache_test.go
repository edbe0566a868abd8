package idempotency

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// storeFactories はMemoryStoreとRedisStoreの両方で同じ振る舞いを検証するための生成関数。
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(0)
		},
		"redis": func(t *testing.T) Store {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis: %v", err)
			}
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() {
				client.Close()
				mr.Close()
			})
			return NewRedisStore(client)
		},
	}
}

func TestCache_StoreThenLookup(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			c := New(newStore(t), 0, WithClock(clock.Now))
			ctx := context.Background()

			if err := c.Store(ctx, "k", []byte(`{"id":1}`)); err != nil {
				t.Fatalf("Store error: %v", err)
			}
			got, ok, err := c.Lookup(ctx, "k")
			if err != nil {
				t.Fatalf("Lookup error: %v", err)
			}
			if !ok {
				t.Fatal("expected record to be found")
			}
			if !bytes.Equal(got, []byte(`{"id":1}`)) {
				t.Errorf("payload = %s", got)
			}
		})
	}
}

func TestCache_Expiry(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			c := New(newStore(t), 0, WithClock(clock.Now))
			ctx := context.Background()

			if err := c.Store(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("Store error: %v", err)
			}

			// 有効期限ちょうどは有効
			clock.Advance(DefaultTTL)
			if _, ok, _ := c.Lookup(ctx, "k"); !ok {
				t.Fatal("expected record to be visible at expiry instant")
			}

			clock.Advance(time.Second)
			if _, ok, _ := c.Lookup(ctx, "k"); ok {
				t.Fatal("expected record to be absent after ttl")
			}
		})
	}
}

func TestCache_StoreWithTTL(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			c := New(newStore(t), 0, WithClock(clock.Now))
			ctx := context.Background()

			if err := c.StoreWithTTL(ctx, "k", []byte("v"), 10*time.Second); err != nil {
				t.Fatalf("StoreWithTTL error: %v", err)
			}
			clock.Advance(11 * time.Second)
			if _, ok, _ := c.Lookup(ctx, "k"); ok {
				t.Fatal("expected record to be absent after custom ttl")
			}
		})
	}
}

func TestCache_Overwrite(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			c := New(newStore(t), 0, WithClock(clock.Now))
			ctx := context.Background()

			c.Store(ctx, "k", []byte("first"))
			c.Store(ctx, "k", []byte("second"))

			got, ok, _ := c.Lookup(ctx, "k")
			if !ok || string(got) != "second" {
				t.Fatalf("Lookup = %q, %v; want second", got, ok)
			}
		})
	}
}

func TestCache_AbsentAndEmptyKey(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			c := New(newStore(t), 0)
			ctx := context.Background()

			if _, ok, err := c.Lookup(ctx, "never-stored"); ok || err != nil {
				t.Errorf("Lookup(never-stored) = %v, %v", ok, err)
			}

			if err := c.Store(ctx, "", []byte("v")); err != nil {
				t.Errorf("Store with empty key error: %v", err)
			}
			if _, ok, err := c.Lookup(ctx, ""); ok || err != nil {
				t.Errorf("Lookup(empty) = %v, %v", ok, err)
			}
		})
	}
}

func TestMemoryStore_LazyEviction(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(0)
	c := New(store, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	c.Store(ctx, "k", []byte("v"))
	clock.Advance(2 * time.Minute)

	if store.Len() != 1 {
		t.Fatalf("Len = %d before lookup, want 1", store.Len())
	}
	c.Lookup(ctx, "k")
	if store.Len() != 0 {
		t.Errorf("Len = %d after lookup, want 0", store.Len())
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(0)
	c := New(store, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	c.Store(ctx, "old", []byte("v"))
	clock.Advance(30 * time.Second)
	c.Store(ctx, "new", []byte("v"))
	clock.Advance(45 * time.Second)

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok, _ := c.Lookup(ctx, "new"); !ok {
		t.Error("unexpired record was swept")
	}
}

func TestRedisStore_PhysicalExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := New(NewRedisStore(client), 10*time.Second)
	ctx := context.Background()

	if err := c.Store(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Store error: %v", err)
	}
	key := DefaultRedisPrefix + "k"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q in redis", key)
	}

	mr.FastForward(10*time.Second + physicalGrace + time.Second)
	if mr.Exists(key) {
		t.Error("expected redis key to expire")
	}
	if _, ok, _ := c.Lookup(ctx, "k"); ok {
		t.Error("expected record to be absent")
	}
}

func TestRedisStore_CorruptRecord(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mr.Set(DefaultRedisPrefix+"k", "not-json")

	c := New(NewRedisStore(client), 0)
	if _, ok, err := c.Lookup(context.Background(), "k"); ok || err != nil {
		t.Errorf("Lookup = %v, %v; want absent", ok, err)
	}
	if mr.Exists(DefaultRedisPrefix + "k") {
		t.Error("corrupt record should be deleted")
	}
}

func TestRedisStore_Error(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mr.SetError("ERR redis down")

	c := New(NewRedisStore(client), 0)
	if _, _, err := c.Lookup(context.Background(), "k"); err == nil {
		t.Error("expected Lookup error")
	}
	if err := c.Store(context.Background(), "k", []byte("v")); err == nil {
		t.Error("expected Store error")
	}
}
