package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewRedisStore(rdb, "otp:")
	ctx := context.Background()

	if _, err := store.Get(ctx, "student:a@b.c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "student:a@b.c", "123456", 5*time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if !mr.Exists("otp:student:a@b.c") {
		t.Fatalf("expected prefixed key in redis")
	}
	code, err := store.Get(ctx, "student:a@b.c")
	if err != nil || code != "123456" {
		t.Fatalf("expected 123456, got %q, %v", code, err)
	}

	mr.FastForward(6 * time.Minute)
	if _, err := store.Get(ctx, "student:a@b.c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected code expired, got %v", err)
	}

	_ = store.Set(ctx, "k", "1", time.Minute)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted code gone, got %v", err)
	}
}

func TestNewRedisClient(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient error: %v", err)
	}
	_ = rdb.Close()

	if _, err := NewRedisClient(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Set(ctx, "reg:student:a@b.c", "654321", 5*time.Minute)
	if code, err := store.Get(ctx, "reg:student:a@b.c"); err != nil || code != "654321" {
		t.Fatalf("expected stored code, got %q, %v", code, err)
	}

	now = now.Add(5 * time.Minute)
	if _, err := store.Get(ctx, "reg:student:a@b.c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry at ttl boundary, got %v", err)
	}
	if len(store.codes) != 0 {
		t.Fatalf("expected expired entry evicted")
	}
}
