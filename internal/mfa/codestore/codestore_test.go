package codestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "test-otp"), mr
}

func TestMemoryStore_PutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, _ := s.Get(ctx, "user-1"); ok {
		t.Fatal("Get on empty store should report missing")
	}
	if err := s.Put(ctx, "user-1", "hash-1", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	hash, ok, err := s.Get(ctx, "user-1")
	if err != nil || !ok || hash != "hash-1" {
		t.Fatalf("Get = %q, %v, %v", hash, ok, err)
	}
	_ = s.Put(ctx, "user-1", "hash-2", time.Minute)
	if hash, _, _ := s.Get(ctx, "user-1"); hash != "hash-2" {
		t.Errorf("Put should replace: got %q", hash)
	}
	_ = s.Delete(ctx, "user-1")
	if _, ok, _ := s.Get(ctx, "user-1"); ok {
		t.Error("Get after Delete should report missing")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowF = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Put(ctx, "user-1", "hash", 5*time.Minute)
	now = now.Add(5 * time.Minute)
	if _, ok, _ := s.Get(ctx, "user-1"); ok {
		t.Error("code should be gone once its TTL elapses")
	}
}

func TestRedisStore_PutGetDelete(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	ctx := context.Background()

	if err := s.Put(ctx, "user-1", "hash-1", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !mr.Exists("test-otp:user-1") {
		t.Error("key test-otp:user-1 should exist")
	}
	hash, ok, err := s.Get(ctx, "user-1")
	if err != nil || !ok || hash != "hash-1" {
		t.Fatalf("Get = %q, %v, %v", hash, ok, err)
	}
	if err := s.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "user-1"); ok {
		t.Error("Get after Delete should report missing")
	}
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	ctx := context.Background()

	_ = s.Put(ctx, "user-1", "hash", 300*time.Second)
	if ttl := mr.TTL("test-otp:user-1"); ttl != 300*time.Second {
		t.Errorf("TTL = %v, want 300s", ttl)
	}
	mr.FastForward(301 * time.Second)
	if _, ok, _ := s.Get(ctx, "user-1"); ok {
		t.Error("code should expire with its TTL")
	}
}

func TestRedisStore_BackendError(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	mr.Close()

	_, _, err := s.Get(context.Background(), "user-1")
	if !errors.Is(err, ErrBackend) {
		t.Errorf("err = %v, want ErrBackend", err)
	}
}
