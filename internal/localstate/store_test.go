package localstate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

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
	return NewRedisStore(rdb, "test:state"), mr
}

func newFileStoreTest(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "portal", "state.json"), "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

// exerciseStore runs the common Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := s.Get(ctx, "k"); err != nil || !ok || v != "v1" {
		t.Fatalf("Get = %q, %v, %v; want v1", v, ok, err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _, _ := s.Get(ctx, "k"); v != "v2" {
		t.Errorf("last write should win, got %q", v)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("Get after Delete should report missing")
	}
	if err := s.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, newFileStoreTest(t))
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStoreTest(t)
	exerciseStore(t, s)
}

func TestFileStore_Permissions(t *testing.T) {
	s := newFileStoreTest(t)
	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("state file perm = %o, want 600", perm)
	}
}

func TestFileStore_SharedBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	a, _ := NewFileStore(path, "")
	b, _ := NewFileStore(path, "")
	ctx := context.Background()

	if err := a.Set(ctx, OTPVerifiedKey("admin"), "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, _ := b.Get(ctx, OTPVerifiedKey("admin")); !ok || v != "true" {
		t.Errorf("second instance Get = %q, %v; want true", v, ok)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	s := newFileStoreTest(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get on corrupt file: want ErrUnavailable, got %v", err)
	}
}

func TestFileStore_ConcurrentWriters(t *testing.T) {
	s := newFileStoreTest(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			_ = NewFlags(s, "general").SetOTPVerified(ctx, who)
		}(map[bool]string{true: "alice", false: "bob"}[i%2 == 0])
	}
	wg.Wait()
	v, ok, err := s.Get(ctx, OTPVerifiedKey("general"))
	if err != nil || !ok || (v != "alice" && v != "bob") {
		t.Errorf("after concurrent writes Get = %q, %v, %v", v, ok, err)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	mr.Close()
	if err := s.Set(context.Background(), "k", "v"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Set with redis down: want ErrUnavailable, got %v", err)
	}
}

func TestRedisStore_UsesHash(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	_ = s.Set(context.Background(), OTPVerifiedKey("general"), "true")
	if got := mr.HGet("test:state", "auth.otpVerified.general"); got != "true" {
		t.Errorf("hash field = %q, want true", got)
	}
}

func TestOperatorHash_SeparatesOperators(t *testing.T) {
	if OperatorHash("alice") == OperatorHash("bob") {
		t.Fatal("operators must not share a hash")
	}
	if got := OperatorHash("alice"); got != "portal:state:alice" {
		t.Errorf("OperatorHash = %q", got)
	}
}
