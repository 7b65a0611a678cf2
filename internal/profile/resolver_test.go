package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backoffice/portal/internal/profile/domain"
)

type memProfileStore struct {
	mu  sync.Mutex
	m   map[string]*domain.Record
	err error
}

func (s *memProfileStore) Get(ctx context.Context, principalID string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.m[principalID], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_NormalizesRole(t *testing.T) {
	store := &memProfileStore{m: map[string]*domain.Record{
		"u1": {PrincipalID: "u1", Role: "  Manager ", Phone: "+15550001"},
	}}
	r := NewResolver(store, quietLogger())

	p := r.Resolve(context.Background(), "u1")
	if p == nil {
		t.Fatal("Resolve returned nil for existing profile")
	}
	if p.Role != "manager" || p.RawRole != "  Manager " || p.Phone != "+15550001" {
		t.Errorf("profile = %+v", p)
	}
}

func TestResolve_EmptyRoleIsNone(t *testing.T) {
	store := &memProfileStore{m: map[string]*domain.Record{"u1": {PrincipalID: "u1"}}}
	p := NewResolver(store, quietLogger()).Resolve(context.Background(), "u1")
	if p == nil || p.Role != domain.RoleNone {
		t.Fatalf("profile = %+v, want role none", p)
	}
}

func TestResolve_MissingProfile(t *testing.T) {
	store := &memProfileStore{m: map[string]*domain.Record{}}
	if p := NewResolver(store, quietLogger()).Resolve(context.Background(), "u1"); p != nil {
		t.Errorf("Resolve = %+v, want nil", p)
	}
}

func TestResolve_StoreErrorIsNil(t *testing.T) {
	store := &memProfileStore{err: errors.New("connection reset")}
	if p := NewResolver(store, quietLogger()).Resolve(context.Background(), "u1"); p != nil {
		t.Errorf("Resolve = %+v, want nil on store error", p)
	}
}

func TestResolve_EmptyPrincipal(t *testing.T) {
	store := &memProfileStore{m: map[string]*domain.Record{"": {Role: "admin"}}}
	if p := NewResolver(store, quietLogger()).Resolve(context.Background(), ""); p != nil {
		t.Errorf("Resolve(\"\") = %+v, want nil", p)
	}
}

type gatedStore struct {
	memProfileStore
	calls    atomic.Int32
	canceled atomic.Bool
	entered  chan struct{}
	release  chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, principalID string) (*domain.Record, error) {
	if s.calls.Add(1) == 1 {
		close(s.entered)
	}
	<-s.release
	if ctx.Err() != nil {
		s.canceled.Store(true)
		return nil, ctx.Err()
	}
	return s.memProfileStore.Get(ctx, principalID)
}

func TestResolve_ConcurrentLookupsShareOneRead(t *testing.T) {
	store := &gatedStore{
		memProfileStore: memProfileStore{m: map[string]*domain.Record{"u1": {PrincipalID: "u1", Role: "student"}}},
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	r := NewResolver(store, quietLogger())

	const n = 8
	results := make([]*domain.Profile, n)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = r.Resolve(context.Background(), "u1")
	}()
	<-store.entered
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), "u1")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()

	if got := store.calls.Load(); got != 1 {
		t.Errorf("store calls = %d, want 1", got)
	}
	for i, p := range results {
		if p == nil || p.Role != "student" {
			t.Fatalf("result %d = %+v", i, p)
		}
	}
	results[0].Role = "mutated"
	if results[1].Role != "student" {
		t.Error("callers must not share one profile value")
	}
}

func TestResolve_WaiterKeepsItsOwnDeadline(t *testing.T) {
	store := &gatedStore{
		memProfileStore: memProfileStore{m: map[string]*domain.Record{"u1": {PrincipalID: "u1", Role: "student"}}},
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	r := NewResolver(store, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan *domain.Profile, 1)
	go func() { first <- r.Resolve(ctx, "u1") }()
	<-store.entered

	second := make(chan *domain.Profile, 1)
	go func() { second <- r.Resolve(context.Background(), "u1") }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if p := <-first; p != nil {
		t.Errorf("canceled caller got %+v, want nil", p)
	}
	close(store.release)

	if p := <-second; p == nil || p.Role != "student" {
		t.Fatalf("waiting caller got %+v, want the student profile", p)
	}
	if store.canceled.Load() {
		t.Error("the shared read must not see the first caller's cancellation")
	}
}
