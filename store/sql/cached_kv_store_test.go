package sqlstore

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-appstate/core"
)

type stubKVStore struct {
	mu       sync.Mutex
	values   map[string][]byte
	getCalls int
	getErr   error
	setErr   error
}

func newStubKVStore() *stubKVStore {
	return &stubKVStore{values: map[string][]byte{}}
}

func (s *stubKVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return nil, core.ErrKeyNotFound
	}
	return cloneBytes(value), nil
}

func (s *stubKVStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = cloneBytes(value)
	return nil
}

func (s *stubKVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func newTestKVCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedKVStore_Get_MissFetchThenHit(t *testing.T) {
	base := newStubKVStore()
	base.values["appstate::session"] = []byte("payload")

	store, err := NewCachedKVStore(base, newTestKVCacheService(t))
	if err != nil {
		t.Fatalf("new cached kv store: %v", err)
	}

	first, err := store.Get(context.Background(), "appstate::session")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if !bytes.Equal(first, []byte("payload")) {
		t.Fatalf("value = %q", first)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, err := store.Get(context.Background(), "appstate::session"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedKVStore_Set_InvalidatesCachedKey(t *testing.T) {
	base := newStubKVStore()
	base.values["appstate::session"] = []byte("old")

	store, err := NewCachedKVStore(base, newTestKVCacheService(t))
	if err != nil {
		t.Fatalf("new cached kv store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Get(ctx, "appstate::session"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.Set(ctx, "appstate::session", []byte("new")); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "appstate::session")
	if err != nil {
		t.Fatalf("get after set: %v", err)
	}
	if !bytes.Equal(got, []byte("new")) {
		t.Fatalf("value = %q, want new", got)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidation to force a base re-read, got %d calls", base.getCalls)
	}
}

func TestCachedKVStore_Delete_InvalidatesCachedKey(t *testing.T) {
	base := newStubKVStore()
	base.values["appstate::session"] = []byte("payload")

	store, err := NewCachedKVStore(base, newTestKVCacheService(t))
	if err != nil {
		t.Fatalf("new cached kv store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Get(ctx, "appstate::session"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.Delete(ctx, "appstate::session"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "appstate::session"); !errors.Is(err, core.ErrKeyNotFound) {
		t.Fatalf("get after delete: got %v, want ErrKeyNotFound", err)
	}
}

func TestCachedKVStore_SetFailureDoesNotInvalidate(t *testing.T) {
	base := newStubKVStore()
	base.values["appstate::session"] = []byte("durable")

	store, err := NewCachedKVStore(base, newTestKVCacheService(t))
	if err != nil {
		t.Fatalf("new cached kv store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Get(ctx, "appstate::session"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	base.setErr = errors.New("disk full")
	if err := store.Set(ctx, "appstate::session", []byte("lost")); err == nil {
		t.Fatal("expected set error")
	}

	got, err := store.Get(ctx, "appstate::session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("durable")) {
		t.Fatalf("value = %q, want durable", got)
	}
}
