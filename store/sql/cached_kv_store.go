package sqlstore

import (
	"context"
	"fmt"
	"net/url"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-appstate/core"
)

const kvCacheKeyPrefix = "go-appstate::kv::v1"

// CachedKVStore layers a read-through cache over a base KVStore. Writes go
// to the base store first and then invalidate the cache entry, so a reader
// never observes a value newer than the durable one.
type CachedKVStore struct {
	base  core.KVStore
	cache repositorycache.CacheService
}

func NewCachedKVStore(base core.KVStore, cacheService repositorycache.CacheService) (*CachedKVStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base kv store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: kv cache service is required")
	}
	return &CachedKVStore{base: base, cache: cacheService}, nil
}

// KVCacheKey returns the deterministic cache key contract for KV reads:
// go-appstate::kv::v1::<key> with the key URL-path escaped.
func KVCacheKey(key string) (string, error) {
	normalized, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	return kvCacheKeyPrefix + "::" + url.PathEscape(normalized), nil
}

func (s *CachedKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached kv store is not configured")
	}
	cacheKey, err := KVCacheKey(key)
	if err != nil {
		return nil, err
	}

	value, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]byte, error) {
		fetched, fetchErr := s.base.Get(ctx, key)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneBytes(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneBytes(value), nil
}

func (s *CachedKVStore) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached kv store is not configured")
	}
	cacheKey, err := KVCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Set(ctx, key, value); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedKVStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached kv store is not configured")
	}
	cacheKey, err := KVCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
