package sqlstore

import (
	"context"
	"fmt"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/repowatch/repowatch/core"
)

const recentEventsCacheKey = "repowatch::events::recent::v1"

// CachedEventStore layers a read-through cache over ListRecent. Dashboard
// clients poll on a fixed interval, so the full recency window is cached
// under one key and sliced per request; Save invalidates it.
type CachedEventStore struct {
	base  *EventStore
	cache repositorycache.CacheService
}

func NewCachedEventStore(base *EventStore, cacheService repositorycache.CacheService) (*CachedEventStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base event store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: event cache service is required")
	}
	return &CachedEventStore{base: base, cache: cacheService}, nil
}

func (s *CachedEventStore) Save(ctx context.Context, event core.Event) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached event store is not configured")
	}
	created, err := s.base.Save(ctx, event)
	if err != nil {
		return false, err
	}
	if created {
		if err := s.cache.Delete(ctx, recentEventsCacheKey); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (s *CachedEventStore) ListRecent(ctx context.Context, limit int) ([]core.Event, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached event store is not configured")
	}
	limit = s.base.clampLimit(limit)

	window, err := repositorycache.GetOrFetch(ctx, s.cache, recentEventsCacheKey,
		func(ctx context.Context) ([]core.Event, error) {
			return s.base.ListRecent(ctx, s.base.MaxLimit())
		})
	if err != nil {
		return nil, err
	}
	if limit > len(window) {
		limit = len(window)
	}
	return append([]core.Event(nil), window[:limit]...), nil
}

func (s *CachedEventStore) Stats(ctx context.Context) (core.EventStats, error) {
	if s == nil || s.base == nil {
		return core.EventStats{}, fmt.Errorf("sqlstore: cached event store is not configured")
	}
	return s.base.Stats(ctx)
}

func (s *CachedEventStore) Ping(ctx context.Context) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached event store is not configured")
	}
	return s.base.Ping(ctx)
}

var _ core.EventStore = (*CachedEventStore)(nil)
