package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/model"
)

// PlaceCache adapts a Store to the resolver's cache interface. Cache
// failures are logged and swallowed so a broken database never blocks
// place resolution.
type PlaceCache struct {
	store Store
	ttl   time.Duration
}

// NewPlaceCache wraps the store with the given entry TTL.
func NewPlaceCache(s Store, ttl time.Duration) *PlaceCache {
	return &PlaceCache{store: s, ttl: ttl}
}

func (c *PlaceCache) Get(ctx context.Context, key string) (*model.ResolvedPlace, bool) {
	place, err := c.store.GetCachedPlace(ctx, key)
	if err != nil {
		zap.L().Warn("place cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if place == nil {
		return nil, false
	}
	return place, true
}

func (c *PlaceCache) Put(ctx context.Context, key string, place *model.ResolvedPlace) {
	if err := c.store.SetCachedPlace(ctx, key, place, c.ttl); err != nil {
		zap.L().Warn("place cache write failed", zap.String("key", key), zap.Error(err))
	}
}
