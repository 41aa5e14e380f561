package cache

import (
	"context"
	"log/slog"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

type Source interface {
	Evaluate(ctx context.Context, req availability.Request) ([]model.Slot, error)
}

// CachedEvaluator reads through the cache. Redis failures fall back to the
// source; they never fail a request.
type CachedEvaluator struct {
	next   Source
	cache  *Cache
	logger *slog.Logger
}

func NewCachedEvaluator(next Source, cache *Cache, logger *slog.Logger) *CachedEvaluator {
	return &CachedEvaluator{next: next, cache: cache, logger: logger}
}

func (c *CachedEvaluator) Evaluate(ctx context.Context, req availability.Request) ([]model.Slot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	slots, ok, err := c.cache.Get(ctx, req)
	if err != nil {
		c.logger.WarnContext(ctx, "availability cache read failed", "err", err)
	} else if ok {
		return slots, nil
	}

	// Without a generation the result is served but not stored.
	gen, genErr := c.cache.Generation(ctx, req)
	if genErr != nil && err == nil {
		c.logger.WarnContext(ctx, "availability cache generation read failed", "err", genErr)
	}

	slots, err = c.next.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return slots, nil
	}
	if _, err := c.cache.Set(ctx, req, gen, slots); err != nil {
		c.logger.WarnContext(ctx, "availability cache write failed", "err", err)
	}
	return slots, nil
}
