package location

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/cache"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
)

// Cached serves repeat lookups from a cache. Cache failures fall through
// to the wrapped client.
type Cached struct {
	next   Client
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(next Client, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl, logger: logging.OrNop(logger)}
}

func (c *Cached) Lookup(ctx context.Context, q Query) (*Result, error) {
	key := "location:" + q.Key()

	if raw, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("location cache read failed", zap.Error(err))
	} else if raw != "" {
		var res Result
		if err := json.Unmarshal([]byte(raw), &res); err == nil {
			return &res, nil
		}
	}

	res, err := c.next.Lookup(ctx, q)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(res); err == nil {
		if err := c.cache.Set(ctx, key, string(raw), c.ttl); err != nil {
			c.logger.Warn("location cache write failed", zap.Error(err))
		}
	}
	return res, nil
}
