package extractor

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"ragmemory/internal/errs"
	"ragmemory/internal/model"
)

// resultCache is the per-session extraction cache the extractor consults
// before calling the LLM. The default is an in-process LRU; setting
// RAG_REDIS_URL swaps in a distributed cache shared across process
// instances.
type resultCache interface {
	Get(sessionID string) (model.ExtractResult, bool)
	Add(sessionID string, result model.ExtractResult)
}

type lruCache struct {
	c *lru.Cache[string, model.ExtractResult]
}

func newLRUCache(size int) (resultCache, error) {
	c, err := lru.New[string, model.ExtractResult](size)
	if err != nil {
		return nil, errs.Wrap(errs.NotInitialized, "extractor: failed to create cache", err)
	}
	return &lruCache{c: c}, nil
}

func (l *lruCache) Get(sessionID string) (model.ExtractResult, bool) { return l.c.Get(sessionID) }
func (l *lruCache) Add(sessionID string, result model.ExtractResult) { l.c.Add(sessionID, result) }

// redisCache stores extraction results as JSON in Redis, keyed by
// session id, with a 24h TTL so stale entries age out on their own.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisCache(redisURL string) (resultCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errs.Wrap(errs.NotInitialized, "extractor: invalid RAG_REDIS_URL", err)
	}
	return &redisCache{client: redis.NewClient(opts), ttl: 24 * time.Hour}, nil
}

func (r *redisCache) Get(sessionID string) (model.ExtractResult, bool) {
	data, err := r.client.Get(context.Background(), cacheKey(sessionID)).Bytes()
	if err != nil {
		return model.ExtractResult{}, false
	}
	var result model.ExtractResult
	if err := json.Unmarshal(data, &result); err != nil {
		return model.ExtractResult{}, false
	}
	return result, true
}

func (r *redisCache) Add(sessionID string, result model.ExtractResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	r.client.Set(context.Background(), cacheKey(sessionID), data, r.ttl)
}

func cacheKey(sessionID string) string { return "ragmemory:extract:" + sessionID }
