package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/clinrag/internal/ai"
)

// memoryEmbedder is the in-process layer in front of the embedding service.
// Concurrent misses on the same key share one upstream call.
type memoryEmbedder struct {
	next     ai.IEmbedder
	recent   *expirable.LRU[cacheKey, []float32]
	inflight singleflight.Group
}

// WrapLruCacheToEmbedder returns e unchanged when size or ttl disable the
// cache.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &memoryEmbedder{
		next:   e,
		recent: expirable.NewLRU[cacheKey, []float32](size, nil, ttl),
	}
}

func (m *memoryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := newCacheKey(m.next.ModelName(), taskType, text)
	if vec, ok := m.recent.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding served from memory", zap.String("task_type", taskType))
		return cloneEmbedding(vec), nil
	}
	res, err, shared := m.inflight.Do(key.String(), func() (interface{}, error) {
		vec, err := m.next.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		m.recent.Add(key, cloneEmbedding(vec))
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logutil.GetLogger(ctx).Debug("embedding shared with concurrent request", zap.String("task_type", taskType))
	}
	return cloneEmbedding(res.([]float32)), nil
}

func (m *memoryEmbedder) ModelName() string {
	return m.next.ModelName()
}
