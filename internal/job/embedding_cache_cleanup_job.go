package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const EmbeddingCacheCleanupJobName = "embedding_cache_cleanup"

type CacheCleaner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// EmbeddingCacheCleanupJob drops cached query embeddings older than maxAge.
type EmbeddingCacheCleanupJob struct {
	cache  CacheCleaner
	maxAge time.Duration
	now    func() time.Time
}

func NewEmbeddingCacheCleanupJob(cache CacheCleaner, maxAgeDays int) *EmbeddingCacheCleanupJob {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	return &EmbeddingCacheCleanupJob{
		cache:  cache,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
		now:    time.Now,
	}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return EmbeddingCacheCleanupJobName
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.cache == nil {
		return nil
	}
	cutoff := j.now().Add(-j.maxAge).Unix()
	deleted, err := j.cache.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("embedding cache pruned", zap.Int64("deleted", deleted))
	return nil
}
