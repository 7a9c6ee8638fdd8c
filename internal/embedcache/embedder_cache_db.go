package embedcache

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/model"
	"github.com/xxxsen/clinrag/internal/pkg/timeutil"
)

type QueryCacheStore interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.QueryEmbedding) error
}

// WrapDBCacheToEmbedder persists query embeddings. Document embeddings pass
// straight through: the index already remembers which note versions it has.
func WrapDBCacheToEmbedder(e ai.IEmbedder, store QueryCacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store QueryCacheStore
}

func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if taskType != ai.TaskQuery {
		return d.next.Embed(ctx, text, taskType)
	}
	logger := logutil.GetLogger(ctx)
	key := newCacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.store.Get(ctx, key.model, key.task, key.hash)
	if err != nil {
		logger.Warn("read embedding cache failed", zap.Error(err))
	} else if ok {
		logger.Debug("embedding cache hit (db)", zap.String("task_type", taskType))
		return values, nil
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, &model.QueryEmbedding{
		ModelName:   key.model,
		TaskType:    key.task,
		ContentHash: key.hash,
		Embedding:   cloneEmbedding(res),
		Ctime:       timeutil.NowUnix(),
	}); err != nil {
		logger.Warn("failed to cache embedding", zap.Error(err))
	}
	return res, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
