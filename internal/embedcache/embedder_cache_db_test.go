package embedcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/model"
)

type memQueryCache struct {
	items   map[string][]float32
	getErr  error
	saveErr error
	saves   int
}

func (m *memQueryCache) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.items[modelName+"/"+taskType+"/"+contentHash]
	return v, ok, nil
}

func (m *memQueryCache) Save(ctx context.Context, item *model.QueryEmbedding) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.items[item.ModelName+"/"+item.TaskType+"/"+item.ContentHash] = item.Embedding
	return nil
}

func TestDBEmbedderCachesQueriesOnly(t *testing.T) {
	next := &countingEmbedder{}
	store := &memQueryCache{items: map[string][]float32{}}
	e := WrapDBCacheToEmbedder(next, store)

	for i := 0; i < 2; i++ {
		v, err := e.Embed(context.Background(), "sepsis", ai.TaskQuery)
		require.NoError(t, err)
		require.Equal(t, []float32{6, 1}, v)
	}
	require.Equal(t, 1, next.calls)
	require.Equal(t, 1, store.saves)

	for i := 0; i < 2; i++ {
		_, err := e.Embed(context.Background(), "note text", ai.TaskDocument)
		require.NoError(t, err)
	}
	require.Equal(t, 3, next.calls)
	require.Equal(t, 1, store.saves)
}

func TestDBEmbedderSurvivesStoreErrors(t *testing.T) {
	tests := []struct {
		name  string
		store *memQueryCache
	}{
		{name: "read fails", store: &memQueryCache{items: map[string][]float32{}, getErr: errors.New("db down")}},
		{name: "write fails", store: &memQueryCache{items: map[string][]float32{}, saveErr: errors.New("db down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &countingEmbedder{}
			e := WrapDBCacheToEmbedder(next, tt.store)
			v, err := e.Embed(context.Background(), "q", ai.TaskQuery)
			require.NoError(t, err)
			require.Equal(t, []float32{1, 1}, v)
			require.Equal(t, 1, next.calls)
		})
	}
}

func TestWrapDBCacheWithoutStore(t *testing.T) {
	next := &countingEmbedder{}
	require.Same(t, next, WrapDBCacheToEmbedder(next, nil))
}
