package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sync"

	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

type memoryEntry struct {
	vec  []float32
	meta Metadata
}

// MemoryIndex is an exhaustive cosine index held in process memory. It has
// no native filtering.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]memoryEntry)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, id string, vec []float32, meta Metadata) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for %s: %w", id, appErr.ErrInvalid)
	}
	clone := make([]float32, len(vec))
	copy(clone, vec)
	m.mu.Lock()
	m.entries[id] = memoryEntry{vec: clone, meta: meta}
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vec []float32, topK int, filter *Filter) ([]Hit, error) {
	if filter != nil {
		return nil, fmt.Errorf("memory index does not filter: %w", appErr.ErrInvalid)
	}
	if err := ctx.Err(); err != nil {
		return nil, appErr.Upstream(appErr.ServiceVectorIndex, err)
	}
	m.mu.RLock()
	hits := make([]Hit, 0, len(m.entries))
	for id, entry := range m.entries {
		hits = append(hits, Hit{ID: id, Score: cosineSimilarity(vec, entry.vec), Metadata: entry.meta})
	}
	m.mu.RUnlock()
	SortHits(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryIndex) SupportsFilter() bool {
	return false
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
