package vectorindex

import (
	"context"
	"sync"

	"github.com/xxxsen/clinrag/internal/model"
)

// MemoryState tracks indexed content hashes next to a MemoryIndex. Both are
// lost on restart, so a fresh process re-embeds everything.
type MemoryState struct {
	mu     sync.RWMutex
	hashes map[model.NoteKey]string
}

func NewMemoryState() *MemoryState {
	return &MemoryState{hashes: make(map[model.NoteKey]string)}
}

func (m *MemoryState) ListHashes(ctx context.Context, keys []model.NoteKey) (map[model.NoteKey]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[model.NoteKey]string, len(keys))
	for _, key := range keys {
		if hash, ok := m.hashes[key]; ok {
			result[key] = hash
		}
	}
	return result, nil
}

func (m *MemoryState) Save(ctx context.Context, state *model.NoteIndexState) error {
	m.mu.Lock()
	m.hashes[model.NoteKey{PatientID: state.PatientID, NoteID: state.NoteID}] = state.ContentHash
	m.mu.Unlock()
	return nil
}
