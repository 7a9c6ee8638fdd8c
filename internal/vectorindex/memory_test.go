package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryIndexSearchOrdering(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, idx.Upsert(ctx, NoteVectorID(1, "b"), []float32{1, 0}, Metadata{PatientID: 1, NoteID: "b", Timestamp: base}))
	require.NoError(t, idx.Upsert(ctx, NoteVectorID(1, "a"), []float32{1, 0}, Metadata{PatientID: 1, NoteID: "a", Timestamp: base}))
	require.NoError(t, idx.Upsert(ctx, NoteVectorID(2, "c"), []float32{1, 0}, Metadata{PatientID: 2, NoteID: "c", Timestamp: base.Add(time.Hour)}))
	require.NoError(t, idx.Upsert(ctx, NoteVectorID(3, "d"), []float32{0, 1}, Metadata{PatientID: 3, NoteID: "d", Timestamp: base}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	// equal scores: newest first, then note id ascending
	require.Equal(t, "c", hits[0].Metadata.NoteID)
	require.Equal(t, "a", hits[1].Metadata.NoteID)
	require.Equal(t, "b", hits[2].Metadata.NoteID)
	require.Equal(t, "d", hits[3].Metadata.NoteID)
	require.InDelta(t, 1.0, hits[0].Score, 1e-9)
	require.InDelta(t, 0.0, hits[3].Score, 1e-9)

	hits, err = idx.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "1:n", []float32{1, 0}, Metadata{NoteID: "n", Text: "old"}))
	require.NoError(t, idx.Upsert(ctx, "1:n", []float32{0, 1}, Metadata{NoteID: "n", Text: "new"}))
	require.Equal(t, 1, idx.Len())
	hits, err := idx.Search(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Equal(t, "new", hits[0].Metadata.Text)
}

func TestMemoryIndexRejectsFilter(t *testing.T) {
	idx := NewMemoryIndex()
	pid := int64(1)
	require.False(t, idx.SupportsFilter())
	_, err := idx.Search(context.Background(), []float32{1}, 1, &Filter{PatientID: &pid})
	require.Error(t, err)
	require.Error(t, idx.Upsert(context.Background(), "x", nil, Metadata{}))
}
