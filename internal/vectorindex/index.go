package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type Metadata struct {
	PatientID   int64
	NoteID      string
	EncounterID *string
	NoteType    string
	Timestamp   time.Time
	Text        string
	ContentHash string
}

// Filter restricts a search to one patient. Only honoured by indexes whose
// SupportsFilter returns true.
type Filter struct {
	PatientID *int64
}

type Hit struct {
	ID       string
	Score    float64
	Metadata Metadata
}

type Index interface {
	Upsert(ctx context.Context, id string, vec []float32, meta Metadata) error
	Search(ctx context.Context, vec []float32, topK int, filter *Filter) ([]Hit, error)
	SupportsFilter() bool
}

func NoteVectorID(patientID int64, noteID string) string {
	return fmt.Sprintf("%d:%s", patientID, noteID)
}

// SortHits orders by score, then newer notes first, then note id.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hitLess(hits[i], hits[j])
	})
}

func hitLess(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Metadata.Timestamp.Equal(b.Metadata.Timestamp) {
		return a.Metadata.Timestamp.After(b.Metadata.Timestamp)
	}
	if a.Metadata.NoteID != b.Metadata.NoteID {
		return a.Metadata.NoteID < b.Metadata.NoteID
	}
	return a.Metadata.PatientID < b.Metadata.PatientID
}
