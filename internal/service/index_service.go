package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
	"github.com/xxxsen/clinrag/internal/pkg/timeutil"
	"github.com/xxxsen/clinrag/internal/vectorindex"
)

type IndexService struct {
	patients    PatientStore
	states      IndexStateStore
	index       vectorindex.Index
	embedder    ai.IEmbedder
	batchSize   int
	parallelism int
}

func NewIndexService(patients PatientStore, states IndexStateStore, index vectorindex.Index, embedder ai.IEmbedder, batchSize, parallelism int) *IndexService {
	if batchSize <= 0 {
		batchSize = 64
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &IndexService{
		patients:    patients,
		states:      states,
		index:       index,
		embedder:    embedder,
		batchSize:   batchSize,
		parallelism: parallelism,
	}
}

type SyncStats struct {
	Scanned  int64 `json:"scanned"`
	Embedded int64 `json:"embedded"`
	Skipped  int64 `json:"skipped"`
}

// SyncNotes walks every note and embeds the ones whose content changed since
// they were last indexed. Notes of one batch are embedded in parallel; the
// first failure stops the sync and already indexed notes stay recorded.
func (s *IndexService) SyncNotes(ctx context.Context) (*SyncStats, error) {
	start := time.Now()
	stats := &SyncStats{}
	var embedded atomic.Int64
	after := model.NoteKey{PatientID: math.MinInt64}
	for {
		notes, err := s.patients.ListNotes(ctx, after, s.batchSize)
		if err != nil {
			return nil, err
		}
		if len(notes) == 0 {
			break
		}
		last := notes[len(notes)-1]
		after = model.NoteKey{PatientID: last.PatientID, NoteID: last.NoteID}

		keys := make([]model.NoteKey, 0, len(notes))
		for _, note := range notes {
			keys = append(keys, model.NoteKey{PatientID: note.PatientID, NoteID: note.NoteID})
		}
		hashes, err := s.states.ListHashes(ctx, keys)
		if err != nil {
			return nil, err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.parallelism)
		for _, note := range notes {
			stats.Scanned++
			hash := noteContentHash(note)
			if hashes[model.NoteKey{PatientID: note.PatientID, NoteID: note.NoteID}] == hash {
				stats.Skipped++
				continue
			}
			g.Go(func() error {
				if err := s.indexNote(gctx, note, hash); err != nil {
					logutil.GetLogger(gctx).Error("index note failed",
						zap.Int64("patient_id", note.PatientID),
						zap.String("note_id", note.NoteID),
						zap.Error(err))
					return err
				}
				embedded.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if len(notes) < s.batchSize {
			break
		}
	}
	stats.Embedded = embedded.Load()
	logutil.GetLogger(ctx).Info("note embedding sync finished",
		zap.Int64("scanned", stats.Scanned),
		zap.Int64("embedded", stats.Embedded),
		zap.Int64("skipped", stats.Skipped),
		zap.Duration("cost", time.Since(start)))
	return stats, nil
}

func (s *IndexService) indexNote(ctx context.Context, note model.ClinicalNote, hash string) error {
	vec, err := s.embedder.Embed(ctx, note.Text, ai.TaskDocument)
	if err != nil {
		return err
	}
	meta := vectorindex.Metadata{
		PatientID:   note.PatientID,
		NoteID:      note.NoteID,
		EncounterID: note.EncounterID,
		NoteType:    note.NoteType,
		Timestamp:   note.Timestamp,
		Text:        note.Text,
		ContentHash: hash,
	}
	if err := s.index.Upsert(ctx, vectorindex.NoteVectorID(note.PatientID, note.NoteID), vec, meta); err != nil {
		return appErr.Upstream(appErr.ServiceVectorIndex, err)
	}
	return s.states.Save(ctx, &model.NoteIndexState{
		PatientID:   note.PatientID,
		NoteID:      note.NoteID,
		ContentHash: hash,
		Mtime:       timeutil.NowUnix(),
	})
}

// noteContentHash covers every field that ends up in the index metadata.
func noteContentHash(note model.ClinicalNote) string {
	h := sha256.New()
	encounter := ""
	if note.EncounterID != nil {
		encounter = *note.EncounterID
	}
	for _, part := range []string{note.NoteType, note.Timestamp.UTC().Format(time.RFC3339Nano), encounter, note.Text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
