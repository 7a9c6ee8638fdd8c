package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/service"
)

const NoteEmbeddingJobName = "note_embedding"

// NoteEmbeddingJob keeps the vector index in step with the document store.
type NoteEmbeddingJob struct {
	index *service.IndexService
}

func NewNoteEmbeddingJob(index *service.IndexService) *NoteEmbeddingJob {
	return &NoteEmbeddingJob{index: index}
}

func (j *NoteEmbeddingJob) Name() string {
	return NoteEmbeddingJobName
}

func (j *NoteEmbeddingJob) Run(ctx context.Context) error {
	if j.index == nil {
		return nil
	}
	stats, err := j.index.SyncNotes(ctx)
	if err != nil {
		return err
	}
	if stats.Embedded > 0 {
		logutil.GetLogger(ctx).Info("notes re-indexed", zap.Int64("embedded", stats.Embedded))
	}
	return nil
}
