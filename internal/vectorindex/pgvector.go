package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
	"github.com/xxxsen/clinrag/internal/pkg/timeutil"
)

// PGVectorIndex stores note embeddings in the note_vectors table and ranks
// them by cosine distance. Score is 1 - distance.
type PGVectorIndex struct {
	db *sql.DB
}

func NewPGVectorIndex(db *sql.DB) *PGVectorIndex {
	return &PGVectorIndex{db: db}
}

func (p *PGVectorIndex) Upsert(ctx context.Context, id string, vec []float32, meta Metadata) error {
	const query = `
		INSERT INTO note_vectors (id, patient_id, note_id, encounter_id, note_type, note_ts, note_text, content_hash, embedding, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			encounter_id = EXCLUDED.encounter_id,
			note_type = EXCLUDED.note_type,
			note_ts = EXCLUDED.note_ts,
			note_text = EXCLUDED.note_text,
			content_hash = EXCLUDED.content_hash,
			embedding = EXCLUDED.embedding,
			mtime = EXCLUDED.mtime
	`
	var encounter sql.NullString
	if meta.EncounterID != nil {
		encounter = sql.NullString{String: *meta.EncounterID, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, query,
		id,
		meta.PatientID,
		meta.NoteID,
		encounter,
		meta.NoteType,
		meta.Timestamp,
		meta.Text,
		meta.ContentHash,
		pgvector.NewVector(vec),
		timeutil.NowUnix(),
	)
	if err != nil {
		return appErr.Upstream(appErr.ServiceVectorIndex, err)
	}
	return nil
}

func (p *PGVectorIndex) Search(ctx context.Context, vec []float32, topK int, filter *Filter) ([]Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive: %w", appErr.ErrInvalid)
	}
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, patient_id, note_id, encounter_id, note_type, note_ts, note_text, content_hash,
			1 - (embedding <=> $1) AS score
		FROM note_vectors`)
	args := []interface{}{pgvector.NewVector(vec)}
	if filter != nil && filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		fmt.Fprintf(&sb, " WHERE patient_id = $%d", len(args))
	}
	args = append(args, topK)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1, note_ts DESC, note_id ASC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, appErr.Upstream(appErr.ServiceVectorIndex, err)
	}
	defer rows.Close()
	var hits []Hit
	for rows.Next() {
		var hit Hit
		var encounter sql.NullString
		if err := rows.Scan(
			&hit.ID,
			&hit.Metadata.PatientID,
			&hit.Metadata.NoteID,
			&encounter,
			&hit.Metadata.NoteType,
			&hit.Metadata.Timestamp,
			&hit.Metadata.Text,
			&hit.Metadata.ContentHash,
			&hit.Score,
		); err != nil {
			return nil, appErr.Upstream(appErr.ServiceVectorIndex, err)
		}
		if encounter.Valid {
			value := encounter.String
			hit.Metadata.EncounterID = &value
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Upstream(appErr.ServiceVectorIndex, err)
	}
	SortHits(hits)
	return hits, nil
}

func (p *PGVectorIndex) SupportsFilter() bool {
	return true
}
