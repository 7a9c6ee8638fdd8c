package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xxxsen/clinrag/internal/model"
)

// NoteIndexRepo records which content hash of each note is currently in the
// vector index.
type NoteIndexRepo struct {
	db *sql.DB
}

func NewNoteIndexRepo(db *sql.DB) *NoteIndexRepo {
	return &NoteIndexRepo{db: db}
}

func (r *NoteIndexRepo) ListHashes(ctx context.Context, keys []model.NoteKey) (map[model.NoteKey]string, error) {
	result := make(map[model.NoteKey]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	var sb strings.Builder
	sb.WriteString("SELECT patient_id, note_id, content_hash FROM note_index_state WHERE (patient_id, note_id) IN (")
	args := make([]interface{}, 0, len(keys)*2)
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, key.PatientID, key.NoteID)
		fmt.Fprintf(&sb, "($%d, $%d)", len(args)-1, len(args))
	}
	sb.WriteString(")")
	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key model.NoteKey
		var hash string
		if err := rows.Scan(&key.PatientID, &key.NoteID, &hash); err != nil {
			return nil, err
		}
		result[key] = hash
	}
	return result, rows.Err()
}

func (r *NoteIndexRepo) Save(ctx context.Context, state *model.NoteIndexState) error {
	const query = `
		INSERT INTO note_index_state (patient_id, note_id, content_hash, mtime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, note_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query, state.PatientID, state.NoteID, state.ContentHash, state.Mtime)
	return err
}
