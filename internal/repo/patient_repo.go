package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/clinrag/internal/model"
	"github.com/xxxsen/clinrag/internal/pkg/dbutil"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
	"github.com/xxxsen/clinrag/internal/pkg/timeutil"
)

var noteFields = []string{"patient_id", "note_id", "encounter_id", "note_ts", "note_type", "note_text"}

type PatientRepo struct {
	db *sql.DB
}

func NewPatientRepo(db *sql.DB) *PatientRepo {
	return &PatientRepo{db: db}
}

// Save writes a full patient record, replacing notes, events and QA pairs.
// It is used by the loader; the serving path only reads.
func (r *PatientRepo) Save(ctx context.Context, patient *model.Patient) error {
	for i := range patient.Events {
		if err := patient.Events[i].Validate(); err != nil {
			return fmt.Errorf("patient %d: %w: %v", patient.PatientID, appErr.ErrInvalid, err)
		}
	}
	demographics, err := json.Marshal(patient.Demographics)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	now := timeutil.NowUnix()
	const upsertPatient = `
		INSERT INTO patients (patient_id, demographics, ctime, mtime)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (patient_id) DO UPDATE SET demographics = EXCLUDED.demographics, mtime = EXCLUDED.mtime
	`
	if _, err := tx.ExecContext(ctx, upsertPatient, patient.PatientID, string(demographics), now); err != nil {
		return err
	}
	for _, table := range []string{"clinical_notes", "events", "qa_pairs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE patient_id = $1", patient.PatientID); err != nil {
			return err
		}
	}
	if len(patient.Notes) > 0 {
		rows := make([]map[string]interface{}, 0, len(patient.Notes))
		for _, note := range patient.Notes {
			rows = append(rows, map[string]interface{}{
				"patient_id":   patient.PatientID,
				"note_id":      note.NoteID,
				"encounter_id": nullString(note.EncounterID),
				"note_ts":      note.Timestamp,
				"note_type":    note.NoteType,
				"note_text":    note.Text,
				"mtime":        now,
			})
		}
		if err := insertRows(ctx, tx, "clinical_notes", rows); err != nil {
			return err
		}
	}
	if len(patient.Events) > 0 {
		rows := make([]map[string]interface{}, 0, len(patient.Events))
		for _, ev := range patient.Events {
			var numeric sql.NullFloat64
			if ev.NumericValue != nil {
				numeric = sql.NullFloat64{Float64: *ev.NumericValue, Valid: true}
			}
			rows = append(rows, map[string]interface{}{
				"patient_id":    patient.PatientID,
				"event_ts":      ev.Timestamp,
				"code":          ev.Code,
				"encounter_id":  nullString(ev.EncounterID),
				"numeric_value": numeric,
				"text_value":    nullString(ev.TextValue),
			})
		}
		if err := insertRows(ctx, tx, "events", rows); err != nil {
			return err
		}
	}
	if len(patient.QAPairs) > 0 {
		rows := make([]map[string]interface{}, 0, len(patient.QAPairs))
		for _, qa := range patient.QAPairs {
			rows = append(rows, map[string]interface{}{
				"patient_id": patient.PatientID,
				"question":   qa.Question,
				"answer":     qa.Answer,
				"source":     qa.Source,
			})
		}
		if err := insertRows(ctx, tx, "qa_pairs", rows); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, rows []map[string]interface{}) error {
	sqlStr, args, err := builder.BuildInsert(table, rows)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = tx.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *PatientRepo) GetByID(ctx context.Context, patientID int64) (*model.Patient, error) {
	row := r.db.QueryRowContext(ctx, "SELECT demographics FROM patients WHERE patient_id = $1", patientID)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	patient := &model.Patient{PatientID: patientID}
	if err := json.Unmarshal(blob, &patient.Demographics); err != nil {
		return nil, err
	}
	notes, err := r.listNotes(ctx, map[string]interface{}{
		"patient_id": patientID,
		"_orderby":   "note_ts asc, note_id asc",
	})
	if err != nil {
		return nil, err
	}
	patient.Notes = notes
	if patient.Events, err = r.listEvents(ctx, patientID); err != nil {
		return nil, err
	}
	if patient.QAPairs, err = r.listQAPairs(ctx, patientID); err != nil {
		return nil, err
	}
	return patient, nil
}

func (r *PatientRepo) GetNote(ctx context.Context, patientID int64, noteID string) (*model.ClinicalNote, error) {
	notes, err := r.listNotes(ctx, map[string]interface{}{
		"patient_id": patientID,
		"note_id":    noteID,
	})
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &notes[0], nil
}

// ListNotes pages through every note ordered by (patient_id, note_id),
// starting after the given key.
func (r *PatientRepo) ListNotes(ctx context.Context, after model.NoteKey, limit int) ([]model.ClinicalNote, error) {
	const query = `
		SELECT patient_id, note_id, encounter_id, note_ts, note_type, note_text
		FROM clinical_notes
		WHERE (patient_id, note_id) > ($1, $2)
		ORDER BY patient_id ASC, note_id ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, after.PatientID, after.NoteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (r *PatientRepo) ExistingIDs(ctx context.Context, patientIDs []int64) (map[int64]bool, error) {
	result := make(map[int64]bool, len(patientIDs))
	if len(patientIDs) == 0 {
		return result, nil
	}
	where := map[string]interface{}{
		"_custom_ids": builder.In{"patient_id": dbutil.InArgs(patientIDs)},
	}
	sqlStr, args, err := builder.BuildSelect("patients", where, []string{"patient_id"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	return result, rows.Err()
}

func (r *PatientRepo) Summary(ctx context.Context) (*model.DatabaseSummary, error) {
	const query = `
		SELECT
			(SELECT COUNT(1) FROM patients),
			(SELECT COUNT(1) FROM clinical_notes),
			(SELECT COUNT(1) FROM qa_pairs)
	`
	var summary model.DatabaseSummary
	if err := r.db.QueryRowContext(ctx, query).Scan(&summary.TotalPatients, &summary.TotalNotes, &summary.TotalQAPairs); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *PatientRepo) listNotes(ctx context.Context, where map[string]interface{}) ([]model.ClinicalNote, error) {
	sqlStr, args, err := builder.BuildSelect("clinical_notes", where, noteFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]model.ClinicalNote, error) {
	notes := make([]model.ClinicalNote, 0)
	for rows.Next() {
		var note model.ClinicalNote
		var encounter sql.NullString
		if err := rows.Scan(&note.PatientID, &note.NoteID, &encounter, &note.Timestamp, &note.NoteType, &note.Text); err != nil {
			return nil, err
		}
		note.EncounterID = stringPtr(encounter)
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (r *PatientRepo) listEvents(ctx context.Context, patientID int64) ([]model.Event, error) {
	where := map[string]interface{}{
		"patient_id": patientID,
		"_orderby":   "event_ts asc, id asc",
	}
	sqlStr, args, err := builder.BuildSelect("events", where, []string{"event_ts", "code", "encounter_id", "numeric_value", "text_value"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.Event, 0)
	for rows.Next() {
		var ev model.Event
		var encounter, text sql.NullString
		var numeric sql.NullFloat64
		if err := rows.Scan(&ev.Timestamp, &ev.Code, &encounter, &numeric, &text); err != nil {
			return nil, err
		}
		ev.EncounterID = stringPtr(encounter)
		ev.TextValue = stringPtr(text)
		if numeric.Valid {
			value := numeric.Float64
			ev.NumericValue = &value
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *PatientRepo) listQAPairs(ctx context.Context, patientID int64) ([]model.QAPair, error) {
	where := map[string]interface{}{
		"patient_id": patientID,
		"_orderby":   "id asc",
	}
	sqlStr, args, err := builder.BuildSelect("qa_pairs", where, []string{"question", "answer", "source"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pairs := make([]model.QAPair, 0)
	for rows.Next() {
		var qa model.QAPair
		if err := rows.Scan(&qa.Question, &qa.Answer, &qa.Source); err != nil {
			return nil, err
		}
		pairs = append(pairs, qa)
	}
	return pairs, rows.Err()
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
