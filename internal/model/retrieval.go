package model

import "time"

type RetrievalResult struct {
	PatientID       int64     `json:"patient_id"`
	NoteID          string    `json:"note_id"`
	EncounterID     *string   `json:"encounter_id,omitempty"`
	NoteType        string    `json:"note_type"`
	Timestamp       time.Time `json:"timestamp"`
	NoteText        string    `json:"note_text"`
	SimilarityScore float64   `json:"similarity_score"`
	Rank            int       `json:"rank"`
}

type NoteSummary struct {
	NoteID          string    `json:"note_id"`
	NoteType        string    `json:"note_type"`
	Timestamp       time.Time `json:"timestamp"`
	NoteText        string    `json:"note_text"`
	SimilarityScore float64   `json:"similarity_score"`
}

type PatientGroup struct {
	PatientID    int64         `json:"patient_id"`
	TotalNotes   int           `json:"total_notes"`
	NotesSummary []NoteSummary `json:"notes_summary"`
}

type RetrievalSet struct {
	Results []RetrievalResult `json:"results"`
	Groups  []PatientGroup    `json:"groups,omitempty"`
}
