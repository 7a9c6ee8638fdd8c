package model

import (
	"fmt"
	"strings"
	"time"
)

type Patient struct {
	PatientID    int64                  `json:"patient_id" bson:"_id"`
	Demographics map[string]interface{} `json:"demographics" bson:"demographics"`
	Notes        []ClinicalNote         `json:"notes" bson:"notes"`
	Events       []Event                `json:"events" bson:"events"`
	QAPairs      []QAPair               `json:"qa_pairs" bson:"qa_pairs"`
}

type ClinicalNote struct {
	PatientID   int64     `json:"patient_id" bson:"patient_id"`
	NoteID      string    `json:"note_id" bson:"note_id"`
	EncounterID *string   `json:"encounter_id,omitempty" bson:"encounter_id,omitempty"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	NoteType    string    `json:"note_type" bson:"note_type"`
	Text        string    `json:"text" bson:"text"`
}

// Event is a coded clinical event. At most one of NumericValue and TextValue
// is set.
type Event struct {
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
	Code         string    `json:"code" bson:"code"`
	EncounterID  *string   `json:"encounter_id,omitempty" bson:"encounter_id,omitempty"`
	NumericValue *float64  `json:"numeric_value,omitempty" bson:"numeric_value,omitempty"`
	TextValue    *string   `json:"text_value,omitempty" bson:"text_value,omitempty"`
}

const eventCodeSep = "//"

func (e *Event) Validate() error {
	if e.NumericValue != nil && e.TextValue != nil {
		return fmt.Errorf("event %q has both numeric and text value", e.Code)
	}
	if _, _, ok := SplitEventCode(e.Code); !ok {
		return fmt.Errorf("event code %q is not of form type//detail", e.Code)
	}
	return nil
}

// SplitEventCode splits "LAB//glucose" into its type and detail.
func SplitEventCode(code string) (string, string, bool) {
	typ, detail, ok := strings.Cut(code, eventCodeSep)
	if !ok || typ == "" || detail == "" {
		return "", "", false
	}
	return typ, detail, true
}

func JoinEventCode(typ, detail string) string {
	return typ + eventCodeSep + detail
}

type QAPair struct {
	Question string `json:"question" bson:"question"`
	Answer   string `json:"answer" bson:"answer"`
	Source   string `json:"source,omitempty" bson:"source,omitempty"`
}

type DatabaseSummary struct {
	TotalPatients int64 `json:"total_patients"`
	TotalNotes    int64 `json:"total_notes"`
	TotalQAPairs  int64 `json:"total_qa_pairs"`
}
