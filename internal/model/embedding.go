package model

// QueryEmbedding is a cached query vector, keyed by model, task and a hash
// of the query text.
type QueryEmbedding struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}

type NoteIndexState struct {
	PatientID   int64  `json:"patient_id"`
	NoteID      string `json:"note_id"`
	ContentHash string `json:"content_hash"`
	Mtime       int64  `json:"mtime"`
}

type NoteKey struct {
	PatientID int64
	NoteID    string
}
