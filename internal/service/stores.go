package service

import (
	"context"

	"github.com/xxxsen/clinrag/internal/model"
)

// PatientStore is the read side of the document store. Both the Postgres
// repo and the Mongo store satisfy it.
type PatientStore interface {
	GetByID(ctx context.Context, patientID int64) (*model.Patient, error)
	GetNote(ctx context.Context, patientID int64, noteID string) (*model.ClinicalNote, error)
	ExistingIDs(ctx context.Context, patientIDs []int64) (map[int64]bool, error)
	ListNotes(ctx context.Context, after model.NoteKey, limit int) ([]model.ClinicalNote, error)
	Summary(ctx context.Context) (*model.DatabaseSummary, error)
}

// PageStore persists pages. Replace must fail with ErrConflict when the
// stored version differs from expectVersion and with ErrNotFound when the
// page is gone.
type PageStore interface {
	Create(ctx context.Context, page *model.Page) error
	GetByID(ctx context.Context, userID, pageID string) (*model.Page, error)
	ListByUser(ctx context.Context, userID string) ([]model.Page, error)
	Replace(ctx context.Context, page *model.Page, expectVersion int64) error
}

type IndexStateStore interface {
	ListHashes(ctx context.Context, keys []model.NoteKey) (map[model.NoteKey]string, error)
	Save(ctx context.Context, state *model.NoteIndexState) error
}

type EntityExtractor interface {
	Extract(ctx context.Context, noteID string, text string) (*model.NoteEntities, error)
}
