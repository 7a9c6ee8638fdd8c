package service

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

var errNERNotConfigured = errors.New("ner service not configured")

type PatientService struct {
	patients    PatientStore
	ner         EntityExtractor
	parallelism int
}

func NewPatientService(patients PatientStore, ner EntityExtractor, parallelism int) *PatientService {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &PatientService{patients: patients, ner: ner, parallelism: parallelism}
}

func (s *PatientService) Get(ctx context.Context, patientID int64) (*model.Patient, error) {
	return s.patients.GetByID(ctx, patientID)
}

func (s *PatientService) Note(ctx context.Context, patientID int64, noteID string) (*model.ClinicalNote, error) {
	if noteID == "" {
		return nil, appErr.ErrInvalid
	}
	return s.patients.GetNote(ctx, patientID, noteID)
}

func (s *PatientService) Summary(ctx context.Context) (*model.DatabaseSummary, error) {
	return s.patients.Summary(ctx)
}

func (s *PatientService) ExtractNoteEntities(ctx context.Context, patientID int64, noteID string) (*model.NoteEntities, error) {
	if s.ner == nil {
		return nil, appErr.NewUpstreamError(appErr.ServiceNER, appErr.UpstreamUnavailable, errNERNotConfigured)
	}
	note, err := s.Note(ctx, patientID, noteID)
	if err != nil {
		return nil, err
	}
	return s.ner.Extract(ctx, note.NoteID, note.Text)
}

// ExtractEntitiesBatch runs extraction for several notes of one patient in
// parallel. Results keep the order of noteIDs; the first failure cancels the
// rest.
func (s *PatientService) ExtractEntitiesBatch(ctx context.Context, patientID int64, noteIDs []string) ([]*model.NoteEntities, error) {
	results := make([]*model.NoteEntities, len(noteIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, noteID := range noteIDs {
		g.Go(func() error {
			entities, err := s.ExtractNoteEntities(gctx, patientID, noteID)
			if err != nil {
				logutil.GetLogger(gctx).Error("extract note entities failed",
					zap.Int64("patient_id", patientID), zap.String("note_id", noteID), zap.Error(err))
				return err
			}
			results[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
