package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

func TestPatientServiceLookups(t *testing.T) {
	p := patient(42, "n1", "n2")
	p.QAPairs = []model.QAPair{{Question: "q", Answer: "a"}}
	svc := NewPatientService(newFakePatients(p), nil, 2)
	ctx := context.Background()

	got, err := svc.Get(ctx, 42)
	require.NoError(t, err)
	require.Len(t, got.Notes, 2)

	note, err := svc.Note(ctx, 42, "n2")
	require.NoError(t, err)
	require.Equal(t, "note n2", note.Text)

	_, err = svc.Note(ctx, 42, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = svc.Get(ctx, 1)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, model.DatabaseSummary{TotalPatients: 1, TotalNotes: 2, TotalQAPairs: 1}, *summary)
}

func TestExtractNoteEntities(t *testing.T) {
	ner := &fakeNER{}
	svc := NewPatientService(newFakePatients(patient(42, "n1", "n2", "n3")), ner, 2)
	ctx := context.Background()

	entities, err := svc.ExtractNoteEntities(ctx, 42, "n1")
	require.NoError(t, err)
	require.Equal(t, "n1", entities.NoteID)
	require.Equal(t, "note n1", entities.Text)

	batch, err := svc.ExtractEntitiesBatch(ctx, 42, []string{"n3", "n1", "n2"})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.Equal(t, "n3", batch[0].NoteID)
	require.Equal(t, "n1", batch[1].NoteID)
	require.Equal(t, "n2", batch[2].NoteID)
}

func TestExtractEntitiesErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewPatientService(newFakePatients(patient(42, "n1")), nil, 1)
	_, err := svc.ExtractNoteEntities(ctx, 42, "n1")
	require.Equal(t, "upstream_unavailable", appErr.Kind(err))

	svc = NewPatientService(newFakePatients(patient(42, "n1", "n2")), &fakeNER{fail: "n2"}, 2)
	_, err = svc.ExtractEntitiesBatch(ctx, 42, []string{"n1", "n2"})
	require.Equal(t, "upstream_unavailable", appErr.Kind(err))
	_, err = svc.ExtractEntitiesBatch(ctx, 42, []string{"n1", "nope"})
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
