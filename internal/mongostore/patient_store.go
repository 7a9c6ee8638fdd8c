package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

// PatientStore keeps each patient record as one document with notes,
// events and QA pairs embedded.
type PatientStore struct {
	coll *mongo.Collection
}

func NewPatientStore(db *mongo.Database) *PatientStore {
	return &PatientStore{coll: db.Collection(patientsCollection)}
}

func (s *PatientStore) Save(ctx context.Context, patient *model.Patient) error {
	for i := range patient.Events {
		if err := patient.Events[i].Validate(); err != nil {
			return errors.Join(appErr.ErrInvalid, err)
		}
	}
	for i := range patient.Notes {
		patient.Notes[i].PatientID = patient.PatientID
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": patient.PatientID}, patient, optionsUpsert())
	return err
}

func (s *PatientStore) GetByID(ctx context.Context, patientID int64) (*model.Patient, error) {
	var patient model.Patient
	if err := s.coll.FindOne(ctx, bson.M{"_id": patientID}).Decode(&patient); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &patient, nil
}

func (s *PatientStore) GetNote(ctx context.Context, patientID int64, noteID string) (*model.ClinicalNote, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": patientID}}},
		{{Key: "$unwind", Value: "$notes"}},
		{{Key: "$match", Value: bson.M{"notes.note_id": noteID}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$notes"}}},
		{{Key: "$limit", Value: 1}},
	}
	notes, err := s.aggregateNotes(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &notes[0], nil
}

func (s *PatientStore) ListNotes(ctx context.Context, after model.NoteKey, limit int) ([]model.ClinicalNote, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$gte": after.PatientID}}}},
		{{Key: "$unwind", Value: "$notes"}},
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"_id": bson.M{"$gt": after.PatientID}},
			bson.M{"_id": after.PatientID, "notes.note_id": bson.M{"$gt": after.NoteID}},
		}}}},
		{{Key: "$sort", Value: bsonD("_id", 1, "notes.note_id", 1)}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$notes"}}},
	}
	return s.aggregateNotes(ctx, pipeline)
}

func (s *PatientStore) aggregateNotes(ctx context.Context, pipeline mongo.Pipeline) ([]model.ClinicalNote, error) {
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	notes := make([]model.ClinicalNote, 0)
	if err := cursor.All(ctx, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *PatientStore) ExistingIDs(ctx context.Context, patientIDs []int64) (map[int64]bool, error) {
	result := make(map[int64]bool, len(patientIDs))
	if len(patientIDs) == 0 {
		return result, nil
	}
	cursor, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": patientIDs}}, projectionID())
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var doc struct {
			ID int64 `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result[doc.ID] = true
	}
	return result, cursor.Err()
}

func (s *PatientStore) Summary(ctx context.Context) (*model.DatabaseSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"patients": bson.M{"$sum": 1},
			"notes":    bson.M{"$sum": bson.M{"$size": bson.M{"$ifNull": bson.A{"$notes", bson.A{}}}}},
			"qa_pairs": bson.M{"$sum": bson.M{"$size": bson.M{"$ifNull": bson.A{"$qa_pairs", bson.A{}}}}},
		}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	summary := &model.DatabaseSummary{}
	if cursor.Next(ctx) {
		var doc struct {
			Patients int64 `bson:"patients"`
			Notes    int64 `bson:"notes"`
			QAPairs  int64 `bson:"qa_pairs"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		summary.TotalPatients = doc.Patients
		summary.TotalNotes = doc.Notes
		summary.TotalQAPairs = doc.QAPairs
	}
	return summary, cursor.Err()
}
