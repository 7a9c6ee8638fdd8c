package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

// PageStore keeps one document per page. Updates are guarded by the version
// field, which MongoDB checks and bumps atomically in a single UpdateOne.
type PageStore struct {
	coll *mongo.Collection
}

func NewPageStore(db *mongo.Database) *PageStore {
	return &PageStore{coll: db.Collection(pagesCollection)}
}

func (s *PageStore) Create(ctx context.Context, page *model.Page) error {
	if _, err := s.coll.InsertOne(ctx, page); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (s *PageStore) GetByID(ctx context.Context, userID, pageID string) (*model.Page, error) {
	var page model.Page
	err := s.coll.FindOne(ctx, bson.M{"_id": pageID, "user_id": userID}).Decode(&page)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &page, nil
}

func (s *PageStore) ListByUser(ctx context.Context, userID string) ([]model.Page, error) {
	opts := options.Find().SetSort(bsonD("ctime", -1, "_id", 1))
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	pages := make([]model.Page, 0)
	if err := cursor.All(ctx, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (s *PageStore) Replace(ctx context.Context, page *model.Page, expectVersion int64) error {
	filter := bson.M{"_id": page.ID, "user_id": page.UserID, "version": expectVersion}
	update := bson.M{
		"$set": bson.M{
			"query_answers": page.QueryAnswers,
			"mtime":         page.Mtime,
		},
		"$inc": bson.M{"version": 1},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetByID(ctx, page.UserID, page.ID); err != nil {
			return err
		}
		return appErr.ErrConflict
	}
	page.Version = expectVersion + 1
	return nil
}

func bsonD(pairs ...interface{}) bson.D {
	doc := make(bson.D, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		doc = append(doc, bson.E{Key: pairs[i].(string), Value: pairs[i+1]})
	}
	return doc
}
