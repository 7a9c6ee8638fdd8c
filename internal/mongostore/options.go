package mongostore

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func optionsUpsert() *options.ReplaceOptions {
	return options.Replace().SetUpsert(true)
}

func projectionID() *options.FindOptions {
	return options.Find().SetProjection(bson.M{"_id": 1})
}
