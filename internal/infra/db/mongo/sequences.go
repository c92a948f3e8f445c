package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// sequences hands out monotonically increasing numbers per name. Numbers are
// taken outside the transaction, so an aborted unit leaves a gap.
type sequences struct {
	col *mongo.Collection
}

func newSequences(db *mongo.Database) sequences {
	return sequences{col: db.Collection(colSequences)}
}

func (s sequences) next(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := s.col.FindOneAndUpdate(withoutSession(ctx), bson.M{"_id": name}, bson.M{"$inc": bson.M{"value": 1}}, opts).Decode(&doc)
	if err != nil {
		return 0, mapErr("mongo.sequences", name+" sequence", err)
	}
	return doc.Value, nil
}
