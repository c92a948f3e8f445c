package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"activityhub/internal/domain/shared/apperr"
)

var ErrReadOnly = errors.New("mongo: read-only unit of work")

// versioned persists one aggregate collection with optimistic versioning.
type versioned struct {
	col      *mongo.Collection
	what     string
	readOnly bool
}

func (v versioned) op() string { return "mongo." + v.what }

func (v versioned) findOne(ctx context.Context, filter bson.M, out any, opts ...*options.FindOneOptions) error {
	return mapErr(v.op(), v.what, v.col.FindOne(ctx, filter, opts...).Decode(out))
}

func (v versioned) find(ctx context.Context, filter bson.M, sort bson.D, decode func(*mongo.Cursor) error) error {
	cur, err := v.col.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return mapErr(v.op(), v.what, err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		if err := decode(cur); err != nil {
			return err
		}
	}
	return cur.Err()
}

// save writes set under the incoming version and returns the next one. A
// stored record is first handed to check; onInsert fields are written only
// when the document is created.
func (v versioned) save(ctx context.Context, id string, version int64, set func(next int64) any, onInsert bson.M, check func(bson.Raw) error) (int64, error) {
	if v.readOnly {
		return 0, ErrReadOnly
	}
	op := v.op()
	raw, err := v.col.FindOne(ctx, bson.M{"_id": id}).Raw()
	exists := true
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		exists = false
	case err != nil:
		return 0, mapErr(op, v.what, err)
	}
	if !exists && version != 0 {
		return 0, apperr.NotFound(op, "%s %s not found", v.what, id)
	}
	if exists {
		if check != nil {
			if err := check(raw); err != nil {
				return 0, err
			}
		}
		stored, _ := raw.Lookup("version").AsInt64OK()
		if stored != version {
			return 0, apperr.Conflict(op, "%s %s is at version %d, got %d", v.what, id, stored, version)
		}
	}
	next := version + 1
	update := bson.M{"$set": set(next)}
	if len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}
	res, err := v.col.UpdateOne(ctx, bson.M{"_id": id, "version": version}, update, options.Update().SetUpsert(true))
	if err != nil {
		return 0, mapErr(op, v.what, err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return 0, apperr.Conflict(op, "%s %s was modified concurrently", v.what, id)
	}
	return next, nil
}
