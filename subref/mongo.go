package subref

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NewMongoDatabase adapts a MongoDB database handle to the Database
// interface.
func NewMongoDatabase(db *mongo.Database) Database {
	return &mongoDatabase{db: db}
}

type mongoDatabase struct {
	db *mongo.Database
}

func (m *mongoDatabase) Collection(name string) Collection {
	return &mongoCollection{coll: m.db.Collection(name)}
}

type mongoCollection struct {
	coll *mongo.Collection
}

type idOnly struct {
	ID any `bson:"_id"`
}

func (m *mongoCollection) FindOneID(ctx context.Context, filter bson.M) (any, error) {
	var row idOnly
	err := m.coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.ID, nil
}

func (m *mongoCollection) FindIDs(ctx context.Context, filter bson.M) ([]any, error) {
	cur, err := m.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var rows []idOnly
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func (m *mongoCollection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	var doc bson.M
	err := m.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *mongoCollection) ReplaceOne(ctx context.Context, filter bson.M, replacement bson.M, upsert bool) error {
	_, err := m.coll.ReplaceOne(ctx, filter, replacement, options.Replace().SetUpsert(upsert))
	return err
}

func (m *mongoCollection) UpdateMany(ctx context.Context, filter bson.M, update bson.M, arrayFilters []bson.M) (int64, error) {
	opts := options.Update()
	if len(arrayFilters) > 0 {
		fs := make([]interface{}, len(arrayFilters))
		for i, f := range arrayFilters {
			fs[i] = f
		}
		opts.SetArrayFilters(options.ArrayFilters{Filters: fs})
	}
	res, err := m.coll.UpdateMany(ctx, filter, update, opts)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (m *mongoCollection) DeleteOne(ctx context.Context, filter bson.M) error {
	_, err := m.coll.DeleteOne(ctx, filter)
	return err
}
