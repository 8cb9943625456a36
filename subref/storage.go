package subref

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Database is the storage collaborator the engine operates through. The
// MongoDB adapter in this package implements it against a real deployment;
// the memstore package implements it in memory for tests.
type Database interface {
	// Collection returns the handle for the named collection.
	Collection(name string) Collection
}

// Collection is the call surface the engine needs from one collection.
// Filters and updates use the MongoDB dialect; implementations only need
// the subset the engine emits (equality, $in containment, $set, $unset,
// $pull, and $[] / $[name] positional tokens with array filters).
type Collection interface {
	// FindOneID returns the _id of one document matching filter, or
	// ErrNotFound when none matches.
	FindOneID(ctx context.Context, filter bson.M) (any, error)

	// FindIDs returns the _id of every document matching filter.
	FindIDs(ctx context.Context, filter bson.M) ([]any, error)

	// FindOne returns one document matching filter, or ErrNotFound.
	FindOne(ctx context.Context, filter bson.M) (bson.M, error)

	// ReplaceOne replaces the document matching filter, inserting it when
	// upsert is set and nothing matches.
	ReplaceOne(ctx context.Context, filter bson.M, replacement bson.M, upsert bool) error

	// UpdateMany applies update to every document matching filter, with
	// optional array filters, and returns the number of modified documents.
	UpdateMany(ctx context.Context, filter bson.M, update bson.M, arrayFilters []bson.M) (int64, error)

	// DeleteOne deletes one document matching filter. Deleting a document
	// that is already gone is not an error.
	DeleteOne(ctx context.Context, filter bson.M) error
}
