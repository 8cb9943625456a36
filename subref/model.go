package subref

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jacentio/mortise/fieldpath"
)

// Model is a registered model bound to its collection.
type Model struct {
	name   string
	engine *Engine
	schema *fieldpath.Field
	coll   Collection
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Collection returns the model's storage collection.
func (m *Model) Collection() Collection { return m.coll }

// NewDocument wraps data in a document instance. An _id is generated when
// data has none. The current contents become the prior snapshot, so a
// subsequent Save detects no removals unless the caller mutates the data.
func (m *Model) NewDocument(data bson.M) (*Document, error) {
	if data == nil {
		data = bson.M{}
	}
	if _, ok := data["_id"]; !ok {
		data["_id"] = primitive.NewObjectID()
	}
	prior, err := cloneDoc(data)
	if err != nil {
		return nil, err
	}
	return &Document{
		model: m,
		id:    data["_id"],
		data:  data,
		prior: prior,
	}, nil
}

// Load fetches the document with the given id, returning ErrNotFound when
// it doesn't exist.
func (m *Model) Load(ctx context.Context, id any) (*Document, error) {
	data, err := m.coll.FindOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	prior, err := cloneDoc(data)
	if err != nil {
		return nil, err
	}
	return &Document{
		model: m,
		id:    id,
		data:  data,
		prior: prior,
	}, nil
}
