package subref

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jacentio/mortise/fieldpath"
)

// --- bsonValueEqual Tests ---

func TestBSONValueEqual(t *testing.T) {
	oid := primitive.NewObjectID()
	sameOID, _ := primitive.ObjectIDFromHex(oid.Hex())

	tests := []struct {
		name  string
		a, b  any
		equal bool
	}{
		{"equal strings", "c0", "c0", true},
		{"different strings", "c0", "c1", false},
		{"equal object ids", oid, sameOID, true},
		{"different object ids", primitive.NewObjectID(), primitive.NewObjectID(), false},
		{"equal int64", int64(7), int64(7), true},
		{"different bson types", int32(7), int64(7), false},
		{"string vs int", "7", int64(7), false},
		{"nil vs nil", nil, nil, true},
		{"nil vs string", nil, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eq, err := bsonValueEqual(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if eq != tt.equal {
				t.Errorf("expected equal=%v for %v vs %v", tt.equal, tt.a, tt.b)
			}
		})
	}
}

// --- path helper Tests ---

func TestAtPath(t *testing.T) {
	doc := bson.M{
		"name": "ada",
		"meta": bson.M{"owner": "root"},
	}

	if v, ok := atPath(doc, "name"); !ok || v != "ada" {
		t.Errorf("expected 'ada', got %v (ok=%v)", v, ok)
	}
	if v, ok := atPath(doc, "meta.owner"); !ok || v != "root" {
		t.Errorf("expected 'root', got %v (ok=%v)", v, ok)
	}
	if _, ok := atPath(doc, "missing"); ok {
		t.Error("expected missing path to report not found")
	}
	if _, ok := atPath(doc, "name.sub"); ok {
		t.Error("expected path through scalar to report not found")
	}
}

func TestSetPath_CreatesIntermediates(t *testing.T) {
	doc := bson.M{}
	setPath(doc, "meta.owner", "root")

	v, ok := atPath(doc, "meta.owner")
	if !ok || v != "root" {
		t.Errorf("expected 'root', got %v (ok=%v)", v, ok)
	}
}

func TestUnsetPath(t *testing.T) {
	doc := bson.M{"meta": bson.M{"owner": "root", "kept": 1}}
	unsetPath(doc, "meta.owner")

	if _, ok := atPath(doc, "meta.owner"); ok {
		t.Error("expected owner to be removed")
	}
	if _, ok := atPath(doc, "meta.kept"); !ok {
		t.Error("expected sibling to survive")
	}
}

func TestCloneDoc_Independent(t *testing.T) {
	doc := bson.M{"arr": bson.A{bson.M{"_id": "a"}}}
	copied, err := cloneDoc(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	arr, _ := asArray(copied["arr"])
	el, _ := asDoc(arr[0])
	el["_id"] = "mutated"

	orig, _ := asArray(doc["arr"])
	origEl, _ := asDoc(orig[0])
	if origEl["_id"] != "a" {
		t.Error("clone aliases the original document")
	}
}

// --- diffRemoved Tests ---

func subdocDescriptor() *Descriptor {
	return &Descriptor{
		TargetPath:    "contacts",
		targetElem:    fieldpath.Document,
		targetChecked: true,
	}
}

func TestDiffRemoved_SubDocuments(t *testing.T) {
	prior := bson.M{"contacts": bson.A{
		bson.M{"_id": "c0"},
		bson.M{"_id": "c1"},
	}}
	data := bson.M{"contacts": bson.A{
		bson.M{"_id": "c1"},
	}}

	removed, err := diffRemoved(prior, data, subdocDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 1 || removed[0] != "c0" {
		t.Errorf("expected [c0], got %v", removed)
	}
}

func TestDiffRemoved_NothingRemoved(t *testing.T) {
	prior := bson.M{"contacts": bson.A{bson.M{"_id": "c0"}}}
	data := bson.M{"contacts": bson.A{
		bson.M{"_id": "c0"},
		bson.M{"_id": "c1"},
	}}

	removed, err := diffRemoved(prior, data, subdocDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("expected no removals, got %v", removed)
	}
}

func TestDiffRemoved_ScalarElements(t *testing.T) {
	d := &Descriptor{TargetPath: "tags", targetElem: fieldpath.Scalar, targetChecked: true}
	prior := bson.M{"tags": bson.A{"a", "b", "c"}}
	data := bson.M{"tags": bson.A{"b"}}

	removed, err := diffRemoved(prior, data, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 2 || removed[0] != "a" || removed[1] != "c" {
		t.Errorf("expected [a c], got %v", removed)
	}
}

func TestDiffRemoved_NullElements(t *testing.T) {
	d := &Descriptor{TargetPath: "tags", targetElem: fieldpath.Scalar, targetChecked: true}
	prior := bson.M{"tags": bson.A{"a", nil, "b"}}

	removed, err := diffRemoved(prior, bson.M{"tags": bson.A{"a", nil}}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 1 || removed[0] != "b" {
		t.Errorf("expected [b], got %v", removed)
	}

	removed, err = diffRemoved(prior, bson.M{"tags": bson.A{"a", "b"}}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 1 || removed[0] != nil {
		t.Errorf("expected [<nil>], got %v", removed)
	}
}

func TestDiffRemoved_FieldAbsent(t *testing.T) {
	removed, err := diffRemoved(bson.M{}, bson.M{}, subdocDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("expected no removals, got %v", removed)
	}
}

func TestDiffRemoved_FieldCleared(t *testing.T) {
	prior := bson.M{"contacts": bson.A{bson.M{"_id": "c0"}}}
	removed, err := diffRemoved(prior, bson.M{}, subdocDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 1 || removed[0] != "c0" {
		t.Errorf("expected [c0], got %v", removed)
	}
}

// --- Config Tests ---

func TestConfigValidate_Defaults(t *testing.T) {
	c := Config{}
	c.validate()

	if c.SoftDeleteField != "deleted" {
		t.Errorf("expected SoftDeleteField 'deleted', got %q", c.SoftDeleteField)
	}
	if c.CascadeLimit != 8 {
		t.Errorf("expected CascadeLimit 8, got %d", c.CascadeLimit)
	}
	if c.CollectionNamer == nil {
		t.Fatal("expected default CollectionNamer")
	}
	if name := c.CollectionNamer("Person"); name != "persons" {
		t.Errorf("expected 'persons', got %q", name)
	}
}

func TestConfigValidate_ClampsCascadeLimit(t *testing.T) {
	c := Config{CascadeLimit: 1000}
	c.validate()
	if c.CascadeLimit != 256 {
		t.Errorf("expected CascadeLimit clamped to 256, got %d", c.CascadeLimit)
	}
}

func TestConfigValidate_PreservesCustomValues(t *testing.T) {
	c := Config{
		SoftDeleteField: "trashed",
		CascadeLimit:    4,
		CollectionNamer: func(model string) string { return model },
	}
	c.validate()

	if c.SoftDeleteField != "trashed" {
		t.Errorf("expected 'trashed', got %q", c.SoftDeleteField)
	}
	if c.CascadeLimit != 4 {
		t.Errorf("expected 4, got %d", c.CascadeLimit)
	}
	if name := c.CollectionNamer("Person"); name != "Person" {
		t.Errorf("expected 'Person', got %q", name)
	}
}
