package softdelete_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jacentio/mortise/fieldpath"
	"github.com/jacentio/mortise/memstore"
	"github.com/jacentio/mortise/softdelete"
	"github.com/jacentio/mortise/subref"
)

type fixture struct {
	adapter *softdelete.Adapter
	db      *memstore.Database
	person  *subref.Model
	message *subref.Model
}

func newFixture(t *testing.T, decl fieldpath.RefDecl) *fixture {
	t.Helper()
	db := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := subref.NewWithLogger(db, subref.DefaultConfig(), logger)

	person, err := e.RegisterModel("Person", fieldpath.NewDocument(map[string]*fieldpath.Field{
		"contacts": fieldpath.NewArray(fieldpath.NewDocument(map[string]*fieldpath.Field{
			"_id": fieldpath.NewScalar(),
		})),
	}))
	if err != nil {
		t.Fatalf("register Person: %v", err)
	}
	decl.SubRef = "Person.contacts"
	message, err := e.RegisterModel("Message", fieldpath.NewDocument(map[string]*fieldpath.Field{
		"contact": fieldpath.NewRef(decl),
	}))
	if err != nil {
		t.Fatalf("register Message: %v", err)
	}

	return &fixture{
		adapter: softdelete.New(e, logger),
		db:      db,
		person:  person,
		message: message,
	}
}

func (f *fixture) save(t *testing.T, m *subref.Model, data bson.M) *subref.Document {
	t.Helper()
	doc, err := m.NewDocument(data)
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	if err := doc.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	return doc
}

func TestDelete_BlockRollsFlagBack(t *testing.T) {
	f := newFixture(t, fieldpath.RefDecl{Required: true})

	p := f.save(t, f.person, bson.M{"_id": "p1", "contacts": bson.A{bson.M{"_id": "c0"}}})
	f.save(t, f.message, bson.M{"_id": "m1", "contact": "c0"})

	err := f.adapter.Delete(context.Background(), p)
	var cerr *subref.ConstraintError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstraintError, got %v", err)
	}

	// Flag rolled back in the store and in memory.
	stored := f.db.Open("persons").Get("p1")
	if _, ok := stored["deleted"]; ok {
		t.Errorf("expected stored flag rolled back, got deleted=%v", stored["deleted"])
	}
	if _, ok := p.Data()["deleted"]; ok {
		t.Errorf("expected in-memory flag rolled back, got deleted=%v", p.Data()["deleted"])
	}
}

func TestDelete_NotRequiredChildUntouched(t *testing.T) {
	f := newFixture(t, fieldpath.RefDecl{})

	p := f.save(t, f.person, bson.M{"_id": "p1", "contacts": bson.A{bson.M{"_id": "c0"}}})
	f.save(t, f.message, bson.M{"_id": "m1", "contact": "c0"})

	if err := f.adapter.Delete(context.Background(), p); err != nil {
		t.Fatalf("delete: %v", err)
	}

	stored := f.db.Open("persons").Get("p1")
	if stored["deleted"] != true {
		t.Errorf("expected person flagged deleted, got %v", stored["deleted"])
	}
	// The contact still physically exists, so the reference stays intact.
	m := f.db.Open("messages").Get("m1")
	if m["contact"] != "c0" {
		t.Errorf("expected reference untouched on soft delete, got %v", m["contact"])
	}
}

func TestDeleteRestore_CascadeIsSymmetric(t *testing.T) {
	f := newFixture(t, fieldpath.RefDecl{Required: true, Cascade: true})

	p := f.save(t, f.person, bson.M{"_id": "p1", "contacts": bson.A{bson.M{"_id": "c0"}}})
	f.save(t, f.message, bson.M{"_id": "m1", "contact": "c0"})
	f.save(t, f.message, bson.M{"_id": "m2"})

	if err := f.adapter.Delete(context.Background(), p); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	messages := f.db.Open("messages")
	if m1 := messages.Get("m1"); m1["deleted"] != true {
		t.Errorf("expected m1 soft-deleted with its person, got %v", m1["deleted"])
	}
	if m2 := messages.Get("m2"); m2["deleted"] == true {
		t.Error("expected unrelated message untouched")
	}

	if err := f.adapter.Restore(context.Background(), p); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if stored := f.db.Open("persons").Get("p1"); stored["deleted"] != false {
		t.Errorf("expected person restored, got %v", stored["deleted"])
	}
	if m1 := messages.Get("m1"); m1["deleted"] != false {
		t.Errorf("expected m1 restored with its person, got %v", m1["deleted"])
	}
}

func TestRestore_SkipsBlockCheck(t *testing.T) {
	f := newFixture(t, fieldpath.RefDecl{Required: true})

	p := f.save(t, f.person, bson.M{"_id": "p1", "contacts": bson.A{bson.M{"_id": "c0"}}})

	// Flag the person deleted, then add a referencing message. Restoring
	// must pass even though a block reference exists.
	p.Data()["deleted"] = true
	if err := p.Save(context.Background()); err != nil {
		t.Fatalf("flag person deleted: %v", err)
	}
	f.save(t, f.message, bson.M{"_id": "m1", "contact": "c0"})

	if err := f.adapter.Restore(context.Background(), p); err != nil {
		t.Fatalf("expected restore to skip block checks: %v", err)
	}
	if stored := f.db.Open("persons").Get("p1"); stored["deleted"] != false {
		t.Errorf("expected person restored, got %v", stored["deleted"])
	}
}
