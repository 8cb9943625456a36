package subref

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// DeleteContext tells the policy engine what kind of removal is being
// enforced.
type DeleteContext struct {
	// Soft is set for soft-delete and restore transitions: the target
	// documents still physically exist.
	Soft bool

	// Deleted is the new flag value when Soft is set. Soft && !Deleted is
	// a restore.
	Deleted bool

	// visited holds every document entered by this removal operation, so
	// cascades over cyclic reference graphs terminate instead of
	// re-entering a document that is already being removed upstream.
	visited *visitSet
}

// visitSet is a concurrency-safe set of (model, id) pairs.
type visitSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newVisitSet() *visitSet {
	return &visitSet{seen: make(map[string]struct{})}
}

// enter records the document and reports whether it was new.
func (v *visitSet) enter(model string, id any) bool {
	key := visitKey(model, id)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// visitKey builds a canonical key from the id's BSON encoding, matching
// the equality predicate used everywhere else.
func visitKey(model string, id any) string {
	t, raw, err := bson.MarshalValue(id)
	if err != nil {
		return fmt.Sprintf("%s\x00%v", model, id)
	}
	return model + "\x00" + string(byte(t)) + string(raw)
}

// restore reports whether this is the un-delete direction.
func (dc DeleteContext) restore() bool { return dc.Soft && !dc.Deleted }

// enforce runs one descriptor's policy for a set of removed (or, on root
// deletion, all current) reference values. bound is the target document's
// id, used when the descriptor declares a bound reference.
func (e *Engine) enforce(ctx context.Context, d *Descriptor, values []any, bound any, dc DeleteContext) error {
	if len(values) == 0 {
		return nil
	}
	switch {
	case d.Required && !d.Cascade:
		return e.enforceBlock(ctx, d, values, bound, dc)
	case d.Required && d.Cascade:
		return e.enforceCascade(ctx, d, values, bound, dc)
	default:
		return e.enforceSetNull(ctx, d, values, bound, dc)
	}
}

// refFilter builds the query selecting referencing documents: pinned by
// the bound field when declared, otherwise a containment search on the
// reference path.
func refFilter(d *Descriptor, values []any, bound any) bson.M {
	if d.BoundTo != "" && bound != nil {
		return bson.M{d.BoundTo: bound}
	}
	return bson.M{d.resolved.QueryPath: bson.M{"$in": values}}
}

// enforceBlock fails with a ConstraintError when any referencing document
// still points at a removed value. It never mutates anything. Restores
// are exempt: block only applies to the deleting direction.
func (e *Engine) enforceBlock(ctx context.Context, d *Descriptor, values []any, bound any, dc DeleteContext) error {
	if dc.restore() {
		return nil
	}

	coll, err := e.referencingCollection(d)
	if err != nil {
		return err
	}
	id, err := coll.FindOneID(ctx, refFilter(d, values, bound))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return &ConstraintError{
		ReferencingModel: d.ReferencingModel,
		ReferencingPath:  d.ReferencingPath,
		TargetModel:      d.TargetModel,
		TargetPath:       d.TargetPath,
		BlockingID:       id,
	}
}

// enforceCascade re-invokes the matching removal operation on every
// referencing document, concurrently, so each one re-triggers its own
// inbound enforcement. This yields a transitive cascade through reference
// chains of any depth. All operations settle before returning; the first
// failure wins but running siblings are not cancelled.
func (e *Engine) enforceCascade(ctx context.Context, d *Descriptor, values []any, bound any, dc DeleteContext) error {
	m, err := e.Model(d.ReferencingModel)
	if err != nil {
		return err
	}
	ids, err := m.coll.FindIDs(ctx, refFilter(d, values, bound))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	e.logger.Info("cascading removal",
		"referencingModel", d.ReferencingModel,
		"referencingPath", d.ReferencingPath,
		"targetModel", d.TargetModel,
		"count", len(ids),
		"soft", dc.Soft,
	)

	var g errgroup.Group
	g.SetLimit(e.config.CascadeLimit)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := e.removeReferencing(ctx, m, id, dc); err != nil {
				e.logger.Warn("cascade operation failed",
					"model", m.name,
					"id", id,
					"error", err,
				)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// removeReferencing applies the delete-like operation matching the
// context: hard delete or soft-delete with the same flag value. Documents
// that vanished since the id query ran are skipped.
func (e *Engine) removeReferencing(ctx context.Context, m *Model, id any, dc DeleteContext) error {
	doc, err := m.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if dc.Soft {
		return e.softDelete(ctx, doc, dc)
	}
	return e.remove(ctx, doc, dc)
}

// enforceSetNull clears removed references with a single bulk update:
// matching elements are pulled from array-valued reference fields, scalar
// reference fields are set to null. Soft deletion leaves not-required
// children untouched, since the referenced sub-document still exists.
func (e *Engine) enforceSetNull(ctx context.Context, d *Descriptor, values []any, bound any, dc DeleteContext) error {
	if dc.Soft {
		return nil
	}

	coll, err := e.referencingCollection(d)
	if err != nil {
		return err
	}

	r := d.resolved
	var update bson.M
	if r.TerminalArray {
		update = bson.M{"$pull": bson.M{r.UpdatePath: bson.M{"$in": values}}}
	} else {
		update = bson.M{"$set": bson.M{r.UpdatePath: nil}}
	}
	var arrayFilters []bson.M
	if r.FilterName != "" {
		arrayFilters = []bson.M{{r.FilterPath: bson.M{"$in": values}}}
	}

	modified, err := coll.UpdateMany(ctx, refFilter(d, values, bound), update, arrayFilters)
	if err != nil {
		return err
	}
	e.logger.Info("cleared removed references",
		"referencingModel", d.ReferencingModel,
		"referencingPath", d.ReferencingPath,
		"modified", modified,
	)
	return nil
}

// referencingCollection resolves the collection holding the referencing
// documents. Block and set-null work on the collection directly and don't
// need the full model.
func (e *Engine) referencingCollection(d *Descriptor) (Collection, error) {
	m, err := e.Model(d.ReferencingModel)
	if err != nil {
		return nil, err
	}
	return m.coll, nil
}
