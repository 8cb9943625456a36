package subref

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// Delete removes the document, enforcing every inbound sub-reference
// first: block descriptors run synchronously and abort the delete with a
// *ConstraintError; cascade and set-null descriptors then run
// concurrently against the entire current value set of each referenced
// array. The physical delete happens only after all policies settled.
func (d *Document) Delete(ctx context.Context) error {
	return d.model.engine.remove(ctx, d, DeleteContext{visited: newVisitSet()})
}

// remove is the hard-removal entry shared by Delete and the cascade
// recursion. A document already entered by this operation is skipped; its
// removal is in flight further up the cascade, which terminates cyclic
// reference graphs.
func (e *Engine) remove(ctx context.Context, doc *Document, dc DeleteContext) error {
	if dc.visited != nil && !dc.visited.enter(doc.model.name, doc.id) {
		return nil
	}
	if err := e.enforceInbound(ctx, doc, dc); err != nil {
		return err
	}
	return doc.model.coll.DeleteOne(ctx, bson.M{"_id": doc.id})
}

// enforceInbound runs every registered inbound descriptor for doc with the
// whole current value set (no diffing: this is whole-document removal).
// Blocks first, fail-fast; mutating policies after, concurrently.
func (e *Engine) enforceInbound(ctx context.Context, doc *Document, dc DeleteContext) error {
	descs := e.registry.InboundTo(doc.model.name)
	if len(descs) == 0 {
		return nil
	}

	for _, d := range descs {
		if !d.blocks() {
			continue
		}
		values := valuesAt(doc.data, d.TargetPath, d.targetElem)
		if err := e.enforce(ctx, d, values, doc.id, dc); err != nil {
			return err
		}
	}

	var g errgroup.Group
	g.SetLimit(e.config.CascadeLimit)
	for _, d := range descs {
		d := d
		if d.blocks() {
			continue
		}
		values := valuesAt(doc.data, d.TargetPath, d.targetElem)
		g.Go(func() error {
			return e.enforce(ctx, d, values, doc.id, dc)
		})
	}
	return g.Wait()
}

// SoftDelete transitions the document's soft-delete flag and enforces
// inbound references for the transition: blocks apply on the deleting
// direction, cascades soft-delete or restore children with the same flag
// value, set-null is suppressed (the referenced sub-documents still
// exist). A failed policy rolls the flag back, in store and in memory,
// leaving the document exactly as it was.
func (e *Engine) SoftDelete(ctx context.Context, doc *Document, deleted bool) error {
	return e.softDelete(ctx, doc, DeleteContext{Soft: true, Deleted: deleted, visited: newVisitSet()})
}

func (e *Engine) softDelete(ctx context.Context, doc *Document, dc DeleteContext) error {
	if dc.visited != nil && !dc.visited.enter(doc.model.name, doc.id) {
		return nil
	}

	field := e.config.SoftDeleteField
	prev, had := atPath(doc.data, field)

	if err := e.setFlag(ctx, doc, dc.Deleted); err != nil {
		return err
	}

	if err := e.enforceInbound(ctx, doc, dc); err != nil {
		if rbErr := e.rollbackFlag(ctx, doc, prev, had); rbErr != nil {
			e.logger.Warn("soft-delete flag rollback failed",
				"model", doc.model.name,
				"id", doc.id,
				"error", rbErr,
			)
		}
		return err
	}
	return nil
}

func (e *Engine) setFlag(ctx context.Context, doc *Document, deleted bool) error {
	field := e.config.SoftDeleteField
	_, err := doc.model.coll.UpdateMany(ctx,
		bson.M{"_id": doc.id},
		bson.M{"$set": bson.M{field: deleted}},
		nil,
	)
	if err != nil {
		return err
	}
	setPath(doc.data, field, deleted)
	setPath(doc.prior, field, deleted)
	return nil
}

func (e *Engine) rollbackFlag(ctx context.Context, doc *Document, prev any, had bool) error {
	field := e.config.SoftDeleteField

	var update bson.M
	if had {
		update = bson.M{"$set": bson.M{field: prev}}
	} else {
		update = bson.M{"$unset": bson.M{field: ""}}
	}
	if _, err := doc.model.coll.UpdateMany(ctx, bson.M{"_id": doc.id}, update, nil); err != nil {
		return err
	}

	if had {
		setPath(doc.data, field, prev)
		setPath(doc.prior, field, prev)
	} else {
		unsetPath(doc.data, field)
		unsetPath(doc.prior, field)
	}
	return nil
}
