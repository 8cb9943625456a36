package subref

import (
	"bytes"
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jacentio/mortise/fieldpath"
)

// validateRemovals is the change detector. It diffs the prior and proposed
// value of every referenced array on doc, runs block policies
// synchronously (they can only fail, never mutate, so no compensating
// rollback is needed), and returns the deferred tasks for everything else.
// Each distinct target path is diffed once per save.
func (e *Engine) validateRemovals(ctx context.Context, doc *Document) ([]cascadeTask, error) {
	descs := e.registry.InboundTo(doc.model.name)
	if len(descs) == 0 {
		return nil, nil
	}

	removedByPath := make(map[string][]any)
	removedAt := func(d *Descriptor) ([]any, error) {
		if removed, ok := removedByPath[d.TargetPath]; ok {
			return removed, nil
		}
		removed, err := diffRemoved(doc.prior, doc.data, d)
		if err != nil {
			return nil, err
		}
		removedByPath[d.TargetPath] = removed
		return removed, nil
	}

	var tasks []cascadeTask
	for _, d := range descs {
		removed, err := removedAt(d)
		if err != nil {
			return nil, err
		}
		if len(removed) == 0 {
			continue
		}

		if d.blocks() {
			if err := e.enforce(ctx, d, removed, doc.id, DeleteContext{}); err != nil {
				// Restore the prior value so the caller is not left
				// holding a half-mutated document.
				restoreField(doc, d.TargetPath)
				return nil, &ValidationError{Model: doc.model.name, Path: d.TargetPath, Err: err}
			}
			continue
		}

		tasks = append(tasks, cascadeTask{
			desc:    d,
			removed: removed,
			bound:   doc.id,
		})
	}
	return tasks, nil
}

// diffRemoved computes the removed-value set for one referenced array:
// identifiers (sub-document _ids) or scalar values present before the
// mutation but absent from the proposed value.
func diffRemoved(prior, data bson.M, d *Descriptor) ([]any, error) {
	old := valuesAt(prior, d.TargetPath, d.targetElem)
	if len(old) == 0 {
		return nil, nil
	}
	cur := valuesAt(data, d.TargetPath, d.targetElem)

	var removed []any
	for _, ov := range old {
		found := false
		for _, nv := range cur {
			eq, err := bsonValueEqual(ov, nv)
			if err != nil {
				return nil, err
			}
			if eq {
				found = true
				break
			}
		}
		if !found {
			removed = append(removed, ov)
		}
	}
	return removed, nil
}

// valuesAt extracts the identifying values of a referenced array: element
// _ids for arrays of sub-documents, the elements themselves for arrays of
// scalars.
func valuesAt(doc bson.M, path string, elem fieldpath.Kind) []any {
	raw, ok := atPath(doc, path)
	if !ok {
		return nil
	}
	arr, ok := asArray(raw)
	if !ok {
		return nil
	}

	values := make([]any, 0, len(arr))
	for _, v := range arr {
		if elem == fieldpath.Document {
			m, ok := asDoc(v)
			if !ok {
				continue
			}
			id, ok := m["_id"]
			if !ok {
				continue
			}
			values = append(values, id)
			continue
		}
		values = append(values, v)
	}
	return values
}

// restoreField copies the prior value of path back into the document data.
func restoreField(doc *Document, path string) {
	prior, ok := atPath(doc.prior, path)
	if !ok {
		unsetPath(doc.data, path)
		return
	}
	setPath(doc.data, path, cloneValue(prior))
}

// bsonValueEqual is the single equality predicate for array elements and
// identifiers: two values are equal iff their canonical BSON encodings
// are identical. This matches the store's comparison for ObjectIDs,
// strings and same-typed numerics, and deliberately does not equate
// values of different BSON types. Nil (BSON null) is handled before
// encoding; the driver has no encoder for it.
func bsonValueEqual(a, b any) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}
	ta, ba, err := bson.MarshalValue(a)
	if err != nil {
		return false, err
	}
	tb, bb, err := bson.MarshalValue(b)
	if err != nil {
		return false, err
	}
	return ta == tb && bytes.Equal(ba, bb), nil
}
