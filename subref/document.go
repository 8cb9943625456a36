package subref

import (
	"context"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Document is an in-memory instance of a stored document. It carries the
// prior committed state for change detection and the deferred enforcement
// state for this instance. A Document must not be shared across goroutines
// while being mutated; independent documents are safe concurrently.
type Document struct {
	model *Model
	id    any
	data  bson.M
	prior bson.M

	mu    sync.Mutex
	state UpdateState
	queue []cascadeTask
	done  chan struct{}
	err   error
}

// ID returns the document's _id.
func (d *Document) ID() any { return d.id }

// Data returns the mutable document contents. Mutate it, then call Save.
func (d *Document) Data() bson.M { return d.data }

// Model returns the model this document belongs to.
func (d *Document) Model() *Model { return d.model }

// Save validates in-place sub-document removals against every inbound
// reference, commits the document, and schedules deferred enforcement.
//
// Removals that trip a block policy abort the save with a
// *ValidationError before anything is written; the removed elements are
// restored into Data. Cascade and set-null enforcement runs after the
// commit; use AwaitPendingUpdates to observe its completion.
func (d *Document) Save(ctx context.Context) error {
	tasks, err := d.model.engine.validateRemovals(ctx, d)
	if err != nil {
		return err
	}

	if err := d.model.coll.ReplaceOne(ctx, bson.M{"_id": d.id}, d.data, true); err != nil {
		return err
	}

	prior, err := cloneDoc(d.data)
	if err != nil {
		return err
	}
	d.prior = prior

	if len(tasks) > 0 {
		d.enqueue(tasks)
		d.flush(context.WithoutCancel(ctx))
	}
	return nil
}

// cloneDoc deep-copies a document through a BSON round trip, so the copy
// uses the same representations the store would return.
func cloneDoc(doc bson.M) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// cloneValue deep-copies a single value through a BSON round trip.
func cloneValue(v any) any {
	out, err := cloneDoc(bson.M{"v": v})
	if err != nil {
		return v
	}
	return out["v"]
}

// atPath reads a dotted path from a document. Paths used here never cross
// arrays (target paths, boundTo and flag fields are validated for that at
// registration).
func atPath(doc bson.M, path string) (any, bool) {
	cur := any(doc)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asDoc(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes a dotted path in a document, creating intermediate
// documents as needed.
func setPath(doc bson.M, path string, value any) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asDoc(cur[seg])
		if !ok {
			next = bson.M{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// unsetPath removes a dotted path from a document.
func unsetPath(doc bson.M, path string) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asDoc(cur[seg])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
}

// asDoc normalizes the map representations BSON decoding produces.
func asDoc(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

// asArray normalizes the slice representations BSON decoding produces.
func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case bson.A:
		return a, true
	case []any:
		return a, true
	}
	return nil, false
}
