// Package memstore provides an in-memory implementation of the engine's
// storage interface. It interprets exactly the filter and update dialect
// the engine emits (equality, $in containment, $set, $unset, $pull, and
// positional tokens with array filters) and is intended for tests and
// examples.
package memstore

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jacentio/mortise/subref"
)

// Database is an in-memory subref.Database.
type Database struct {
	mu    sync.Mutex
	colls map[string]*Collection
}

// New creates an empty in-memory database.
func New() *Database {
	return &Database{colls: make(map[string]*Collection)}
}

// Collection implements subref.Database.
func (d *Database) Collection(name string) subref.Collection {
	return d.Open(name)
}

// Open returns the named collection's concrete handle, creating it on
// first use. Tests use it for seeding and inspection helpers.
func (d *Database) Open(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.colls[name]
	if !ok {
		c = &Collection{}
		d.colls[name] = c
	}
	return c
}

// Collection is an in-memory document collection.
type Collection struct {
	mu   sync.Mutex
	docs []bson.M
}

// Insert appends documents (cloned) to the collection.
func (c *Collection) Insert(docs ...bson.M) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, doc := range docs {
		c.docs = append(c.docs, clone(doc))
	}
}

// All returns a cloned snapshot of every document.
func (c *Collection) All() []bson.M {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bson.M, len(c.docs))
	for i, doc := range c.docs {
		out[i] = clone(doc)
	}
	return out
}

// Get returns the document with the given _id, or nil.
func (c *Collection) Get(id any) bson.M {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, doc := range c.docs {
		if valueEq(doc["_id"], id) {
			return clone(doc)
		}
	}
	return nil
}

// Count returns the number of stored documents.
func (c *Collection) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func (c *Collection) FindOneID(_ context.Context, filter bson.M) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, doc := range c.docs {
		if matchFilter(doc, filter) {
			return doc["_id"], nil
		}
	}
	return nil, subref.ErrNotFound
}

func (c *Collection) FindIDs(_ context.Context, filter bson.M) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []any
	for _, doc := range c.docs {
		if matchFilter(doc, filter) {
			ids = append(ids, doc["_id"])
		}
	}
	return ids, nil
}

func (c *Collection) FindOne(_ context.Context, filter bson.M) (bson.M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, doc := range c.docs {
		if matchFilter(doc, filter) {
			return clone(doc), nil
		}
	}
	return nil, subref.ErrNotFound
}

func (c *Collection) ReplaceOne(_ context.Context, filter bson.M, replacement bson.M, upsert bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	repl := clone(replacement)
	if _, ok := repl["_id"]; !ok {
		if id, ok := filter["_id"]; ok {
			repl["_id"] = id
		}
	}
	for i, doc := range c.docs {
		if matchFilter(doc, filter) {
			c.docs[i] = repl
			return nil
		}
	}
	if upsert {
		c.docs = append(c.docs, repl)
	}
	return nil
}

func (c *Collection) UpdateMany(_ context.Context, filter bson.M, update bson.M, arrayFilters []bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	named := parseArrayFilters(arrayFilters)
	var n int64
	for _, doc := range c.docs {
		if matchFilter(doc, filter) {
			applyUpdate(doc, update, named)
			n++
		}
	}
	return n, nil
}

func (c *Collection) DeleteOne(_ context.Context, filter bson.M) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, doc := range c.docs {
		if matchFilter(doc, filter) {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return nil
		}
	}
	return nil
}

// --- filter evaluation ---

// matchFilter evaluates the engine's filter dialect: per-key equality
// (matching through arrays, as MongoDB does) or {$in: [...]} containment.
func matchFilter(doc bson.M, filter bson.M) bool {
	for path, cond := range filter {
		leaves := pathValues(doc, strings.Split(path, "."))
		if m, ok := asDoc(cond); ok {
			if in, hasIn := m["$in"]; hasIn {
				vals, _ := asArray(in)
				if !anyLeafIn(leaves, vals) {
					return false
				}
				continue
			}
		}
		if !anyLeafIn(leaves, []any{cond}) {
			return false
		}
	}
	return true
}

// pathValues collects the values reachable at a dotted path, fanning out
// over array elements along the way.
func pathValues(v any, segs []string) []any {
	if len(segs) == 0 {
		return []any{v}
	}
	if arr, ok := asArray(v); ok {
		var out []any
		for _, el := range arr {
			out = append(out, pathValues(el, segs)...)
		}
		return out
	}
	m, ok := asDoc(v)
	if !ok {
		return nil
	}
	child, ok := m[segs[0]]
	if !ok {
		return nil
	}
	return pathValues(child, segs[1:])
}

// anyLeafIn reports whether any leaf value (or any element of an
// array-valued leaf) equals one of vals.
func anyLeafIn(leaves []any, vals []any) bool {
	for _, leaf := range leaves {
		candidates := []any{leaf}
		if arr, ok := asArray(leaf); ok {
			candidates = append(candidates, arr...)
		}
		for _, cand := range candidates {
			for _, v := range vals {
				if valueEq(cand, v) {
					return true
				}
			}
		}
	}
	return false
}

// --- update application ---

type namedFilter struct {
	rest string // condition path after the identifier, may be empty
	vals []any
}

func (f namedFilter) matches(el any) bool {
	if f.rest == "" {
		return anyLeafIn([]any{el}, f.vals)
	}
	return anyLeafIn(pathValues(el, strings.Split(f.rest, ".")), f.vals)
}

// parseArrayFilters indexes array-filter conditions of the form
// {"name.rest": {$in: [...]}} by identifier.
func parseArrayFilters(filters []bson.M) map[string]namedFilter {
	named := make(map[string]namedFilter)
	for _, f := range filters {
		for key, cond := range f {
			name, rest, _ := strings.Cut(key, ".")
			var vals []any
			if m, ok := asDoc(cond); ok {
				if in, hasIn := m["$in"]; hasIn {
					vals, _ = asArray(in)
				}
			}
			named[name] = namedFilter{rest: rest, vals: vals}
		}
	}
	return named
}

func applyUpdate(doc bson.M, update bson.M, named map[string]namedFilter) {
	for op, args := range update {
		fields, ok := asDoc(args)
		if !ok {
			continue
		}
		for path, arg := range fields {
			toks := strings.Split(path, ".")
			switch op {
			case "$set":
				applyTokens(doc, toks, named, func(parent bson.M, key string) {
					parent[key] = cloneValue(arg)
				})
			case "$unset":
				applyTokens(doc, toks, named, func(parent bson.M, key string) {
					delete(parent, key)
				})
			case "$pull":
				var vals []any
				if m, ok := asDoc(arg); ok {
					if in, hasIn := m["$in"]; hasIn {
						vals, _ = asArray(in)
					}
				}
				applyTokens(doc, toks, named, func(parent bson.M, key string) {
					arr, ok := asArray(parent[key])
					if !ok {
						return
					}
					kept := make([]any, 0, len(arr))
					for _, el := range arr {
						if !anyLeafIn([]any{el}, vals) {
							kept = append(kept, el)
						}
					}
					parent[key] = kept
				})
			}
		}
	}
}

// applyTokens walks an update path with $[] / $[name] positional tokens
// and invokes leaf on the terminal field's parent document. Named tokens
// only descend into elements matching their array-filter condition.
func applyTokens(node any, toks []string, named map[string]namedFilter, leaf func(parent bson.M, key string)) {
	tok := toks[0]
	if strings.HasPrefix(tok, "$[") && strings.HasSuffix(tok, "]") {
		arr, ok := asArray(node)
		if !ok {
			return
		}
		name := tok[2 : len(tok)-1]
		for _, el := range arr {
			if name != "" {
				f, ok := named[name]
				if !ok || !f.matches(el) {
					continue
				}
			}
			applyTokens(el, toks[1:], named, leaf)
		}
		return
	}

	m, ok := asDoc(node)
	if !ok {
		return
	}
	if len(toks) == 1 {
		leaf(m, tok)
		return
	}
	applyTokens(m[tok], toks[1:], named, leaf)
}

// --- value helpers ---

func asDoc(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case bson.A:
		return a, true
	case []any:
		return a, true
	}
	return nil, false
}

// valueEq compares two values by their canonical BSON encoding, matching
// the predicate the engine uses. Nil is compared directly; the driver has
// no encoder for it.
func valueEq(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, ba, err := bson.MarshalValue(a)
	if err != nil {
		return false
	}
	tb, bb, err := bson.MarshalValue(b)
	if err != nil {
		return false
	}
	return ta == tb && bytes.Equal(ba, bb)
}

func clone(doc bson.M) bson.M {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return doc
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}

func cloneValue(v any) any {
	out := clone(bson.M{"v": v})
	return out["v"]
}
