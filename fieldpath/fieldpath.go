// Package fieldpath models the field-type tree of a document schema and
// resolves dotted logical paths into MongoDB update targets.
package fieldpath

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a schema field.
type Kind int

const (
	// Scalar is a leaf value (string, number, ObjectID, ...).
	Scalar Kind = iota

	// Document is an embedded sub-document with named fields.
	Document

	// Array is an array whose elements share a single type.
	Array
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Document:
		return "document"
	case Array:
		return "array"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Field is a node in a model's field-type tree.
type Field struct {
	// Kind classifies this field.
	Kind Kind

	// Elem is the element type when Kind is Array.
	Elem *Field

	// Fields maps child names when Kind is Document.
	Fields map[string]*Field

	// Ref is the sub-reference declaration attached to this field, if any.
	Ref *RefDecl
}

// RefDecl declares that a field references elements of an array-valued
// sub-document field on another model.
type RefDecl struct {
	// SubRef is "TargetModel.path.to.array": the first segment names the
	// target model, the remainder is the path to the referenced array.
	SubRef string

	// Required forbids removing a referenced element while this reference
	// exists (block), or, combined with Cascade, removes the referencing
	// document along with it.
	Required bool

	// Cascade deletes the referencing document when the referenced element
	// is removed. Only valid together with Required.
	Cascade bool

	// BoundTo names a scalar field on the referencing document holding the
	// target document's id, pinning enforcement queries to that document
	// instead of a containment search.
	BoundTo string
}

// NewScalar returns a scalar field.
func NewScalar() *Field {
	return &Field{Kind: Scalar}
}

// NewDocument returns a document field with the given children.
func NewDocument(fields map[string]*Field) *Field {
	return &Field{Kind: Document, Fields: fields}
}

// NewArray returns an array field with the given element type.
func NewArray(elem *Field) *Field {
	return &Field{Kind: Array, Elem: elem}
}

// NewRef returns a scalar field carrying a sub-reference declaration.
func NewRef(decl RefDecl) *Field {
	return &Field{Kind: Scalar, Ref: &decl}
}

// Walk visits every named field reachable from root in depth-first order,
// each exactly once, under its dotted path. Array hops contribute no path
// segment and no extra visit: an array field is visited once as itself,
// and the fields of its element document are visited under their plain
// dotted paths.
func Walk(root *Field, fn func(path string, f *Field)) {
	walk("", root, fn)
}

func walk(prefix string, f *Field, fn func(string, *Field)) {
	if f == nil {
		return
	}
	switch f.Kind {
	case Document:
		// Deterministic order for registration and error reporting.
		names := make([]string, 0, len(f.Fields))
		for name := range f.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			path := join(prefix, name)
			fn(path, f.Fields[name])
			walk(path, f.Fields[name], fn)
		}
	case Array:
		walk(prefix, f.Elem, fn)
	}
}

// At navigates a dotted path from root, descending implicitly through
// arrays the way MongoDB does, and returns the terminal field.
func At(root *Field, path string) (*Field, error) {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		for cur != nil && cur.Kind == Array {
			cur = cur.Elem
		}
		if cur == nil || cur.Kind != Document {
			return nil, fmt.Errorf("fieldpath: %q is not reachable (no document at %q)", path, seg)
		}
		next, ok := cur.Fields[seg]
		if !ok {
			return nil, fmt.Errorf("fieldpath: unknown field %q in path %q", seg, path)
		}
		cur = next
	}
	return cur, nil
}

func join(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}
