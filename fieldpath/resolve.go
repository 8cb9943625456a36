package fieldpath

import (
	"fmt"
	"strings"
)

// FilterIdentifier is the identifier used for the named positional filter
// on the array hop immediately preceding the terminal field. A single
// update never carries more than one named filter, so a fixed name is safe.
const FilterIdentifier = "sr"

// Resolved is the storage-level targeting for a referencing field path.
type Resolved struct {
	// Path is the dotted path as declared.
	Path string

	// QueryPath is the path used in containment queries. MongoDB matches
	// plain dotted paths through arrays, so it equals Path.
	QueryPath string

	// UpdatePath is the update target with positional filter tokens, e.g.
	// "items.$[].rows.$[sr].ref". Earlier array hops use the all-elements
	// token $[] (they cannot be disambiguated; every match is updated);
	// the hop immediately preceding the terminal field uses the named
	// filter $[sr] so the update touches only elements holding a removed
	// value.
	UpdatePath string

	// FilterName is FilterIdentifier when UpdatePath contains a named
	// filter, empty otherwise.
	FilterName string

	// FilterPath is the array-filter condition path scoped to FilterName:
	// the identifier plus the path segments after the disambiguated hop,
	// e.g. "sr.details.ref". Empty when FilterName is empty.
	FilterPath string

	// ArrayHops counts the array hops crossed before the terminal field.
	ArrayHops int

	// TerminalArray reports whether the terminal field is itself an array,
	// in which case matching elements are pulled; otherwise the terminal
	// field is set to null.
	TerminalArray bool
}

// Resolve walks path through the referencing model's field-type tree and
// builds the update and filter fragments for it.
func Resolve(root *Field, path string) (*Resolved, error) {
	if path == "" {
		return nil, fmt.Errorf("fieldpath: empty path")
	}

	segs := strings.Split(path, ".")
	cur := root
	var parts []string
	hopParts := []int{} // indices of hop tokens within parts
	lastHopSeg := -1
	terminalArray := false

	for i, seg := range segs {
		if cur == nil || cur.Kind != Document {
			return nil, fmt.Errorf("fieldpath: cannot descend into %s at %q in path %q", cur.Kind, seg, path)
		}
		f, ok := cur.Fields[seg]
		if !ok {
			return nil, fmt.Errorf("fieldpath: unknown field %q in path %q", seg, path)
		}
		parts = append(parts, seg)
		cur = f

		if i == len(segs)-1 {
			terminalArray = cur.Kind == Array
			break
		}

		// Each array crossed before the terminal field is a positional hop.
		for cur.Kind == Array {
			parts = append(parts, "$[]")
			hopParts = append(hopParts, len(parts)-1)
			lastHopSeg = i
			cur = cur.Elem
		}
	}

	r := &Resolved{
		Path:          path,
		QueryPath:     path,
		ArrayHops:     len(hopParts),
		TerminalArray: terminalArray,
	}

	if len(hopParts) > 0 {
		parts[hopParts[len(hopParts)-1]] = "$[" + FilterIdentifier + "]"
		r.FilterName = FilterIdentifier
		r.FilterPath = FilterIdentifier + "." + strings.Join(segs[lastHopSeg+1:], ".")
	}
	r.UpdatePath = strings.Join(parts, ".")

	return r, nil
}

// ResolveTarget validates that path names a direct array field on the
// target model: the path may cross no other array (only one array hop per
// reference target) and must terminate at an array. It returns the array
// field.
func ResolveTarget(root *Field, path string) (*Field, error) {
	if path == "" {
		return nil, fmt.Errorf("fieldpath: empty target path")
	}

	segs := strings.Split(path, ".")
	cur := root
	for i, seg := range segs {
		if cur == nil || cur.Kind != Document {
			return nil, fmt.Errorf("fieldpath: cannot descend into %s at %q in target path %q", cur.Kind, seg, path)
		}
		f, ok := cur.Fields[seg]
		if !ok {
			return nil, fmt.Errorf("fieldpath: unknown field %q in target path %q", seg, path)
		}
		cur = f

		if i < len(segs)-1 && cur.Kind == Array {
			return nil, fmt.Errorf("fieldpath: target path %q crosses array at %q; only one array hop is supported per target path", path, seg)
		}
	}

	if cur.Kind != Array {
		return nil, fmt.Errorf("fieldpath: target path %q resolves to a %s, want array", path, cur.Kind)
	}
	return cur, nil
}
