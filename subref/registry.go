package subref

import (
	"sync"

	"github.com/jacentio/mortise/fieldpath"
)

// Descriptor describes one declared sub-reference: a field on
// ReferencingModel pointing at elements of an array field on TargetModel.
type Descriptor struct {
	// ReferencingModel is the model declaring the reference.
	ReferencingModel string

	// ReferencingPath is the dotted path of the reference field.
	ReferencingPath string

	// TargetModel is the model owning the referenced array.
	TargetModel string

	// TargetPath is the dotted path of the referenced array on TargetModel.
	TargetPath string

	// Required forbids removing a referenced element while this reference
	// exists; with Cascade it removes the referencing document instead.
	Required bool

	// Cascade deletes referencing documents together with their target.
	Cascade bool

	// BoundTo names a scalar field on the referencing document holding the
	// target document's id. When set, enforcement queries by that field
	// instead of containment.
	BoundTo string

	// resolved is the precomputed update/query targeting for
	// ReferencingPath, built against ReferencingModel's schema.
	resolved *fieldpath.Resolved

	// targetElem is the element kind of the referenced array, recorded
	// once the target model's schema is known.
	targetElem fieldpath.Kind

	// targetChecked reports whether TargetPath was validated against the
	// target model's schema yet. Validation is deferred when the target
	// model registers after the referencing model.
	targetChecked bool
}

// blocks reports whether this descriptor enforces the block policy.
func (d *Descriptor) blocks() bool { return d.Required && !d.Cascade }

// Registry holds all declared sub-references, keyed by target model.
// It is built at model registration time and read-heavy thereafter.
type Registry struct {
	mu       sync.RWMutex
	byTarget map[string][]*Descriptor
	all      []*Descriptor
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byTarget: make(map[string][]*Descriptor),
	}
}

// Register adds a descriptor to the registry.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, d)
	r.byTarget[d.TargetModel] = append(r.byTarget[d.TargetModel], d)
}

// InboundTo returns the descriptors targeting the given model, in
// registration order.
func (r *Registry) InboundTo(targetModel string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byTarget[targetModel]
}

// HasInbound reports whether any descriptor targets the given model.
func (r *Registry) HasInbound(targetModel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTarget[targetModel]) > 0
}

// All returns every registered descriptor.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.all))
	copy(out, r.all)
	return out
}

// DropReferencing removes every descriptor declared by the given model.
// Re-registering a model therefore replaces its contributions instead of
// duplicating them.
func (r *Registry) DropReferencing(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := r.all[:0]
	for _, d := range r.all {
		if d.ReferencingModel != model {
			keep = append(keep, d)
		}
	}
	r.all = keep

	for target, descs := range r.byTarget {
		kept := descs[:0]
		for _, d := range descs {
			if d.ReferencingModel != model {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(r.byTarget, target)
			continue
		}
		r.byTarget[target] = kept
	}
}
