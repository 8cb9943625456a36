package subref

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jacentio/mortise/fieldpath"
)

// Engine enforces declared sub-references across a set of registered
// models. One Engine serves one database for the process lifetime.
type Engine struct {
	db       Database
	config   Config
	registry *Registry
	logger   *slog.Logger

	mu     sync.RWMutex
	models map[string]*Model
}

// New creates a new Engine.
func New(db Database, config Config) *Engine {
	return NewWithLogger(db, config, nil)
}

// NewWithLogger creates a new Engine with an explicit logger.
func NewWithLogger(db Database, config Config, logger *slog.Logger) *Engine {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:       db,
		config:   config,
		registry: NewRegistry(),
		logger:   logger,
		models:   make(map[string]*Model),
	}
}

// Registry returns the engine's reference registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Model returns a registered model by name.
func (e *Engine) Model(name string) (*Model, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotRegistered, name)
	}
	return m, nil
}

// RegisterModel registers a model under the given name, discovers every
// sub-reference declared in its field tree, and rebuilds the model's
// registry entries from scratch. Declaration problems fail here as
// *ConfigError, never later during enforcement. Re-registration under the
// same name replaces the previous registration.
func (e *Engine) RegisterModel(name string, schema *fieldpath.Field) (*Model, error) {
	if name == "" {
		return nil, &ConfigError{Model: name, Reason: "empty model name"}
	}
	if schema == nil || schema.Kind != fieldpath.Document {
		return nil, &ConfigError{Model: name, Reason: "schema root must be a document"}
	}

	descs, err := e.collectDescriptors(name, schema)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Descriptors declared earlier whose target registers only now get
	// their target paths validated here; fail-fast still holds at the
	// latest registration involved.
	for _, d := range e.registry.All() {
		if d.TargetModel != name || d.targetChecked {
			continue
		}
		if err := checkTarget(d, schema); err != nil {
			return nil, err
		}
	}

	e.registry.DropReferencing(name)
	for _, d := range descs {
		e.registry.Register(d)
	}

	m := &Model{
		name:   name,
		engine: e,
		schema: schema,
		coll:   e.db.Collection(e.config.CollectionNamer(name)),
	}
	e.models[name] = m
	return m, nil
}

// collectDescriptors walks the field tree and builds a validated
// descriptor for every reference declaration found, including declarations
// nested inside arrays-of-sub-documents.
func (e *Engine) collectDescriptors(model string, schema *fieldpath.Field) ([]*Descriptor, error) {
	var descs []*Descriptor
	var walkErr error

	fieldpath.Walk(schema, func(path string, f *fieldpath.Field) {
		decl := refDeclOf(f)
		if decl == nil || walkErr != nil {
			return
		}
		d, err := e.buildDescriptor(model, path, schema, decl)
		if err != nil {
			walkErr = err
			return
		}
		descs = append(descs, d)
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return descs, nil
}

// refDeclOf returns the reference declaration carried by a field, looking
// through array wrappers: an array of references declares the reference on
// its element, under the array's own path.
func refDeclOf(f *fieldpath.Field) *fieldpath.RefDecl {
	for f != nil {
		if f.Ref != nil {
			return f.Ref
		}
		if f.Kind != fieldpath.Array {
			return nil
		}
		f = f.Elem
	}
	return nil
}

func (e *Engine) buildDescriptor(model, path string, schema *fieldpath.Field, decl *fieldpath.RefDecl) (*Descriptor, error) {
	dot := strings.Index(decl.SubRef, ".")
	if dot <= 0 || dot == len(decl.SubRef)-1 {
		return nil, &ConfigError{Model: model, Path: path,
			Reason: fmt.Sprintf("subRef %q must be \"TargetModel.path.to.array\"", decl.SubRef)}
	}
	if decl.Cascade && !decl.Required {
		return nil, &ConfigError{Model: model, Path: path,
			Reason: "cascade requires required"}
	}

	d := &Descriptor{
		ReferencingModel: model,
		ReferencingPath:  path,
		TargetModel:      decl.SubRef[:dot],
		TargetPath:       decl.SubRef[dot+1:],
		Required:         decl.Required,
		Cascade:          decl.Cascade,
		BoundTo:          decl.BoundTo,
	}

	resolved, err := fieldpath.Resolve(schema, path)
	if err != nil {
		return nil, &ConfigError{Model: model, Path: path, Reason: err.Error()}
	}
	d.resolved = resolved

	if decl.BoundTo != "" {
		bound, err := fieldpath.At(schema, decl.BoundTo)
		if err != nil {
			return nil, &ConfigError{Model: model, Path: path,
				Reason: fmt.Sprintf("boundTo %q: %v", decl.BoundTo, err)}
		}
		if bound.Kind != fieldpath.Scalar {
			return nil, &ConfigError{Model: model, Path: path,
				Reason: fmt.Sprintf("boundTo %q must be a scalar field, got %s", decl.BoundTo, bound.Kind)}
		}
		if r, err := fieldpath.Resolve(schema, decl.BoundTo); err == nil && r.ArrayHops > 0 {
			return nil, &ConfigError{Model: model, Path: path,
				Reason: fmt.Sprintf("boundTo %q must not cross an array", decl.BoundTo)}
		}
	}

	// Self-references and references to already-registered models are
	// checked now; the rest are checked when their target registers.
	if d.TargetModel == model {
		if err := checkTarget(d, schema); err != nil {
			return nil, err
		}
	} else {
		e.mu.RLock()
		target, ok := e.models[d.TargetModel]
		e.mu.RUnlock()
		if ok {
			if err := checkTarget(d, target.schema); err != nil {
				return nil, err
			}
		}
	}

	return d, nil
}

// checkTarget validates a descriptor's target path against the target
// model's schema and records the referenced array's element kind.
func checkTarget(d *Descriptor, targetSchema *fieldpath.Field) error {
	arr, err := fieldpath.ResolveTarget(targetSchema, d.TargetPath)
	if err != nil {
		return &ConfigError{Model: d.ReferencingModel, Path: d.ReferencingPath, Reason: err.Error()}
	}
	if arr.Elem == nil {
		return &ConfigError{Model: d.ReferencingModel, Path: d.ReferencingPath,
			Reason: fmt.Sprintf("target path %q: array element type missing", d.TargetPath)}
	}
	d.targetElem = arr.Elem.Kind
	d.targetChecked = true
	return nil
}

// AwaitPendingUpdates waits for the document's deferred enforcement tasks.
// See Document.AwaitPendingUpdates.
func (e *Engine) AwaitPendingUpdates(ctx context.Context, doc *Document) error {
	return doc.AwaitPendingUpdates(ctx)
}
