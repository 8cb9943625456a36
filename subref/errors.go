package subref

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document doesn't exist.
	ErrNotFound = errors.New("mortise: document not found")

	// ErrModelNotRegistered is returned when an operation names a model
	// that was never registered with the engine.
	ErrModelNotRegistered = errors.New("mortise: model not registered")
)

// ConstraintError reports a violated required, non-cascading sub-reference:
// a referencing document still points at an element being removed.
type ConstraintError struct {
	// ReferencingModel is the model holding the reference.
	ReferencingModel string

	// ReferencingPath is the path of the reference field on ReferencingModel.
	ReferencingPath string

	// TargetModel is the model owning the referenced array.
	TargetModel string

	// TargetPath is the path of the referenced array on TargetModel.
	TargetPath string

	// BlockingID is the _id of a referencing document blocking the removal.
	BlockingID any
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("mortise: %s.%s still references %s.%s (blocking document %v)",
		e.ReferencingModel, e.ReferencingPath, e.TargetModel, e.TargetPath, e.BlockingID)
}

// ConfigError reports an invalid sub-reference declaration. It is returned
// at registration time, never during enforcement.
type ConfigError struct {
	// Model is the model whose registration failed.
	Model string

	// Path is the declared field path at fault.
	Path string

	// Reason describes what is wrong with the declaration.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mortise: invalid reference declaration %s.%s: %s", e.Model, e.Path, e.Reason)
}

// ValidationError wraps a constraint violation detected while validating a
// save. The in-memory field value has been restored to its prior state
// before this error is returned.
type ValidationError struct {
	// Model is the model of the document being saved.
	Model string

	// Path is the target path whose mutation was rejected.
	Path string

	// Err is the underlying *ConstraintError.
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mortise: validation failed for %s.%s: %v", e.Model, e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
