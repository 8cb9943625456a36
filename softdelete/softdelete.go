// Package softdelete integrates the reference engine with a soft-delete
// extension: the same policies, triggered by delete/restore flag
// transitions instead of physical removal.
package softdelete

import (
	"context"
	"log/slog"

	"github.com/jacentio/mortise/subref"
)

// Adapter routes soft-delete and restore events through the reference
// engine. Block applies only on the deleting direction, cascade
// soft-deletes or restores dependents with the same flag value, and
// set-null is suppressed: a soft-deleted parent still physically exists,
// so not-required references stay intact.
type Adapter struct {
	engine *subref.Engine
	logger *slog.Logger
}

// New creates an adapter for the given engine.
func New(engine *subref.Engine, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, logger: logger}
}

// Delete marks the document soft-deleted and enforces inbound references.
// A tripped block rolls the flag back and leaves the document as it was.
func (a *Adapter) Delete(ctx context.Context, doc *subref.Document) error {
	a.logger.Info("soft delete",
		"model", doc.Model().Name(),
		"id", doc.ID(),
	)
	return a.engine.SoftDelete(ctx, doc, true)
}

// Restore clears the soft-delete flag and enforces inbound references in
// the restoring direction: cascaded dependents are restored symmetrically,
// block checks are skipped.
func (a *Adapter) Restore(ctx context.Context, doc *subref.Document) error {
	a.logger.Info("soft restore",
		"model", doc.Model().Name(),
		"id", doc.ID(),
	)
	return a.engine.SoftDelete(ctx, doc, false)
}
