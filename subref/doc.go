// Package subref enforces referential integrity for references that point
// into sub-documents nested inside other documents' array fields, a
// guarantee document stores do not provide natively.
//
// Mortise tracks declared references from fields of one collection's
// documents to elements of an array-valued field on another collection's
// documents, and enforces one of three policies whenever a referenced
// element (or its owning root document) is removed.
//
// # Key Features
//
//   - Block: removing a referenced element fails while dependents exist
//   - Cascade: dependents are removed together with their target,
//     transitively through reference chains of any depth
//   - Set-null: dependents survive with the reference cleared
//   - In-place removal detection on save, with synchronous block checks
//     and deferred post-commit cascades
//   - Bound references pinning enforcement to a single document
//   - Optional soft-delete integration (see the softdelete package)
//
// # Declaring references
//
// Models are field-type trees built with the fieldpath package; a field
// carrying a [fieldpath.RefDecl] references elements of an array on
// another model:
//
//	person, _ := engine.RegisterModel("Person", fieldpath.NewDocument(map[string]*fieldpath.Field{
//	    "contacts": fieldpath.NewArray(fieldpath.NewDocument(map[string]*fieldpath.Field{
//	        "_id":   fieldpath.NewScalar(),
//	        "email": fieldpath.NewScalar(),
//	    })),
//	}))
//	message, _ := engine.RegisterModel("Message", fieldpath.NewDocument(map[string]*fieldpath.Field{
//	    "contact": fieldpath.NewRef(fieldpath.RefDecl{
//	        SubRef:   "Person.contacts",
//	        Required: true,
//	    }),
//	}))
//
// Declaration problems (a target path crossing more than one array, a
// non-array target, cascade without required) fail at registration as
// [ConfigError], never during enforcement.
//
// # Enforcement
//
// [Document.Delete] enforces every inbound reference against the whole
// current value set before removing the document. [Document.Save] diffs
// the prior and proposed contents of each referenced array: block policies
// run before the commit and abort it, everything else runs after the
// commit; [Document.AwaitPendingUpdates] waits for that deferred work.
//
// # Errors
//
//   - [ConstraintError] - a required, non-cascading reference blocked a removal
//   - [ConfigError] - an invalid reference declaration, raised at registration
//   - [ValidationError] - a save-time constraint violation, wrapping the
//     underlying [ConstraintError] after restoring the in-memory field
//   - [ErrNotFound] - document doesn't exist
//
// Storage errors pass through unchanged; there is no retry logic. Cascades
// are not wrapped in a cross-document transaction: a crash mid-cascade can
// leave a partially-deleted reference graph.
package subref
