// Package errors provides the error handling conventions of the IKG service.
//
// # Classification
//
// Every error is Transient (retry may succeed), Invalid (bad input, do not
// retry to success) or Fatal (stop the process). Wrap helpers attach a class
// while keeping the chain inspectable with errors.Is and errors.As:
//
//	errors.WrapTransient(err, "Client", "Connect", "establish connection")
//	errors.WrapInvalid(err, "Config", "Validate", "check identifiers")
//	errors.WrapFatal(err, "Listener", "Start", "create consumer")
//
// All wrappers use the format "component.method: action failed: %w".
//
// # Domain taxonomy
//
// Reconciliation and storage code speak a small closed vocabulary:
//
//   - ErrValidation: malformed input, surfaced as HTTP 422
//   - ErrConflict: unique constraint violated, drives create to update fallback, HTTP 409
//   - ErrNotFound: missing entity, drives update to create fallback, HTTP 404
//   - ErrStorage: backend failure, transient, message is requeued
//   - ErrMissingIdentifier: no prioritized identifier to derive a uid from
//   - ErrInvalidUIDFormat: uid without a type separator
//   - ErrReferenceOwnerNotFound: source record whose owner person is absent
//
// Use the constructors (Conflictf, NotFoundf, Storage, ...) rather than
// creating ad-hoc errors so that callers can branch with errors.Is:
//
//	if errors.Is(err, errors.ErrConflict) {
//	    return s.UpdatePerson(ctx, person)
//	}
package errors
