package errors

import (
	"errors"
	"fmt"
)

// Domain taxonomy. Reconciliation code and DAO implementations return errors
// that match exactly one of these sentinels through errors.Is.
var (
	// ErrValidation marks malformed or unparseable input.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks a unique-constraint violation.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks a backend failure.
	ErrStorage = errors.New("storage error")
	// ErrMissingIdentifier marks an entity without any prioritized identifier.
	ErrMissingIdentifier = errors.New("missing identifier")
	// ErrInvalidUIDFormat marks a uid that cannot be split into type and value.
	ErrInvalidUIDFormat = errors.New("invalid uid format")
	// ErrReferenceOwnerNotFound marks a source record whose owner person is absent.
	ErrReferenceOwnerNotFound = errors.New("reference owner not found")
)

func domain(class ErrorClass, sentinel error, format string, args ...any) error {
	return &ClassifiedError{
		Class:   class,
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validationf returns an invalid-class error matching ErrValidation.
func Validationf(format string, args ...any) error {
	return domain(ErrorInvalid, ErrValidation, format, args...)
}

// Conflictf returns an error matching ErrConflict. The message is returned
// verbatim by Error so that callers can surface the conflicting uid.
func Conflictf(format string, args ...any) error {
	return domain(ErrorInvalid, ErrConflict, format, args...)
}

// NotFoundf returns an error matching ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return domain(ErrorInvalid, ErrNotFound, format, args...)
}

// MissingIdentifierf returns an error matching ErrMissingIdentifier.
func MissingIdentifierf(format string, args ...any) error {
	return domain(ErrorInvalid, ErrMissingIdentifier, format, args...)
}

// InvalidUIDFormatf returns an error matching ErrInvalidUIDFormat.
func InvalidUIDFormatf(format string, args ...any) error {
	return domain(ErrorInvalid, ErrInvalidUIDFormat, format, args...)
}

// ReferenceOwnerNotFoundf returns an error matching ErrReferenceOwnerNotFound.
func ReferenceOwnerNotFoundf(format string, args ...any) error {
	return domain(ErrorInvalid, ErrReferenceOwnerNotFound, format, args...)
}

// Storage wraps a backend error so that it matches both ErrStorage and the
// original cause. Storage errors are transient.
func Storage(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s.%s: %s failed: %w: %w", component, method, action, ErrStorage, err)
	return newClassified(ErrorTransient, wrapped, component, method, wrapped.Error())
}

// IsConflict reports whether err is a conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err stems from invalid input, including
// missing identifiers and malformed uids.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMissingIdentifier) ||
		errors.Is(err, ErrInvalidUIDFormat)
}
