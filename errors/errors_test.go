package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"invalid data", ErrInvalidData, false},
		{"storage", Storage(fmt.Errorf("boom"), "Store", "Create", "write"), true},
		{"conflict", Conflictf("person with uid %s already exists", "x"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("dial refused")

	err := Wrap(base, "Client", "Connect", "establish connection")
	assert.Equal(t, "Client.Connect: establish connection failed: dial refused", err.Error())
	assert.True(t, errors.Is(err, base))

	assert.Nil(t, Wrap(nil, "a", "b", "c"))
	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsTransient(WrapTransient(base, "C", "M", "act")))
	assert.True(t, IsInvalid(WrapInvalid(base, "C", "M", "act")))
	assert.True(t, IsFatal(WrapFatal(base, "C", "M", "act")))

	var ce *ClassifiedError
	require.True(t, errors.As(WrapFatal(base, "Listener", "Start", "subscribe"), &ce))
	assert.Equal(t, "Listener", ce.Component)
	assert.Equal(t, "Start", ce.Operation)
	assert.True(t, errors.Is(ce, base))
}

func TestDomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validationf("bad %s", "value"), ErrValidation},
		{"conflict", Conflictf("Person with uid %s already exists", "local-jdoe"), ErrConflict},
		{"not found", NotFoundf("Person with uid %s does not exist", "local-jdoe"), ErrNotFound},
		{"missing identifier", MissingIdentifierf("no identifier"), ErrMissingIdentifier},
		{"invalid uid", InvalidUIDFormatf("uid %q", "abc"), ErrInvalidUIDFormat},
		{"owner", ReferenceOwnerNotFoundf("owner %s", "local-x"), ErrReferenceOwnerNotFound},
		{"storage", Storage(errors.New("socket closed"), "neo4jstore", "CreatePerson", "run query"), ErrStorage},
	}

	all := []error{
		ErrValidation, ErrConflict, ErrNotFound, ErrStorage,
		ErrMissingIdentifier, ErrInvalidUIDFormat, ErrReferenceOwnerNotFound,
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			for _, s := range all {
				assert.Equal(t, s == test.sentinel, errors.Is(test.err, s), "sentinel %v", s)
			}
		})
	}
}

func TestConflictMessageKeepsUID(t *testing.T) {
	err := Conflictf("Person with uid %s already exists", "local-jdoe@x.edu")
	assert.Contains(t, err.Error(), "local-jdoe@x.edu")
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrorInvalid, Classify(err))
}

func TestStorageKeepsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Storage(cause, "neo4jstore", "UpdatePerson", "commit")
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "neo4jstore.UpdatePerson: commit failed")
	assert.Equal(t, ErrorTransient, Classify(err))
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(Validationf("x")))
	assert.True(t, IsValidation(MissingIdentifierf("x")))
	assert.True(t, IsValidation(InvalidUIDFormatf("x")))
	assert.False(t, IsValidation(Conflictf("x")))
	assert.False(t, IsValidation(nil))
}
