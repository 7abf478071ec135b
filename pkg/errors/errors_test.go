package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Creation(t *testing.T) {
	cause := errors.New("underlying error")

	err := NewNoQuorumError("no two survival copies agree", cause)

	assert.Equal(t, ErrorTypeNoQuorum, err.Type)
	assert.Equal(t, "no two survival copies agree", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotNil(t, err.Context)
}

func TestDomainError_WithContext(t *testing.T) {
	err := NewSpawnError("failed to launch child", nil)

	err = err.WithContext("command", "/bin/false")
	err = err.WithContext("attempt", 3)

	assert.Equal(t, "/bin/false", err.Context["command"])
	assert.Equal(t, 3, err.Context["attempt"])
}

func TestDomainError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		error    *DomainError
		expected string
	}{
		{
			name:     "error without cause",
			error:    NewValidationError("empty location list", nil),
			expected: "validation: empty location list",
		},
		{
			name:     "error with cause",
			error:    NewIOError("unreadable location", errors.New("permission denied")),
			expected: "io: unreadable location: permission denied",
		},
		{
			name:     "escalation error",
			error:    NewEscalationError("restart budget exhausted", nil),
			expected: "escalation: restart budget exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.error.Error())
		})
	}
}

func TestDomainError_TypeChecking(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		matches bool
	}{
		{"no_quorum matches", NewNoQuorumError("x", nil), IsNoQuorumError, true},
		{"no_quorum does not match io", NewNoQuorumError("x", nil), IsIOError, false},
		{"spawn matches", NewSpawnError("x", nil), IsSpawnError, true},
		{"escalation matches", NewEscalationError("x", nil), IsEscalationError, true},
		{"resource_limit matches", NewResourceLimitError("x", nil), IsResourceLimitError, true},
		{"plain error matches nothing", errors.New("plain"), IsProcessError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, tt.checker(tt.err))
		})
	}
}

func TestDomainError_Unwrapping(t *testing.T) {
	cause := errors.New("rename failed")
	wrapped := NewIOError("atomic replace failed", cause)

	// Wrapped again the stdlib way, classification must survive
	outer := fmt.Errorf("reconcile location 2: %w", wrapped)

	require.True(t, IsIOError(outer))
	assert.True(t, errors.Is(outer, cause))
}

func TestErrorCollection(t *testing.T) {
	collection := NewErrorCollection()

	assert.False(t, collection.HasErrors())
	assert.Nil(t, collection.ToError())

	collection.Add(nil) // nil errors are ignored
	assert.False(t, collection.HasErrors())

	collection.Add(NewIOError("location 1 unwritable", nil))
	collection.Add(NewPermissionError("location 3 read-only", nil))

	require.True(t, collection.HasErrors())
	assert.Len(t, collection.Errors, 2)
	assert.Contains(t, collection.Error(), "2 errors occurred")
	assert.Error(t, collection.ToError())
}
