package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantOK   bool
	}{
		{"typed not found", New(NotFound, "session_not_found", "no such session"), NotFound, true},
		{"wrapped typed error", fmt.Errorf("loading plan: %w", New(Conflict, "plan_exists", "dup")), Conflict, true},
		{"plain error", errors.New("boom"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := KindOf(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestErrorIs(t *testing.T) {
	a := New(Timeout, "await_timeout", "deadline exceeded")
	b := New(Timeout, "other_code", "different message")
	c := New(IOFailure, "await_timeout", "deadline exceeded")

	assert.True(t, errors.Is(a, b), "same Kind should match regardless of Code")
	assert.False(t, errors.Is(a, c), "different Kind must not match")
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(IOFailure, "write_failed", "could not persist output chunk", cause)

	assert.ErrorIs(t, wrapped, cause)
	code, ok := CodeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "write_failed", code)
}
