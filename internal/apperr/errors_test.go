package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeOf(NotFound("user", 7)))
	assert.Equal(t, ErrCodeInvalidInput, CodeOf(InvalidInput("amount", "must be positive")))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, ErrCodeInternal, CodeOf(nil))
}

func TestCodeSurvivesWrapping(t *testing.T) {
	inner := New(ErrCodeConflict, "already pending")
	outer := fmt.Errorf("assign level: %w", inner)

	assert.True(t, IsCode(outer, ErrCodeConflict))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "failed to query users")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to query users")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, ErrCodeInternal, "ignored"))
}
