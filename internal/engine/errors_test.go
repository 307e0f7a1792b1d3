package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncError_Format(t *testing.T) {
	err := newValidationError("circleId is required")
	assert.Equal(t, "VALIDATION_ERROR: circleId is required", err.Error())

	cause := errors.New("disk I/O error")
	wrapped := newStorageError("push", cause)
	assert.Equal(t, "STORAGE_ERROR: push failed: disk I/O error", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestSyncError_Predicates(t *testing.T) {
	forbidden := fmt.Errorf("handler: %w", newForbiddenError("c1"))

	assert.True(t, IsForbidden(forbidden))
	assert.False(t, IsValidationError(forbidden))
	assert.Equal(t, ErrCodeForbidden, CodeOf(forbidden))

	assert.True(t, IsValidationError(newValidationError("bad")))
	assert.True(t, IsNotFound(&SyncError{Code: ErrCodeNotFound}))
	assert.True(t, IsConflict(&SyncError{Code: ErrCodeConflict}))
	assert.Equal(t, SyncErrorCode(""), CodeOf(errors.New("plain")))
}
