package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFound_UnwrapsChainedErrors(t *testing.T) {
	base := NewResourceNotFoundError("integration", "abc")
	assert.True(t, IsNotFound(base))

	// Service layers wrap store errors with %w; the predicate must
	// still see through the chain.
	wrapped := fmt.Errorf("failed to get integration: %w", base)
	assert.True(t, IsNotFound(wrapped))

	twiceWrapped := fmt.Errorf("start import: %w", wrapped)
	assert.True(t, IsNotFound(twiceWrapped))

	assert.True(t, IsNotFound(NewNotFoundError("missing", nil)))
	assert.True(t, IsNotFound(fmt.Errorf("outer: %w", NewNotFoundError("missing", nil))))

	assert.False(t, IsNotFound(fmt.Errorf("plain failure")))
	assert.False(t, IsNotFound(NewInternalError("boom", nil)))
}

func TestIsRunInProgress_UnwrapsChainedErrors(t *testing.T) {
	base := NewRunInProgressError("int-1")
	assert.True(t, IsRunInProgress(base))
	assert.True(t, IsRunInProgress(fmt.Errorf("start import: %w", base)))
	assert.False(t, IsRunInProgress(fmt.Errorf("plain failure")))
}

func TestIsRunNotClaimable_UnwrapsChainedErrors(t *testing.T) {
	base := NewRunNotClaimableError("run-1", "SUCCESS")
	assert.True(t, IsRunNotClaimable(base))
	assert.True(t, IsRunNotClaimable(fmt.Errorf("failed to claim run: %w", base)))
	assert.False(t, IsRunNotClaimable(NewRunInProgressError("int-1")))
}

func TestIsInvalidInput_UnwrapsChainedErrors(t *testing.T) {
	base := NewValidationError("integration is disabled", nil)
	assert.True(t, IsInvalidInput(base))
	assert.True(t, IsInvalidInput(fmt.Errorf("start import: %w", base)))
	assert.False(t, IsInvalidInput(NewNotFoundError("missing", nil)))
}
