package operations_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"valuepulse/internal/operations"
	"valuepulse/internal/processing"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  operations.ErrorType
		retryable bool
	}{
		{"cancelled", context.Canceled, operations.ErrorTypeCancellation, false},
		{"deadline", fmt.Errorf("load: %w", context.DeadlineExceeded), operations.ErrorTypeTimeout, true},
		{"bad params", fmt.Errorf("%w: seed", processing.ErrInvalidParams), operations.ErrorTypeValidation, false},
		{"unknown step", processing.ErrUnknownStep, operations.ErrorTypeValidation, false},
		{"bad blob name", storage.ErrInvalidName, operations.ErrorTypeValidation, false},
		{"missing blob", fmt.Errorf("wages/x.csv: %w", storage.ErrNotFound), operations.ErrorTypeDependency, false},
		{"missing column", table.ErrColumnNotFound, operations.ErrorTypeDependency, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, operations.ErrorTypeExecution, true},
		{"other", errors.New("boom"), operations.ErrorTypeExecution, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := operations.Classify("clean-wages", tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, operations.IsRetryable(got))
			assert.Equal(t, "clean-wages", got.Step)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, operations.Classify("x", nil))
}

func TestClassify_KeepsOperationErrors(t *testing.T) {
	orig := operations.NewTimeoutError("split", "1s")
	assert.Same(t, orig, operations.Classify("other", fmt.Errorf("wrapped: %w", orig)))
}

func TestWrapError_DoesNotModifySentinels(t *testing.T) {
	wrapped := operations.WrapError(operations.ErrStepNotFound, "split", "resolve")
	assert.Equal(t, "split", wrapped.Step)
	assert.Empty(t, operations.ErrStepNotFound.Step)
	assert.Equal(t, "step not found", operations.ErrStepNotFound.Message)
}

func TestErrorList(t *testing.T) {
	var list operations.ErrorList
	assert.False(t, list.HasErrors())

	list.Add(operations.NewValidationError("a", "bad"))
	list.Add(nil)
	list.Add(operations.NewExecutionError("b", errors.New("x"), false))

	assert.True(t, list.HasErrors())
	assert.Len(t, list.GetByStep("a"), 1)
	assert.Contains(t, list.Error(), "2 errors")
}
