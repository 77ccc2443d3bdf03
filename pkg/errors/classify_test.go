package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		level     ErrorLevel
		code      string
		retryable bool
		tempType  string
	}{
		{"timeout", fmt.Errorf("call: %w", context.DeadlineExceeded), L1Recoverable, "TIMEOUT", true, "TIMEOUT"},
		{"validation", fmt.Errorf("nif: %w", ErrValidationFailed), L2Intervention, "VALIDATION_FAILED", false, TypeValidationError},
		{"document", ErrInvalidDocument, L2Intervention, "INVALID_DOCUMENT", false, TypeValidationError},
		{"malformed", ErrMalformedResponse, L1Recoverable, "MALFORMED_RESPONSE", true, "MALFORMED_RESPONSE"},
		{"config", ErrConfigInvalid, L3Fatal, "FATAL_CONFIG", false, TypeFatalError},
		{"auth", ErrAuthFailed, L3Fatal, "FATAL_CONFIG", false, TypeFatalError},
		{"unknown", errors.New("boom"), L1Recoverable, "UNKNOWN", true, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClassifyError(tt.err)
			require.NotNil(t, c)
			assert.Equal(t, tt.level, c.Level)
			assert.Equal(t, tt.code, c.Code)
			assert.Equal(t, tt.retryable, c.Retryable)
			assert.Equal(t, tt.tempType, c.TemporalType())
			assert.ErrorIs(t, c, tt.err)
		})
	}
}

func TestClassifyErrorNil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))
}

func TestClassifyErrorPassThrough(t *testing.T) {
	orig := NewClassifiedError(L3Fatal, "X", "x", nil)
	wrapped := fmt.Errorf("outer: %w", orig)
	assert.Same(t, orig, ClassifyError(wrapped))
}

func TestWrapWithLevel(t *testing.T) {
	c := WrapWithLevel(ErrOutputFailed, L3Fatal, "disk full")
	assert.Equal(t, L3Fatal, c.Level)
	assert.Equal(t, "disk full: output generation failed", c.Error())
	assert.Equal(t, "L3_FATAL", c.Level.String())
}
