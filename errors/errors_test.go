package errors

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_TaxonomyFamilies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"rate limited is transient", ErrRateLimited, ErrorTransient},
		{"stream timeout is transient", ErrStreamTimeout, ErrorTransient},
		{"mode unavailable is transient", ErrModeUnavailable, ErrorTransient},
		{"rejected params is invalid", ErrRejectedParams, ErrorInvalid},
		{"constraint unsatisfiable is invalid", ErrConstraintUnsatisfiable, ErrorInvalid},
		{"insufficient data is invalid", ErrInsufficientData, ErrorInvalid},
		{"insufficient samples is invalid", ErrInsufficientSamples, ErrorInvalid},
		{"sync lost is fatal", ErrSyncLost, ErrorFatal},
		{"invalid config is fatal", ErrInvalidConfig, ErrorFatal},
		{"context deadline is transient", context.DeadlineExceeded, ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrap_PreservesSentinel(t *testing.T) {
	err := WrapInvalid(ErrRejectedParams, "SessionManager", "Subscribe", "parameter validation")

	assert.True(t, stderrors.Is(err, ErrRejectedParams))
	assert.True(t, IsInvalid(err))
	assert.Contains(t, err.Error(), "SessionManager.Subscribe: parameter validation failed")
}

func TestWrap_ClassificationThroughChain(t *testing.T) {
	inner := WrapTransient(ErrStreamTimeout, "Transport", "Receive", "read")
	outer := Wrap(inner, "Session", "run", "packet ingest")

	assert.True(t, IsTransient(outer))
	assert.True(t, stderrors.Is(outer, ErrStreamTimeout))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "C", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "C", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "C", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "C", "m", "a"))
}

func TestWithContext_CarriesIdentifiers(t *testing.T) {
	err := WithContext(ErrSyncLost, Context{BridgeID: "acoustic-001", StreamID: "s-42"})

	ctx, ok := GetContext(err)
	assert.True(t, ok)
	assert.Equal(t, "acoustic-001", ctx.BridgeID)
	assert.Equal(t, "s-42", ctx.StreamID)
	assert.Contains(t, err.Error(), "bridge=acoustic-001")
	assert.Contains(t, err.Error(), "stream=s-42")
	assert.True(t, stderrors.Is(err, ErrSyncLost))

	// Survives further wrapping
	wrapped := Wrap(err, "Session", "run", "ingest")
	ctx, ok = GetContext(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "acoustic-001", ctx.BridgeID)
}

func TestShouldRetry(t *testing.T) {
	rc := DefaultRetryConfig()

	assert.True(t, rc.ShouldRetry(ErrStreamTimeout, 0))
	assert.False(t, rc.ShouldRetry(ErrStreamTimeout, 3))
	assert.False(t, rc.ShouldRetry(ErrRejectedParams, 0))
	assert.False(t, rc.ShouldRetry(nil, 0))
}

func TestToRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig()
	cfg := rc.ToRetryConfig()

	assert.Equal(t, rc.MaxRetries+1, cfg.MaxAttempts)
	assert.True(t, cfg.AddJitter)
}
