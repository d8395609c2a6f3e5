package grabcut

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MatchesSentinelOfKind(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		sentinel error
	}{
		{KindInvalidRegion, ErrInvalidRegion},
		{KindInvalidScribble, ErrInvalidScribble},
		{KindResourceExhausted, ErrResourceExhausted},
		{KindComputation, ErrComputation},
		{KindInvalidImage, ErrInvalidImage},
		{KindInvalidRequest, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := newError(tt.kind, "boom", nil)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.NotErrorIs(t, err, ErrCancelled)
			assert.Equal(t, tt.kind, KindOf(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("underlying")
	err := NewComputationError("max-flow failed", cause)
	assert.Equal(t, "computation_error: max-flow failed: underlying", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "invalid_request: bad", NewRequestError("bad").Error())
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindComputation, KindOf(errors.New("plain")))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(ErrCancelled))
	assert.True(t, IsCancelled(fmt.Errorf("run: %w", ErrCancelled)))
	assert.False(t, IsCancelled(ErrInvalidRegion))
}
