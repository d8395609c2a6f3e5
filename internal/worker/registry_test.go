package worker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
)

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a"))
	err := r.Register("a")
	require.ErrorIs(t, err, grabcut.ErrInvalidRequest)
	require.ErrorIs(t, err, ErrTaskActive)

	q, run := r.Counts()
	assert.Equal(t, 1, q)
	assert.Zero(t, run)

	assert.True(t, r.Start("a"))
	q, run = r.Counts()
	assert.Zero(t, q)
	assert.Equal(t, 1, run)

	assert.False(t, r.IsCancelled("a"))
	assert.True(t, r.Cancel("a"))
	assert.True(t, r.IsCancelled("a"))

	r.Finish("a")
	assert.False(t, r.IsCancelled("a"), "finished tasks are forgotten")
	assert.False(t, r.Cancel("a"), "cancelling a finished task is a no-op")
	require.NoError(t, r.Register("a"), "ids can be reused once finished")
}

func TestRegistry_CancelWhileQueued(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a"))
	r.Cancel("a")
	assert.False(t, r.Start("a"))
	assert.False(t, r.Start("unknown"))
}

func TestRegistry_CancelUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Cancel("nope"))
	assert.False(t, r.IsCancelled("nope"))
}

func TestRegistry_CancelAll(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a"))
	require.NoError(t, r.Register("b"))
	assert.Equal(t, 2, r.CancelAll())
	assert.True(t, r.IsCancelled("a"))
	assert.True(t, r.IsCancelled("b"))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if r.Register(id) == nil {
				r.Start(id)
				r.Cancel(id)
				_ = r.IsCancelled(id)
				r.Finish(id)
			}
		}(NewTaskID())
	}
	wg.Wait()
	q, run := r.Counts()
	assert.Zero(t, q+run)
}
