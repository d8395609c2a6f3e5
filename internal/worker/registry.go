package worker

import (
	"fmt"
	"sync"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
)

// State is the lifecycle position of a task.
type State int

const (
	StateQueued State = iota
	StateRunning
)

type entry struct {
	state     State
	cancelled bool
}

// Registry tracks active tasks and their cancellation flags. Finished tasks
// are forgotten, so cancelling them is a no-op.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*entry)}
}

// Register adds a queued task. An id that is still active is rejected with
// an invalid_request error wrapping ErrTaskActive.
func (r *Registry) Register(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; ok {
		return &grabcut.Error{
			Kind:    grabcut.KindInvalidRequest,
			Message: fmt.Sprintf("duplicate task id %q", id),
			Err:     ErrTaskActive,
		}
	}
	r.tasks[id] = &entry{state: StateQueued}
	return nil
}

// Start moves a task to running. It returns false if the task was cancelled
// while queued or is unknown.
func (r *Registry) Start(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok || e.cancelled {
		return false
	}
	e.state = StateRunning
	return true
}

// Cancel flags an active task and reports whether it was active.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return false
	}
	e.cancelled = true
	return true
}

// CancelAll flags every active task.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.tasks {
		e.cancelled = true
	}
	return len(r.tasks)
}

// IsCancelled implements grabcut.Canceller.
func (r *Registry) IsCancelled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	return ok && e.cancelled
}

// Finish forgets a task.
func (r *Registry) Finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tasks, id)
}

// Counts returns the number of queued and running tasks.
func (r *Registry) Counts() (queued, running int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.tasks {
		if e.state == StateRunning {
			running++
		} else {
			queued++
		}
	}
	return queued, running
}

var _ grabcut.Canceller = (*Registry)(nil)
