// Package worker runs segmentation and mask tasks on a fixed set of
// goroutines fed by a bounded queue, and reports their progress and outcome
// as ordered events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/maskops"
)

var (
	// ErrPoolClosed is reported for requests submitted after Close.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrTaskActive is returned by Handle for an id that is still queued or running.
	ErrTaskActive = errors.New("task is already active")
)

// Outcome labels a finished task for observers.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
)

// Observer receives task lifecycle notifications, e.g. for metrics.
type Observer interface {
	TaskQueued(kind string)
	TaskStarted(kind string, waited time.Duration)
	TaskFinished(kind string, outcome Outcome, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) TaskQueued(string)                           {}
func (noopObserver) TaskStarted(string, time.Duration)           {}
func (noopObserver) TaskFinished(string, Outcome, time.Duration) {}

// Config holds configuration for the pool.
type Config struct {
	MaxWorkers int // 0 = runtime.NumCPU()
	QueueSize  int // 0 = 4 * MaxWorkers
	Engine     grabcut.Options
	Logger     *slog.Logger
	Observer   Observer
}

// DefaultConfig returns sensible defaults for the pool.
func DefaultConfig() Config {
	return Config{
		MaxWorkers: runtime.NumCPU(),
		Engine:     grabcut.DefaultOptions(),
	}
}

type task struct {
	req      Request
	sink     Sink
	enqueued time.Time
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Capacity  int   `json:"queue_capacity"`
	Queued    int   `json:"queued"`
	Running   int   `json:"running"`
	Completed int64 `json:"completed"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
}

// Pool executes requests. Handle never blocks on computation.
type Pool struct {
	cfg        Config
	logger     *slog.Logger
	observer   Observer
	registry   *Registry
	controller *grabcut.Controller

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan task
	wg     sync.WaitGroup

	completed atomic.Int64
	cancelled atomic.Int64
	failed    atomic.Int64
}

// NewPool starts the worker goroutines.
func NewPool(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4 * cfg.MaxWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:        cfg,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		registry:   registry,
		controller: grabcut.NewController(cfg.Engine, registry, cfg.Logger),
		ctx:        ctx,
		cancel:     cancel,
		queue:      make(chan task, cfg.QueueSize),
	}

	for i := range cfg.MaxWorkers {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("Worker pool started", "workers", cfg.MaxWorkers, "queue_size", cfg.QueueSize)
	return p
}

// Registry returns the pool's cancellation registry.
func (p *Pool) Registry() *Registry { return p.registry }

// EngineOptions returns the effective segmentation options.
func (p *Pool) EngineOptions() grabcut.Options { return p.controller.Options() }

// Handle accepts a request and returns its task id, assigning one when the
// request carries none. Events for the task are delivered to sink; a cancel
// request produces no events. A request whose id is still active is refused
// with an error matching ErrTaskActive and no events, so the running task
// keeps its single terminal event.
func (p *Pool) Handle(req Request, sink Sink) (string, error) {
	id := req.Task()
	if id == "" {
		id = NewTaskID()
		req = withTaskID(req, id)
	}
	if sink == nil {
		sink = func(Event) {}
	}

	if _, ok := req.(CancelRequest); ok {
		if p.registry.Cancel(id) {
			p.logger.Debug("Cancel requested", "task_id", id)
		}
		return id, nil
	}

	kind := requestKind(req)
	if err := p.registry.Register(id); err != nil {
		p.observer.TaskFinished(kind, OutcomeRejected, 0)
		p.logger.Warn("Rejected duplicate task id", "task_id", id)
		return id, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.registry.Finish(id)
		p.observer.TaskFinished(kind, OutcomeRejected, 0)
		p.emit(sink, errorEvent(id, grabcut.NewResourceError(ErrPoolClosed.Error())))
		return id, nil
	}

	select {
	case p.queue <- task{req: req, sink: sink, enqueued: time.Now()}:
		p.observer.TaskQueued(kind)
	default:
		p.registry.Finish(id)
		p.observer.TaskFinished(kind, OutcomeRejected, 0)
		p.logger.Warn("Task queue full", "task_id", id, "capacity", cap(p.queue))
		p.emit(sink, errorEvent(id, grabcut.NewResourceError(
			fmt.Sprintf("task queue is full (%d pending)", cap(p.queue)))))
	}
	return id, nil
}

// Cancel flags a task; unknown or finished tasks are ignored.
func (p *Pool) Cancel(id string) bool {
	return p.registry.Cancel(id)
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	queued, running := p.registry.Counts()
	return Stats{
		Workers:   p.cfg.MaxWorkers,
		Capacity:  p.cfg.QueueSize,
		Queued:    queued,
		Running:   running,
		Completed: p.completed.Load(),
		Cancelled: p.cancelled.Load(),
		Failed:    p.failed.Load(),
	}
}

// Close stops accepting requests, cancels pending and running tasks and waits
// for the workers to exit or ctx to expire.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	if n := p.registry.CancelAll(); n > 0 {
		p.logger.Info("Cancelling outstanding tasks", "count", n)
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

// worker processes tasks from the queue until it is closed.
func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(t)
	}
	p.logger.Debug("Worker stopped", "worker", n)
}

func (p *Pool) run(t task) {
	id := t.req.Task()
	kind := requestKind(t.req)
	start := time.Now()

	ev := p.execute(t, kind, start.Sub(t.enqueued))
	if _, ok := ev.(ResultEvent); ok && p.registry.IsCancelled(id) {
		ev = CancelledEvent{ID: id}
	}
	p.registry.Finish(id)

	outcome := OutcomeCompleted
	switch e := ev.(type) {
	case CancelledEvent:
		outcome = OutcomeCancelled
		p.cancelled.Add(1)
	case ErrorEvent:
		outcome = OutcomeFailed
		p.failed.Add(1)
		p.logger.Warn("Task failed", "task_id", id, "kind", kind, "error", e.Kind, "message", e.Message)
	default:
		p.completed.Add(1)
	}
	p.observer.TaskFinished(kind, outcome, time.Since(start))
	p.emit(t.sink, ev)
}

// execute runs one task and returns its terminal event. Panics become
// computation errors so the worker survives.
func (p *Pool) execute(t task, kind string, waited time.Duration) (ev Event) {
	id := t.req.Task()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked", "task_id", id, "panic", r, "stack", string(debug.Stack()))
			ev = errorEvent(id, grabcut.NewComputationError("internal failure", fmt.Errorf("panic: %v", r)))
		}
	}()

	p.observer.TaskStarted(kind, waited)
	if !p.registry.Start(id) {
		return CancelledEvent{ID: id}
	}

	switch req := t.req.(type) {
	case SegmentRequest:
		res, err := p.controller.Run(p.ctx, req.Job, func(pr grabcut.Progress) {
			p.emit(t.sink, ProgressEvent{Progress: pr})
		})
		if grabcut.IsCancelled(err) {
			return CancelledEvent{ID: id}
		}
		if err != nil {
			return errorEvent(id, err)
		}
		return ResultEvent{
			ID:           id,
			Mask:         Mask{Width: res.Width, Height: res.Height, Pixels: res.Mask},
			Segmentation: res,
		}

	case MorphRequest:
		if err := req.Mask.Validate(); err != nil {
			return errorEvent(id, err)
		}
		out, err := maskops.Morph(req.Mask.Pixels, req.Mask.Width, req.Mask.Height, req.Config)
		if err != nil {
			return errorEvent(id, grabcut.NewRequestError(err.Error()))
		}
		return ResultEvent{ID: id, Mask: Mask{Width: req.Mask.Width, Height: req.Mask.Height, Pixels: out}}

	case FeatherRequest:
		if err := req.Mask.Validate(); err != nil {
			return errorEvent(id, err)
		}
		out, err := maskops.Feather(req.Mask.Pixels, req.Mask.Width, req.Mask.Height, req.Sigma)
		if err != nil {
			return errorEvent(id, grabcut.NewRequestError(err.Error()))
		}
		return ResultEvent{ID: id, Mask: Mask{Width: req.Mask.Width, Height: req.Mask.Height, Pixels: out}}

	default:
		return errorEvent(id, grabcut.NewRequestError(fmt.Sprintf("unsupported request %T", t.req)))
	}
}

// emit delivers ev, containing panics raised by the sink.
func (p *Pool) emit(sink Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Event sink panicked", "task_id", ev.Task(), "panic", r)
		}
	}()
	sink(ev)
}

func requestKind(req Request) string {
	switch req.(type) {
	case SegmentRequest:
		return "segment"
	case CancelRequest:
		return "cancel"
	case MorphRequest:
		return "morph"
	case FeatherRequest:
		return "feather"
	default:
		return "unknown"
	}
}
