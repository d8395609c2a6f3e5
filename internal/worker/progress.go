package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
)

// ProgressCallback defines the interface for progress reporting of a task.
type ProgressCallback interface {
	// OnStart is called before the task is submitted.
	OnStart(taskID string, iterations int)

	// OnProgress is called for every stage of every round.
	OnProgress(p grabcut.Progress)

	// OnComplete is called when the task produced a result.
	OnComplete(taskID string)

	// OnError is called when the task failed or was cancelled.
	OnError(taskID string, err error)
}

// CallbackSink adapts cb to a Sink and forwards every event to next, which may be nil.
func CallbackSink(cb ProgressCallback, next Sink) Sink {
	return func(ev Event) {
		switch e := ev.(type) {
		case ProgressEvent:
			cb.OnProgress(e.Progress)
		case ResultEvent:
			cb.OnComplete(e.ID)
		case CancelledEvent:
			cb.OnError(e.ID, grabcut.ErrCancelled)
		case ErrorEvent:
			cb.OnError(e.ID, e)
		}
		if next != nil {
			next(ev)
		}
	}
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(string, int)         {}
func (NoOpProgressCallback) OnProgress(grabcut.Progress) {}
func (NoOpProgressCallback) OnComplete(string)           {}
func (NoOpProgressCallback) OnError(string, error)       {}

var stageTitle = cases.Title(language.English)

// ConsoleProgressCallback displays a progress bar on the console.
type ConsoleProgressCallback struct {
	writer    io.Writer
	prefix    string
	width     int
	mutex     sync.Mutex
	startTime time.Time
}

// NewConsoleProgressCallback creates a new console progress reporter.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{
		writer: writer,
		prefix: prefix,
		width:  30,
	}
}

// WithWidth sets the progress bar width.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	c.width = width
	return c
}

func (c *ConsoleProgressCallback) OnStart(taskID string, iterations int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.startTime = time.Now()
	_, _ = fmt.Fprintf(c.writer, "%sSegmenting %s (%d rounds)\n", c.prefix, taskID, iterations)
}

func (c *ConsoleProgressCallback) OnProgress(p grabcut.Progress) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	overall := min(max(p.Overall, 0), 1)
	filled := int(float64(c.width) * overall)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	_, _ = fmt.Fprintf(c.writer, "\r%s[%s] round %d/%d %-8s %5.1f%%",
		c.prefix, bar, p.Iteration+1, p.Iterations, stageTitle.String(string(p.Stage)), overall*100)
}

func (c *ConsoleProgressCallback) OnComplete(taskID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted %s in %v\n", c.prefix, taskID, time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(taskID string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sTask %s stopped: %v\n", c.prefix, taskID, err)
}

// LogProgressCallback logs progress updates using slog.
type LogProgressCallback struct {
	logger    *slog.Logger
	level     slog.Level
	startTime time.Time
}

// NewLogProgressCallback creates a new log-based progress reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level}
}

func (l *LogProgressCallback) OnStart(taskID string, iterations int) {
	l.startTime = time.Now()
	l.logger.Log(context.Background(), l.level, "Starting segmentation", "task_id", taskID, "iterations", iterations)
}

func (l *LogProgressCallback) OnProgress(p grabcut.Progress) {
	l.logger.Log(context.Background(), l.level, "Progress update",
		"task_id", p.TaskID,
		"stage", p.Stage,
		"iteration", p.Iteration,
		"percent", fmt.Sprintf("%.1f", p.Overall*100),
	)
}

func (l *LogProgressCallback) OnComplete(taskID string) {
	l.logger.Log(context.Background(), l.level, "Segmentation completed", "task_id", taskID,
		"elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(taskID string, err error) {
	l.logger.Log(context.Background(), slog.LevelError, "Segmentation stopped", "task_id", taskID, "error", err)
}

// MultiProgressCallback combines multiple progress callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback creates a progress callback that reports to multiple callbacks.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	return &MultiProgressCallback{callbacks: callbacks}
}

// Add adds another progress callback.
func (m *MultiProgressCallback) Add(callback ProgressCallback) {
	m.callbacks = append(m.callbacks, callback)
}

func (m *MultiProgressCallback) OnStart(taskID string, iterations int) {
	for _, cb := range m.callbacks {
		cb.OnStart(taskID, iterations)
	}
}

func (m *MultiProgressCallback) OnProgress(p grabcut.Progress) {
	for _, cb := range m.callbacks {
		cb.OnProgress(p)
	}
}

func (m *MultiProgressCallback) OnComplete(taskID string) {
	for _, cb := range m.callbacks {
		cb.OnComplete(taskID)
	}
}

func (m *MultiProgressCallback) OnError(taskID string, err error) {
	for _, cb := range m.callbacks {
		cb.OnError(taskID, err)
	}
}

// ThrottledProgressCallback wraps another callback and drops progress updates
// that arrive faster than minInterval. The last stage of the last round is
// always delivered.
type ThrottledProgressCallback struct {
	wrapped     ProgressCallback
	minInterval time.Duration
	lastUpdate  time.Time
	mutex       sync.Mutex
}

// NewThrottledProgressCallback creates a throttled wrapper around another callback.
func NewThrottledProgressCallback(wrapped ProgressCallback, minInterval time.Duration) *ThrottledProgressCallback {
	return &ThrottledProgressCallback{
		wrapped:     wrapped,
		minInterval: minInterval,
	}
}

func (t *ThrottledProgressCallback) OnStart(taskID string, iterations int) {
	t.wrapped.OnStart(taskID, iterations)
}

func (t *ThrottledProgressCallback) OnProgress(p grabcut.Progress) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := time.Now()
	if p.Overall >= 1 || t.lastUpdate.IsZero() || now.Sub(t.lastUpdate) >= t.minInterval {
		t.lastUpdate = now
		t.wrapped.OnProgress(p)
	}
}

func (t *ThrottledProgressCallback) OnComplete(taskID string) {
	t.wrapped.OnComplete(taskID)
}

func (t *ThrottledProgressCallback) OnError(taskID string, err error) {
	t.wrapped.OnError(taskID, err)
}
