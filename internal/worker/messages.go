package worker

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/maskops"
)

// NewTaskID returns a fresh random task identifier.
func NewTaskID() string {
	return uuid.NewString()
}

// Mask is a one-byte-per-pixel buffer with its dimensions.
type Mask struct {
	Width  int
	Height int
	Pixels []byte
}

// Validate checks that the buffer matches the dimensions.
func (m Mask) Validate() error {
	if m.Width <= 0 || m.Height <= 0 || len(m.Pixels) != m.Width*m.Height {
		return grabcut.NewRequestError(fmt.Sprintf("mask has %d bytes for %dx%d", len(m.Pixels), m.Width, m.Height))
	}
	return nil
}

// Request is a message handled by the pool. The set of implementations is closed.
type Request interface {
	Task() string
	isRequest()
}

// SegmentRequest runs a segmentation job.
type SegmentRequest struct {
	Job grabcut.Job
}

// CancelRequest asks the pool to stop a task. It produces no event of its own.
type CancelRequest struct {
	ID string
}

// MorphRequest applies a morphological operation to a mask.
type MorphRequest struct {
	ID     string
	Mask   Mask
	Config maskops.MorphConfig
}

// FeatherRequest blurs the edges of a mask.
type FeatherRequest struct {
	ID    string
	Mask  Mask
	Sigma float64
}

func (r SegmentRequest) Task() string { return r.Job.TaskID }
func (r CancelRequest) Task() string  { return r.ID }
func (r MorphRequest) Task() string   { return r.ID }
func (r FeatherRequest) Task() string { return r.ID }

func (SegmentRequest) isRequest() {}
func (CancelRequest) isRequest()  {}
func (MorphRequest) isRequest()   {}
func (FeatherRequest) isRequest() {}

// withTaskID returns req with id filled in.
func withTaskID(req Request, id string) Request {
	switch r := req.(type) {
	case SegmentRequest:
		r.Job.TaskID = id
		return r
	case CancelRequest:
		r.ID = id
		return r
	case MorphRequest:
		r.ID = id
		return r
	case FeatherRequest:
		r.ID = id
		return r
	}
	return req
}

// Event is emitted by the pool while handling a request. Every task ends with
// exactly one of ResultEvent, CancelledEvent or ErrorEvent.
type Event interface {
	Task() string
	isEvent()
}

// ProgressEvent reports a finished stage of a segmentation round.
type ProgressEvent struct {
	grabcut.Progress
}

// ResultEvent carries the output mask. Segmentation is set for segment tasks.
type ResultEvent struct {
	ID           string
	Mask         Mask
	Segmentation *grabcut.Result
}

// CancelledEvent acknowledges a cancelled task.
type CancelledEvent struct {
	ID string
}

// ErrorEvent reports a failed task.
type ErrorEvent struct {
	ID      string
	Kind    grabcut.ErrorKind
	Message string
}

func (e ProgressEvent) Task() string  { return e.TaskID }
func (e ResultEvent) Task() string    { return e.ID }
func (e CancelledEvent) Task() string { return e.ID }
func (e ErrorEvent) Task() string     { return e.ID }

func (ProgressEvent) isEvent()  {}
func (ResultEvent) isEvent()    {}
func (CancelledEvent) isEvent() {}
func (ErrorEvent) isEvent()     {}

// IsTerminal reports whether ev ends its task.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case ResultEvent, CancelledEvent, ErrorEvent:
		return true
	default:
		return false
	}
}

func (e ErrorEvent) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the sentinel of the event's kind to errors.Is.
func (e ErrorEvent) Unwrap() error {
	return e.Kind.Sentinel()
}

// errorEvent classifies err for task id. The kind is carried separately, so
// the message of a classified error omits it.
func errorEvent(id string, err error) ErrorEvent {
	msg := err.Error()
	var ge *grabcut.Error
	if errors.As(err, &ge) {
		msg = ge.Message
		if ge.Err != nil {
			msg = fmt.Sprintf("%s: %v", ge.Message, ge.Err)
		}
	}
	return ErrorEvent{ID: id, Kind: grabcut.KindOf(err), Message: msg}
}

// Sink receives the events of one task, in order, from the goroutine running it.
type Sink func(Event)
