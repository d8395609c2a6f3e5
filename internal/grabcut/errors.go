package grabcut

import (
	"errors"
	"fmt"
)

// ErrorKind classifies segmentation failures on the wire.
type ErrorKind string

const (
	KindInvalidRegion     ErrorKind = "invalid_region"
	KindInvalidScribble   ErrorKind = "invalid_scribble"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindComputation       ErrorKind = "computation_error"
	KindInvalidImage      ErrorKind = "invalid_image"
	KindInvalidRequest    ErrorKind = "invalid_request"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrInvalidRegion     = errors.New("invalid region")
	ErrInvalidScribble   = errors.New("invalid scribble")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrComputation       = errors.New("computation error")
	ErrInvalidImage      = errors.New("invalid image")
	ErrInvalidRequest    = errors.New("invalid request")

	// ErrCancelled is returned when a task stops because the caller cancelled it.
	// It is a terminal outcome, not a failure.
	ErrCancelled = errors.New("task cancelled")
)

// Error is a classified segmentation failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error's kind.
func (e *Error) Is(target error) bool {
	return sentinelFor(e.Kind) == target
}

// Sentinel returns the errors.Is target of kind, or nil for an unknown kind.
func (k ErrorKind) Sentinel() error {
	return sentinelFor(k)
}

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindInvalidRegion:
		return ErrInvalidRegion
	case KindInvalidScribble:
		return ErrInvalidScribble
	case KindResourceExhausted:
		return ErrResourceExhausted
	case KindComputation:
		return ErrComputation
	case KindInvalidImage:
		return ErrInvalidImage
	case KindInvalidRequest:
		return ErrInvalidRequest
	default:
		return nil
	}
}

// NewComputationError wraps an internal failure, such as a recovered panic.
func NewComputationError(msg string, cause error) *Error {
	return newError(KindComputation, msg, cause)
}

// NewRequestError reports a malformed request.
func NewRequestError(msg string) *Error {
	return newError(KindInvalidRequest, msg, nil)
}

// NewResourceError reports that a request cannot be accepted for capacity reasons.
func NewResourceError(msg string) *Error {
	return newError(KindResourceExhausted, msg, nil)
}

// KindOf returns the kind of err, or KindComputation for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindComputation
}
