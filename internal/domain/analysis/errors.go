package analysis

import (
	"context"
	"errors"
)

var (
	// ErrTimeout indicates a stage call exceeded its deadline.
	ErrTimeout = errors.New("stage timeout")
	// ErrMalformed indicates the stage response could not be parsed into the expected shape.
	ErrMalformed = errors.New("malformed stage response")
	// ErrUnreachable indicates the LLM endpoint could not be reached.
	ErrUnreachable = errors.New("llm endpoint unreachable")
	// ErrSkipped marks a stage that was not attempted because its prerequisite failed.
	ErrSkipped = errors.New("skipped: upstream failure")
	// ErrInvalidRequest is returned before a run starts when the request is unusable.
	ErrInvalidRequest = errors.New("invalid analysis request: identifier is required")
	// ErrNotFound is returned by repositories for unknown IDs.
	ErrNotFound = errors.New("analysis not found")
)

// ErrorKind classifies stage failures.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "TIMEOUT"
	KindMalformed   ErrorKind = "MALFORMED"
	KindUnreachable ErrorKind = "UNREACHABLE"
	KindSkipped     ErrorKind = "SKIPPED"
	KindError       ErrorKind = "ERROR"
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, ErrSkipped):
		return KindSkipped
	default:
		return KindError
	}
}
