package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingInput marks a step precondition failure: a required artifact
	// was never produced. Terminal for the episode run; the step's
	// collaborator must not have been invoked.
	ErrMissingInput = errors.New("missing input")
	// ErrTransient marks failures that are safe to retry: network timeouts,
	// rate limits, resource contention.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that retrying cannot fix: malformed input,
	// unsupported formats, contract violations.
	ErrPermanent = errors.New("permanent failure")
	// ErrConcurrentWrite marks two writers racing on one artifact key.
	ErrConcurrentWrite = errors.New("concurrent write")
	// ErrNotFound marks reads of absent episodes or artifacts.
	ErrNotFound = errors.New("not found")
)

// ErrorKind is the classification persisted into processing history records.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindMissingInput    ErrorKind = "missing_input"
	KindTransient       ErrorKind = "transient"
	KindPermanent       ErrorKind = "permanent"
	KindConcurrentWrite ErrorKind = "conflict"
	KindNotFound        ErrorKind = "not_found"
)

// Wrap builds an error message that includes step context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrPermanent
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind classifies an error by its sentinel marker. Classification never
// inspects message strings. Untyped errors classify as permanent so retries
// stay opt-in, with one exception: context cancellation and deadline expiry
// are transient because resuming after a restart is safe.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMissingInput):
		return KindMissingInput
	case errors.Is(err, ErrConcurrentWrite):
		return KindConcurrentWrite
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindPermanent
	}
}

// Retryable reports whether the runner may re-attempt the operation.
func Retryable(err error) bool {
	return Kind(err) == KindTransient
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
