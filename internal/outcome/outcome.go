// Package outcome defines the typed result every gateway returns to the
// orchestrator. A gateway never hands a raw error upstream: backend errors are
// classified into a Failure with a stable Kind and a message that is safe to
// show to callers.
package outcome

import (
	"errors"
	"fmt"
)

// Kind is the stable error taxonomy exposed to callers.
type Kind string

const (
	// KindInvalidInput marks user-correctable input problems (bad, oversized or unsupported audio).
	KindInvalidInput Kind = "invalid_input"

	// KindProviderUnavailable marks a remote STT/LLM/TTS call that failed or timed out.
	KindProviderUnavailable Kind = "provider_unavailable"

	// KindInternalFailure marks an unexpected local fault (e.g. a storage write error).
	KindInternalFailure Kind = "internal_failure"
)

// Reason refines a Kind. It is empty when the Kind says enough.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonTooLarge          Reason = "too_large"
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonEmpty             Reason = "empty"
	ReasonMissingFile       Reason = "missing_file"
	ReasonCanceled          Reason = "canceled"
)

// Failure is the failure half of a Result.
//
// Message is shown to callers and must never carry credentials or file paths.
// The wrapped cause is for logs only.
type Failure struct {
	Kind    Kind
	Reason  Reason
	Message string
	cause   error
}

// NewFailure builds a Failure. cause may be nil.
func NewFailure(kind Kind, reason Reason, message string, cause error) *Failure {
	return &Failure{Kind: kind, Reason: reason, Message: message, cause: cause}
}

// Error implements error. It includes the cause and is meant for logs.
func (f *Failure) Error() string {
	s := string(f.Kind)
	if f.Reason != ReasonNone {
		s += ": " + string(f.Reason)
	}
	if f.Message != "" {
		s += ": " + f.Message
	}
	if f.cause != nil {
		s += fmt.Sprintf(" (%v)", f.cause)
	}
	return s
}

// Unwrap returns the internal cause.
func (f *Failure) Unwrap() error { return f.cause }

// Result is a tagged outcome: either a value or a Failure.
type Result[T any] struct {
	Value   T
	Failure *Failure
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail builds a failed Result.
func Fail[T any](kind Kind, reason Reason, message string, cause error) Result[T] {
	return Result[T]{Failure: NewFailure(kind, reason, message, cause)}
}

// FromFailure re-tags an existing Failure for a different value type.
func FromFailure[T any](f *Failure) Result[T] {
	return Result[T]{Failure: f}
}

// Ok reports whether the result holds a value.
func (r Result[T]) Ok() bool { return r.Failure == nil }

// AsFailure extracts a Failure from err if one is wrapped inside it.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// InvalidInput builds an InvalidInput failure as a plain error, for backends
// that need to signal a user-correctable problem through an error return.
func InvalidInput(reason Reason, message string, cause error) error {
	return NewFailure(KindInvalidInput, reason, message, cause)
}
