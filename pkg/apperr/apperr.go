// Package apperr defines the failure taxonomy shared by the server
// handlers and the Go client: validation, not-found, upstream and
// transport failures. Every failed operation returns one of these so
// callers can decide whether to retry, prompt, or display inline.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports bad caller input. It is never retried
// automatically and its message is surfaced to the user verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports that a referenced record does not exist.
type NotFoundError struct {
	Kind string // "session", "message", "transcript"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// UpstreamError reports that an external collaborator (AI responder or
// transcription engine) failed. Already-persisted records are left
// intact; only the dependent step is marked failed.
type UpstreamError struct {
	Op  string // "assistant_reply", "transcribe_file", "transcribe_url"
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// TransportError reports that the network or backend was unreachable.
// Callers should offer a retry affordance; the core performs no silent
// retries.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Validation builds a ValidationError for a named field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound builds a NotFoundError for a record kind and id.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Upstream wraps err as an UpstreamError for op.
func Upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// Transport wraps err as a TransportError for op.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
