// Package fault defines the error kinds reported by the fatigue pipeline.
//
// Every failure leaving the pipeline carries a Kind so callers can tell bad
// input (4xx) from a broken deployment (5xx) without parsing messages.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-distinguishable failure category
type Kind string

const (
	KindInput             Kind = "input_error"
	KindDecode            Kind = "decode_error"
	KindInsufficientAudio Kind = "insufficient_audio"
	KindExtraction        Kind = "extraction_error"
	KindScaling           Kind = "scaling_error"
	KindInference         Kind = "inference_error"
	KindInternal          Kind = "internal_error"
)

// HTTPStatus maps a kind to the status code an HTTP collaborator should use.
// Scaling and inference failures point at the loaded artifacts, not the input.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInput, KindDecode, KindInsufficientAudio, KindExtraction:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same request might succeed after the
// operator fixes the deployment.
func (k Kind) Retryable() bool {
	return k.HTTPStatus() >= http.StatusInternalServerError
}

// Error is a pipeline failure with a kind, a human-readable message and an
// optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
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

// New creates an error of the given kind
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the message of the first *Error in err's chain
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
