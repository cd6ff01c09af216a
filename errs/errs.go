// Package errs defines the error taxonomy shared by the pipeline, the queue
// and the HTTP layer. every failure in the system is classified into a Kind
// so that each layer can decide its posture mechanically:
// the queue asks Retryable(), the HTTP adapter asks HTTPStatus(), and the
// orchestrator persists the message tail regardless of kind.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse classification of an error.
type Kind string

const (
	// KindNotFound: project or deployment does not exist (or is not owned by the caller)
	KindNotFound Kind = "not_found"

	// KindValidation: bad input, including commands rejected by the gateway allow-list
	KindValidation Kind = "validation"

	// KindUnauthorized: caller identity missing or rejected
	KindUnauthorized Kind = "unauthorized"

	// KindCloneFailed: git clone/fetch/checkout failed (network, auth, missing branch)
	KindCloneFailed Kind = "clone_failed"

	// KindBuildFailed: the image build stream reported an error
	KindBuildFailed Kind = "build_failed"

	// KindImageMissing: the build stream completed but no image exists
	KindImageMissing Kind = "image_missing_after_build"

	// KindRunFailed: container create or start failed
	KindRunFailed Kind = "run_failed"

	// KindTimeout: the command gateway's wall-clock limit expired
	KindTimeout Kind = "timeout"

	// KindQueueUnavailable: the queue backend could not be reached at submit time
	KindQueueUnavailable Kind = "queue_unavailable"

	// KindInternal: anything else
	KindInternal Kind = "internal"
)

// Error is a classified error. it wraps an underlying cause (possibly nil)
// so errors.Is/errors.As keep working through the classification layer.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (classified *Error) Error() string {
	if classified.Cause != nil {
		return classified.Message + ": " + classified.Cause.Error()
	}
	return classified.Message
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (classified *Error) Unwrap() error {
	return classified.Cause
}

// New constructs a classified error with a formatted message and no cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. a nil cause returns nil so call sites
// can wrap unconditionally at the end of a function.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from anywhere in an error chain.
// unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// Retryable reports whether the queue should re-deliver the job that
// produced this error. pipeline-step failures are worth retrying (networks
// flap, registries hiccup); caller mistakes are not.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindCloneFailed, KindBuildFailed, KindImageMissing, KindRunFailed, KindInternal:
		return true
	}
	return false
}

// HTTPStatus maps a Kind to the status code the HTTP adapter returns.
// pipeline kinds never reach the synchronous HTTP path (they surface through
// the persisted deployment row), so they fall through to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindTimeout:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
