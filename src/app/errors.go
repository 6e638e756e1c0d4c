package app

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidImage           Kind = "invalid_image"
	KindNotFoodImage           Kind = "not_food_image"
	KindAnalysisFailure        Kind = "analysis_failure"
	KindStagingFailure         Kind = "staging_failure"
	KindImageProcessingFailure Kind = "image_processing_failure"
	KindPersistenceFailure     Kind = "persistence_failure"
	KindNotFound               Kind = "not_found"
	KindNotAuthorized          Kind = "not_authorized"
	KindUnauthenticated        Kind = "unauthenticated"
	KindBadRequest             Kind = "bad_request"
	KindConflict               Kind = "conflict"
	KindUnsupported            Kind = "unsupported"
	KindInternal               Kind = "internal"
)

// Error is the error type shared by every layer of the service. Message is
// safe to show to a client, Cause is not.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError always adds a new layer, so the outermost kind wins while the
// original kind stays reachable through the chain.
func WrapError(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: message, Cause: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal for foreign errors.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// HasKind reports whether any *Error in the chain has the given kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		var typed *Error
		if !errors.As(err, &typed) {
			return false
		}
		if typed.Kind == kind {
			return true
		}
		err = typed.Cause
	}
	return false
}

// PublicMessage returns the client facing message of the outermost *Error.
func PublicMessage(err error) string {
	var typed *Error
	if errors.As(err, &typed) && typed.Message != "" {
		return typed.Message
	}
	return "internal server error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidImage, KindNotFoodImage, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
