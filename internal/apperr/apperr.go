package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can branch on it
// (retry, compensate, map to a status code) without string-matching.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidationFailed
	KindNotFound
	KindConflict
	KindServiceOverloaded
	KindServiceUnavailable
	KindTimeout
	KindNetworkError
	KindPersistenceFailed
	// KindStaleCache means the remote side effect committed but the
	// follow-up cache invalidation did not; callers must treat the remote
	// state as changed.
	KindStaleCache
)

func (k Kind) String() string {
	switch k {
	case KindValidationFailed:
		return "validation_failed"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindServiceOverloaded:
		return "service_overloaded"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindTimeout:
		return "timeout"
	case KindNetworkError:
		return "network_error"
	case KindPersistenceFailed:
		return "persistence_failed"
	case KindStaleCache:
		return "stale_cache"
	default:
		return "unexpected"
	}
}

// Error carries a failure kind, a user-facing message, the collected
// rule violations (validation only) and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Errors  []string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap keeps the cause chain intact so errors.Is/As still reach it.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation builds a ValidationFailed error with all collected violations.
func Validation(message string, violations []string) *Error {
	return &Error{Kind: KindValidationFailed, Message: message, Errors: violations}
}

func (e *Error) Error() string {
	if len(e.Errors) > 0 {
		return e.Message + ": " + strings.Join(e.Errors, "; ")
	}
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Kind so sentinels like New(KindNotFound, "") work as targets.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf walks the chain and returns the outermost *Error kind,
// or KindUnexpected when no classified error is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Unwrap()
	}
	return false
}
