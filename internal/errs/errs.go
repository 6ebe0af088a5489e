// Package errs carries the error taxonomy from spec.md §7 across component
// boundaries so background tasks and the control plane can classify a
// failure without depending on its concrete type.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the error taxonomy spec.md §7 assigns a handling policy to.
type Kind int

const (
	KindTransport Kind = iota
	KindAuth
	KindRateLimited
	KindNotFound
	KindSemantic
	KindConfiguration
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindSemantic:
		return "semantic"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// HTTPStatus maps a Kind onto the control-plane status codes spec.md §7 names.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindSemantic, KindConfiguration:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransport:
		return http.StatusBadGateway
	case KindAuth:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error wraps an underlying cause with a Kind, the failing operation name,
// and a Fatal flag.
type Error struct {
	Kind  Kind
	Op    string
	Err   error
	Fatal bool
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Fatal(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Fatal: true}
}

// As extracts the *Error from err, if any. A convenience wrapper over errors.As
// so call sites don't repeat the pointer-to-pointer boilerplate.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// OfKind reports whether err is (or wraps) an *Error of the given Kind.
func OfKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

var (
	ErrStreamerNotFound = errors.New("streamer does not exist")
	ErrStreamerOffline  = errors.New("streamer is offline")
	ErrPresetNotFound   = errors.New("preset does not exist")
	ErrEventNotFound    = errors.New("prediction event not found")
	ErrDuplicateBet     = errors.New("bet already placed for this event")
	ErrInsufficientBalance = errors.New("insufficient channel points balance")
	ErrEventLocked      = errors.New("prediction event is locked")
)
