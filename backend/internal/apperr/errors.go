package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Auth
	NotFound
	Conflict
	StoreUnavailable
	Upstream
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Auth:
		return "auth"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case StoreUnavailable:
		return "store_unavailable"
	case Upstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error carries a kind, a stable machine code for clients and the HTTP status to answer with.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, status int, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Status: status, Err: err}
}

func NewValidation(code, msg string) *Error {
	return newError(Validation, http.StatusBadRequest, code, msg, nil)
}

// NewAuth uses 400 for bad credentials and 401 for a missing or rejected token.
func NewAuth(status int, code, msg string) *Error {
	return newError(Auth, status, code, msg, nil)
}

func NewNotFound(code, msg string) *Error {
	return newError(NotFound, http.StatusNotFound, code, msg, nil)
}

func NewConflict(status int, code, msg string) *Error {
	return newError(Conflict, status, code, msg, nil)
}

func NewStoreUnavailable(err error) *Error {
	return newError(StoreUnavailable, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Database not connected", err)
}

// NewUpstream keeps the provider's status; 0 becomes 502.
func NewUpstream(status int, msg string, err error) *Error {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return newError(Upstream, status, "UPSTREAM_ERROR", msg, err)
}

func NewInternal(err error) *Error {
	return newError(Internal, http.StatusInternalServerError, "INTERNAL", "Server error", err)
}

// As returns the *Error in err's chain, or wraps err as Internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternal(err)
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
