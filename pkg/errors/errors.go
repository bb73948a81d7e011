package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is the stable, client-visible classification of a failure.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type flag uint8

const (
	retryable flag = 1 << iota
	showDetails
)

func describe(status int, public string, flags flag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&showDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    describe(http.StatusBadRequest, "validation failed", showDetails),
	CodeUnauthorized:  describe(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     describe(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      describe(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      describe(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: describe(http.StatusUnprocessableEntity, "state transition disallowed", showDetails),
	CodeIdempotency:   describe(http.StatusConflict, "idempotency key reused", showDetails),
	CodeRateLimit:     describe(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|showDetails),
}

// MetadataFor falls back to the internal error entry for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with an optional cause and client-safe details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.details = details
	return &cp
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	b.WriteString(": ")
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so errors.Is(err, New(CodeNotFound, ""))
// works as a code check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return err != nil && stdErrors.Is(err, &Error{code: code})
}

// CodeOf returns the code of the outermost *Error, or CodeInternal.
func CodeOf(err error) Code {
	return As(err).Code()
}
