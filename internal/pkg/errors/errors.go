// Package errors provides the failure taxonomy used across the media pipeline.
// Every collaborator error is translated into one of these codes before it
// reaches the fallback coordinator or the user.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code is a failure class.
type Code string

const (
	// CodeNotFound: content absent or removed. Terminal.
	CodeNotFound Code = "NOT_FOUND"
	// CodeUnsupported: no resolver recognizes the URL. Terminal.
	CodeUnsupported Code = "UNSUPPORTED"
	// CodeAuthRequired: the provider credential is missing or expired. Terminal.
	CodeAuthRequired Code = "AUTH_REQUIRED"
	// CodeTransient: timeout, rate limit, 5xx or hotlink rejection.
	CodeTransient Code = "TRANSIENT"
	// CodeUnretryable: this strategy cannot succeed for this content, others might.
	CodeUnretryable Code = "UNRETRYABLE"
	// CodeInternal: anything unrecognized.
	CodeInternal Code = "INTERNAL_ERROR"
	// CodeBusy: the submitter already has a request in flight.
	CodeBusy Code = "BUSY"
	// CodeValidation: bad configuration or API input.
	CodeValidation Code = "VALIDATION_ERROR"
)

// ReasonTooLarge marks size-limit failures in Fields["reason"].
const ReasonTooLarge = "too_large"

var httpStatus = map[Code]int{
	CodeValidation:   http.StatusBadRequest,
	CodeUnsupported:  http.StatusBadRequest,
	CodeAuthRequired: http.StatusUnauthorized,
	CodeNotFound:     http.StatusNotFound,
	CodeUnretryable:  http.StatusUnprocessableEntity,
	CodeBusy:         http.StatusTooManyRequests,
	CodeTransient:    http.StatusServiceUnavailable,
}

// Error is a classified pipeline failure. Op names the step that failed
// ("resolver.extract"); Fields carry values the user message or the log needs.
type Error struct {
	Code    Code
	Message string
	Op      string
	Err     error
	Fields  map[string]any
	Stack   []Frame
}

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, New(CodeBusy, ""))
// holds for any busy rejection.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithField sets one field and returns e for chaining.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	e.Fields[key] = value
	return e
}

// HTTPStatus is the admin API status for the error's code.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// StackTrace renders Stack one frame per line.
func (e *Error) StackTrace() string {
	lines := make([]string, 0, len(e.Stack))
	for _, f := range e.Stack {
		lines = append(lines, fmt.Sprintf("  %s:%d %s", f.File, f.Line, f.Function))
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func build(code Code, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: cause, Stack: callers()}
}

func New(code Code, message string) *Error {
	return build(code, "", message, nil)
}

// Wrap attaches op and message to err. A code already present in err's chain
// is kept along with its fields; anything else becomes CodeInternal.
func Wrap(err error, op, message string) *Error {
	if err == nil {
		return nil
	}
	out := build(CodeInternal, op, message, err)
	if inner, ok := classified(err); ok {
		out.Code = inner.Code
	}
	out.Fields = inheritFields(err)
	return out
}

// WrapWithCode is Wrap with an explicit code. Fields of an inner error are
// still carried, so a size-limit reason survives reclassification.
func WrapWithCode(err error, code Code, op, message string) *Error {
	if err == nil {
		return nil
	}
	out := build(code, op, message, err)
	out.Fields = inheritFields(err)
	return out
}

// inheritFields copies the fields of the first classified error in err's
// chain, so WithField on the wrapper leaves the inner error untouched.
func inheritFields(err error) map[string]any {
	inner, ok := classified(err)
	if !ok || len(inner.Fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(inner.Fields))
	for k, v := range inner.Fields {
		out[k] = v
	}
	return out
}

func Internal(message string) *Error    { return New(CodeInternal, message) }
func Transient(message string) *Error   { return New(CodeTransient, message) }
func Unretryable(message string) *Error { return New(CodeUnretryable, message) }

func NotFound(url string) *Error {
	return New(CodeNotFound, "media not found").WithField("url", url)
}

func Unsupported(url string) *Error {
	return New(CodeUnsupported, "unsupported url").WithField("url", url)
}

// AuthRequired names the provider whose credential is missing.
func AuthRequired(provider string) *Error {
	return New(CodeAuthRequired, provider+" requires a valid credential").WithField("provider", provider)
}

// TooLarge is the size-limit failure. It is unretryable for the strategy that
// hit it; size and limit are kept so the user message can name the limit.
func TooLarge(size, limit int64) *Error {
	e := New(CodeUnretryable, fmt.Sprintf("file size %d exceeds limit %d", size, limit))
	e.Fields = map[string]any{"reason": ReasonTooLarge, "size": size, "limit": limit}
	return e
}

// Busy rejects a principal that already has a request in flight.
func Busy(principal string) *Error {
	return New(CodeBusy, "a request is already in progress").WithField("principal", principal)
}

func ValidationField(field, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

func classified(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// GetCode returns the code in err's chain, CodeInternal when there is none.
func GetCode(err error) Code {
	if e, ok := classified(err); ok {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int {
	if e, ok := classified(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func GetFields(err error) map[string]any {
	if e, ok := classified(err); ok {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool { return GetCode(err) == code }
func IsTransient(err error) bool       { return IsCode(err, CodeTransient) }

func IsTooLarge(err error) bool {
	return GetFields(err)["reason"] == ReasonTooLarge
}

// IsTerminal reports whether err ends the whole request regardless of the
// strategies left: the content is missing, private or unsupported.
func IsTerminal(err error) bool {
	switch GetCode(err) {
	case CodeNotFound, CodeUnsupported, CodeAuthRequired:
		return true
	}
	return false
}

const maxFrames = 10

// callers records the stack above the constructor, leaving out this package
// and the runtime.
func callers() []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	it := runtime.CallersFrames(pcs[:n])

	var out []Frame
	for len(out) < maxFrames {
		f, more := it.Next()
		if !strings.HasPrefix(f.Function, "runtime.") && !strings.HasSuffix(f.File, "pkg/errors/errors.go") {
			out = append(out, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return out
}

func As(err error, target any) bool { return errors.As(err, target) }
func Is(err, target error) bool     { return errors.Is(err, target) }
