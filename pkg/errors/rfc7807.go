// Package errors provides domain error kinds and RFC 7807 Problem Details responses
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func NewFieldError(kind, field, reason string) FieldError {
	return FieldError{Kind: kind, Field: field, Message: reason}
}

// StatusCode represents an HTTP status code error
type StatusCode int

// Error implements error
func (status StatusCode) Error() string {
	return http.StatusText(int(status))
}

func Status(code int) *Error {
	return Wrap(StatusCode(code)).Reason(http.StatusText(code))
}

var (
	Invalid       *Error = Status(http.StatusBadRequest)
	Unauthorized  *Error = Status(http.StatusUnauthorized)
	Forbidden     *Error = Status(http.StatusForbidden)
	NotFound      *Error = Status(http.StatusNotFound)
	Conflict      *Error = Status(http.StatusConflict)
	Unavailable   *Error = Status(http.StatusServiceUnavailable)
	Unprocessable *Error = Status(http.StatusUnprocessableEntity)
)

// Domain error kinds. Services return copies made with Explain so that
// errors.Is keeps matching on Kind.
var (
	InsufficientFunds      = Unprocessable.Reason("InsufficientFunds")
	PriceUnavailable       = Unavailable.Reason("PriceUnavailable")
	InvalidAmount          = Invalid.Reason("InvalidAmount")
	InvalidStateTransition = Conflict.Reason("InvalidStateTransition")
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields used when there's validation error for a field.
	Fields []FieldError `json:"fields,omitempty"`

	trace []byte
	cause error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: "Unknown", Message: message}
}

func Wrap(err error) *Error {
	return &Error{cause: err}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		if _, ok := e.cause.(StatusCode); !ok {
			str += fmt.Sprintf(" (%s)", e.cause)
		}
	}
	if len(e.trace) > 0 {
		str = str + fmt.Sprintf("\n\nTrace: %s", string(e.trace))
	}
	return str
}

// Reason returns a copy of the error with kind set to given value
func (e *Error) Reason(kind string) *Error {
	err := *e
	err.Kind = kind
	return &err
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap returns a copy of the error with its cause replaced. The HTTP status
// carried by the original cause is kept when the new cause has none.
func (e *Error) Wrap(cause error) *Error {
	err := *e
	if status := e.StatusCode(); status != 0 {
		var sc StatusCode
		if !As(cause, &sc) {
			cause = &statusCause{status: StatusCode(status), err: cause}
		}
	}
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// Trace sets the error stack trace
func (e *Error) Trace() *Error {
	stack := make([]byte, 2048)
	n := runtime.Stack(stack, false)
	e.trace = stack[:n]
	return e
}

// WithField returns a copy of error with a field error appended.
func (e *Error) WithField(kind, field, message string) *Error {
	newError := *e
	newError.Fields = append(append([]FieldError(nil), e.Fields...), NewFieldError(kind, field, message))
	return &newError
}

// StatusCode returns the HTTP status carried in the cause chain, or 0.
func (e *Error) StatusCode() int {
	var sc StatusCode
	if As(e.cause, &sc) {
		return int(sc)
	}
	return 0
}

// Is implements the needed interface for errors.Is
// It checks kind for equality
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	if e.cause != nil {
		return Is(e.cause, target)
	}
	return false
}

// statusCause keeps a StatusCode reachable when an Error is re-wrapped around
// an infrastructure error.
type statusCause struct {
	status StatusCode
	err    error
}

func (s *statusCause) Error() string { return s.err.Error() }

func (s *statusCause) Unwrap() []error { return []error{s.status, s.err} }

// Problem type URIs
const (
	TypeValidationError        = "https://api.talabin.ir/problems/validation-error"
	TypeUnauthorized           = "https://api.talabin.ir/problems/unauthorized"
	TypeForbidden              = "https://api.talabin.ir/problems/forbidden"
	TypeNotFound               = "https://api.talabin.ir/problems/not-found"
	TypeConflict               = "https://api.talabin.ir/problems/conflict"
	TypeInternalError          = "https://api.talabin.ir/problems/internal-error"
	TypeInsufficientFunds      = "https://api.talabin.ir/problems/insufficient-funds"
	TypePriceUnavailable       = "https://api.talabin.ir/problems/price-unavailable"
	TypeInvalidAmount          = "https://api.talabin.ir/problems/invalid-amount"
	TypeInvalidStateTransition = "https://api.talabin.ir/problems/invalid-state-transition"
	TypeRateLimited            = "https://api.talabin.ir/problems/rate-limited"
	TypeUnavailable            = "https://api.talabin.ir/problems/unavailable"
)

// Problem titles
const (
	TitleValidationError        = "Validation Error"
	TitleUnauthorized           = "Unauthorized"
	TitleForbidden              = "Forbidden"
	TitleNotFound               = "Not Found"
	TitleConflict               = "Conflict"
	TitleInternalError          = "Internal Server Error"
	TitleInsufficientFunds      = "Insufficient Funds"
	TitlePriceUnavailable       = "Price Unavailable"
	TitleInvalidAmount          = "Invalid Amount"
	TitleInvalidStateTransition = "Invalid State Transition"
	TitleRateLimited            = "Too Many Requests"
	TitleUnavailable            = "Service Unavailable"
)

// ValidationError represents a validation error for RFC 7807
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Errors   []ValidationError      `json:"errors,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithValidationErrors adds validation errors to the problem details
func (p *ProblemDetails) WithValidationErrors(errors []ValidationError) *ProblemDetails {
	p.Errors = errors
	return p
}

// WithExtra adds extra fields to the problem details (they will be serialized at the top level)
func (p *ProblemDetails) WithExtra(key string, value interface{}) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]interface{})
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON implements custom JSON marshaling to include extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if p.TraceID != "" {
		result["trace_id"] = p.TraceID
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}

	for k, v := range p.Extra {
		result[k] = v
	}

	return json.Marshal(result)
}

// NewProblemDetails creates a generic problem details with all fields
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// NewValidationError creates a validation error problem
func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

// NewUnauthorizedError creates an unauthorized error problem
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnauthorized, TitleUnauthorized, http.StatusUnauthorized, detail, instance)
}

// NewForbiddenError creates a forbidden error problem
func NewForbiddenError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeForbidden, TitleForbidden, http.StatusForbidden, detail, instance)
}

// NewNotFoundError creates a not found error problem
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

// NewInternalError creates an internal server error problem
func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// ToProblem converts any error returned by a service into problem details.
// Errors that carry no domain kind are reported as internal errors and their
// message is not exposed.
func ToProblem(err error, instance string) *ProblemDetails {
	var e *Error
	if !As(err, &e) {
		return NewInternalError("an unexpected error occurred", instance)
	}

	detail := e.Message
	if detail == "" {
		detail = e.Kind
	}

	var p *ProblemDetails
	switch {
	case Is(e, InsufficientFunds):
		p = NewProblemDetails(TypeInsufficientFunds, TitleInsufficientFunds, http.StatusUnprocessableEntity, detail, instance)
	case Is(e, PriceUnavailable):
		p = NewProblemDetails(TypePriceUnavailable, TitlePriceUnavailable, http.StatusServiceUnavailable, detail, instance)
	case Is(e, InvalidAmount):
		p = NewProblemDetails(TypeInvalidAmount, TitleInvalidAmount, http.StatusBadRequest, detail, instance)
	case Is(e, InvalidStateTransition):
		p = NewProblemDetails(TypeInvalidStateTransition, TitleInvalidStateTransition, http.StatusConflict, detail, instance)
	default:
		switch e.StatusCode() {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			p = NewValidationError(detail, instance)
			p.Status = e.StatusCode()
		case http.StatusUnauthorized:
			p = NewUnauthorizedError(detail, instance)
		case http.StatusForbidden:
			p = NewForbiddenError(detail, instance)
		case http.StatusNotFound:
			p = NewNotFoundError(detail, instance)
		case http.StatusConflict:
			p = NewProblemDetails(TypeConflict, TitleConflict, http.StatusConflict, detail, instance)
		case http.StatusTooManyRequests:
			p = NewProblemDetails(TypeRateLimited, TitleRateLimited, http.StatusTooManyRequests, detail, instance)
		case http.StatusServiceUnavailable:
			p = NewProblemDetails(TypeUnavailable, TitleUnavailable, http.StatusServiceUnavailable, detail, instance)
		default:
			return NewInternalError("an unexpected error occurred", instance)
		}
	}

	for _, f := range e.Fields {
		p.Errors = append(p.Errors, ValidationError{Field: f.Field, Message: f.Message, Code: f.Kind})
	}
	return p
}
