package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// Kind is the semantic category of a failure. The set is closed: every
// *Error carries exactly one Kind and every Kind has exactly one HTTP status.
type Kind uint8

const (
	KindNotFound Kind = iota
	KindValidation
	KindConflict
	KindUnexpected
	KindBadRequest

	kindCount
)

// kindStatus is indexed by Kind. The two assertions below fail to compile
// unless it has exactly one entry per declared Kind.
var kindStatus = [...]int{
	KindNotFound:   http.StatusNotFound,
	KindValidation: http.StatusBadRequest,
	KindConflict:   http.StatusConflict,
	KindUnexpected: http.StatusInternalServerError,
	KindBadRequest: http.StatusBadRequest,
}

var (
	_ [len(kindStatus) - int(kindCount)]struct{}
	_ [int(kindCount) - len(kindStatus)]struct{}
)

var kindNames = [...]string{
	KindNotFound:   "not_found",
	KindValidation: "validation",
	KindConflict:   "conflict",
	KindUnexpected: "unexpected",
	KindBadRequest: "bad_request",
}

var _ [len(kindNames) - int(kindCount)]struct{}

// Kinds returns every declared Kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// StatusFor returns the HTTP status code bound to k.
// Values outside the declared set map to 500.
func StatusFor(k Kind) int {
	if k >= kindCount {
		return http.StatusInternalServerError
	}
	return kindStatus[k]
}

func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// UnexpectedMessage is the client-facing message of every Unexpected error.
const UnexpectedMessage = "There was an unexpected internal error"

// Error is a typed application failure. Message is written to be safe for
// API clients; Cause and Context are for server-side logs only.
//
// An Error is immutable once constructed. Context returns a copy.
type Error struct {
	kind    Kind
	message string
	cause   error
	context map[string]any
	detail  string
}

// Option configures an Error at construction time.
type Option func(*Error)

// WithCause attaches the underlying failure for diagnostic chaining.
func WithCause(err error) Option {
	return func(e *Error) { e.cause = err }
}

// WithField attaches one piece of structured context (offending id, payload,
// operation name) for logging.
func WithField(key string, value any) Option {
	return func(e *Error) {
		if e.context == nil {
			e.context = make(map[string]any)
		}
		e.context[key] = value
	}
}

// New builds an Error of the given kind.
func New(kind Kind, message string, opts ...Option) *Error {
	e := &Error{kind: kind, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// NotFound reports a missing resource. Maps to HTTP 404.
func NotFound(message string, opts ...Option) *Error {
	return New(KindNotFound, message, opts...)
}

// Validation reports input that failed validation rules. Maps to HTTP 400.
func Validation(message string, opts ...Option) *Error {
	return New(KindValidation, message, opts...)
}

// Conflict reports a state conflict with an existing resource. Maps to HTTP 409.
func Conflict(message string, opts ...Option) *Error {
	return New(KindConflict, message, opts...)
}

// BadRequest reports a request that could not be parsed. Maps to HTTP 400.
func BadRequest(message string, opts ...Option) *Error {
	return New(KindBadRequest, message, opts...)
}

// Unexpected wraps a non-domain failure raised while component was performing
// operation on data. The client only ever sees UnexpectedMessage; Detail
// carries the diagnostic line.
func Unexpected(component, operation string, data any, cause error) *Error {
	snapshot := snapshotOf(data)
	return &Error{
		kind:    KindUnexpected,
		message: UnexpectedMessage,
		cause:   cause,
		context: map[string]any{
			"component": component,
			"operation": operation,
			"data":      snapshot,
		},
		detail: fmt.Sprintf("<%s> had an unexpected internal error when performing the <%s> and the following data <%s>",
			component, operation, snapshot),
	}
}

// Wrap returns err unchanged when its chain already holds an *Error, and
// otherwise wraps it with Unexpected. A nil err stays nil.
func Wrap(err error, component, operation string, data any) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return Unexpected(component, operation, data, err)
}

func (e *Error) Kind() Kind { return e.kind }

// Message is the client-safe message.
func (e *Error) Message() string { return e.message }

// Status is StatusFor(e.Kind()).
func (e *Error) Status() int { return StatusFor(e.kind) }

func (e *Error) Cause() error { return e.cause }

// Context returns a copy of the structured context, or nil.
func (e *Error) Context() map[string]any {
	if e.context == nil {
		return nil
	}
	return maps.Clone(e.context)
}

// Detail is the diagnostic line of an Unexpected error; empty for other kinds.
func (e *Error) Detail() string { return e.detail }

func (e *Error) Error() string {
	msg := e.kind.String() + ": " + e.message
	if e.detail != "" {
		msg += ": " + e.detail
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// snapshotOf renders data as compact JSON, falling back to %+v for values
// encoding/json cannot handle.
func snapshotOf(data any) string {
	if data == nil {
		return ""
	}
	if b, err := json.Marshal(data); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%+v", data)
}
