package errorutil

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmptyQueue
	KindJSONParse
	KindConfigurationParse
	KindTestNotFound
	KindFileOperation
	KindInternalTestExecution
	KindTestResultNotUploaded
)

func (k Kind) String() string {
	switch k {
	case KindEmptyQueue:
		return "EmptyQueueError"
	case KindJSONParse:
		return "JSONParseError"
	case KindConfigurationParse:
		return "ConfigurationParseError"
	case KindTestNotFound:
		return "TestNotFound"
	case KindFileOperation:
		return "FileOperationError"
	case KindInternalTestExecution:
		return "InternalTestExecutionError"
	case KindTestResultNotUploaded:
		return "TestResultNotUploaded"
	default:
		return "Error"
	}
}

// Sentinels usable with errors.Is.
var (
	ErrEmptyQueue            = &Error{Kind: KindEmptyQueue}
	ErrJSONParse             = &Error{Kind: KindJSONParse}
	ErrConfigurationParse    = &Error{Kind: KindConfigurationParse}
	ErrTestNotFound          = &Error{Kind: KindTestNotFound}
	ErrFileOperation         = &Error{Kind: KindFileOperation}
	ErrInternalTestExecution = &Error{Kind: KindInternalTestExecution}
	ErrTestResultNotUploaded = &Error{Kind: KindTestResultNotUploaded}
)

// Error is a classified failure. Detail holds diagnostic payloads such as a raw
// queue message body or the runner's stdout.
type Error struct {
	Kind   Kind
	Msg    string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithDetail attaches a diagnostic payload.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// DetailOf returns the diagnostic payload of the first classified error in the chain.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}

// HandleError logs err at error level with its kind and, when present, its
// diagnostic detail.
func HandleError(log zerolog.Logger, err error, msg string) {
	if err == nil {
		return
	}
	event := log.Error().Err(err).Str("kind", KindOf(err).String())
	if detail := DetailOf(err); detail != "" {
		event = event.Str("detail", detail)
	}
	event.Msg(msg)
}

// WrapError wraps an error with additional context
func WrapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
