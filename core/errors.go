package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// Kind classifies domain errors so outer layers can map them (eg. to HTTP status codes).
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
	KindAlreadySettled
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindInvalidInput:
		return "InvalidInput"
	case KindAlreadySettled:
		return "AlreadySettled"
	case KindForbidden:
		return "Forbidden"
	default:
		return "Unknown"
	}
}

// Error is a tagged domain error.
type Error struct {
	Kind    Kind
	Message string
}

func (err *Error) Error() string { return err.Message }

// Is lets sentinel errors compare by kind and message.
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == err.Kind && t.Message == err.Message
}

func NewNotFoundError(msg string) error       { return &Error{Kind: KindNotFound, Message: msg} }
func NewConflictError(msg string) error       { return &Error{Kind: KindConflict, Message: msg} }
func NewInvalidInputError(msg string) error   { return &Error{Kind: KindInvalidInput, Message: msg} }
func NewAlreadySettledError(msg string) error { return &Error{Kind: KindAlreadySettled, Message: msg} }
func NewForbiddenError(msg string) error      { return &Error{Kind: KindForbidden, Message: msg} }

// ErrorKind returns the Kind of the first *Error found in err's chain.
func ErrorKind(err error) Kind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return KindUnknown
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
