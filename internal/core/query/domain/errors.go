package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it.
type Kind uint8

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = iota
	// KindConfiguration marks missing or invalid connection settings.
	KindConfiguration
	// KindValidation marks a rejected call, raised before any I/O.
	KindValidation
	// KindExecution marks a driver failure while running a statement.
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by errors.Is against an *Error of the same kind.
var (
	// ErrConfiguration indicates missing or invalid connection settings.
	ErrConfiguration = errors.New("timetask: configuration error")

	// ErrValidation indicates a call rejected before any I/O.
	ErrValidation = errors.New("timetask: validation error")

	// ErrExecution indicates a backend failure during a terminal operation.
	ErrExecution = errors.New("timetask: execution error")
)

// Error is the error type returned by compilers and adapters.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "update".
	Op string
	// Backend is "mysql" or "mongo" when known.
	Backend string
	// Statement is the offending SQL text or pipeline, for execution errors.
	Statement string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Backend != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Backend, e.Op, e.Kind, msg)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrExecution:
		return e.Kind == KindExecution
	}
	return false
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(backend, format string, args ...any) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Op:      "connect",
		Backend: backend,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewValidationError creates a validation error for op.
func NewValidationError(op, format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewExecutionError wraps a driver failure together with the statement that
// caused it.
func NewExecutionError(backend, op, statement string, err error) *Error {
	return &Error{
		Kind:      KindExecution,
		Op:        op,
		Backend:   backend,
		Statement: statement,
		Err:       err,
	}
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsExecution checks if an error is an execution error.
func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}
