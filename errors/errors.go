// Package errors provides the standardized error taxonomy of the kgraph
// repositories: sentinel errors for the recoverable and fatal conditions the
// read pipeline distinguishes, plus helpers for consistent wrapping and
// classification.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary errors (store unavailable etc.).
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or state.
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that indicate a
	// programming error or a data-integrity issue upstream.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Access control errors
	ErrForbidden = errors.New("forbidden")

	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Data integrity errors: more than one result where at most one was
	// expected. Never retried; indicates an upstream problem.
	ErrAmbiguous = errors.New("ambiguous result")

	// Id resolution errors
	ErrAmbiguousIdentifier = errors.New("identifier resolves to multiple instances")

	// Input errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidData     = errors.New("invalid data format")

	// Store errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCollectionMissing  = errors.New("collection does not exist")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsForbidden checks whether an error denotes a failed permission check.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsNotFound checks whether an error denotes an absent document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAmbiguous checks whether an error denotes an unexpected multi-result.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrAmbiguous) || errors.Is(err, ErrAmbiguousIdentifier)
}

// IsInvalid checks whether an error is due to invalid input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// IsFatal checks whether an error should stop processing entirely.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}
	return errors.Is(err, ErrAmbiguous) || errors.Is(err, ErrInvalidConfig)
}

// Classify returns the error class for an error.
func Classify(err error) ErrorClass {
	switch {
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// newClassified creates a new classified error.
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context. A nil err produces an
// invalid-argument error carrying the action text, for guard clauses.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		err = ErrInvalidArgument
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Forbidden builds a permission failure for an operation on an instance.
func Forbidden(component, method, detail string) error {
	wrapped := fmt.Errorf("%s.%s: %s: %w", component, method, detail, ErrForbidden)
	return newClassified(ErrorInvalid, wrapped, component, method, wrapped.Error())
}

// Ambiguous builds a data-integrity failure for an unexpected multi-result.
func Ambiguous(component, method, detail string) error {
	wrapped := fmt.Errorf("%s.%s: %s: %w", component, method, detail, ErrAmbiguous)
	return newClassified(ErrorFatal, wrapped, component, method, wrapped.Error())
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
