// Package errors provides standardized error handling for socialgate
// components. It defines the gateway's error taxonomy (authentication,
// not-found, validation, integrity, transient), standard error variables,
// and helper functions for consistent wrapping and classification.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies errors for propagation and presentation purposes.
type Kind int

const (
	// KindTransient represents temporary errors that may be retried
	KindTransient Kind = iota
	// KindAuthentication represents invalid or expired credentials.
	// Operation-fatal on the request path, never partial.
	KindAuthentication
	// KindNotFound represents a key with no backing entity.
	// Local to that key; never fails sibling keys.
	KindNotFound
	// KindValidation represents a domain rule violation (duplicate
	// username, malformed email, bad password length)
	KindValidation
	// KindIntegrity represents a partially applied multi-step write,
	// e.g. a removal cascade that completed only one of its steps
	KindIntegrity
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// SessionExpiredMessage is the only authentication message callers ever see.
const SessionExpiredMessage = "Your session expired. Sign in again."

// Standard error variables for common conditions
var (
	// Authentication errors
	ErrSessionExpired = errors.New("session expired")
	ErrMissingSecret  = errors.New("signing secret not configured")

	// Entity errors
	ErrNotFound      = errors.New("not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username is already taken")
	ErrEmailTaken    = errors.New("email is already taken")

	// Integrity errors
	ErrCascadeIncomplete = errors.New("removal cascade partially applied")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")
)

// ClassifiedError wraps an error with its classification. UserMessage, when
// set, is the domain-facing text surfaced to callers with all internal
// wrapping stripped.
type ClassifiedError struct {
	Kind        Kind
	Err         error
	UserMessage string
	Component   string
	Operation   string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Err != nil {
		return ce.Err.Error()
	}
	return ce.UserMessage
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// newClassified creates a new classified error.
// Internal helper - use the Wrap* constructors instead.
func newClassified(kind Kind, err error, component, method, userMessage string) *ClassifiedError {
	return &ClassifiedError{
		Kind:        kind,
		Err:         err,
		UserMessage: userMessage,
		Component:   component,
		Operation:   method,
	}
}

// WrapAuthentication wraps an error as an authentication failure. The user
// message is always the fixed session-expired text; verification internals
// stay inside the wrapped error and are never shown to callers.
func WrapAuthentication(err error, component, method string) error {
	if err == nil {
		err = ErrSessionExpired
	}
	wrapped := Wrap(err, component, method, "credential verification")
	return newClassified(KindAuthentication, wrapped, component, method, SessionExpiredMessage)
}

// WrapNotFound wraps an error as a per-key not-found outcome
func WrapNotFound(err error, component, method, userMessage string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, "lookup")
	return newClassified(KindNotFound, wrapped, component, method, userMessage)
}

// WrapValidation wraps an error as a validation failure carrying the
// human-readable domain message
func WrapValidation(err error, component, method, userMessage string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, "validation")
	return newClassified(KindValidation, wrapped, component, method, userMessage)
}

// WrapIntegrity wraps an error as a data-integrity failure
func WrapIntegrity(err error, component, method, userMessage string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, "integrity check")
	return newClassified(KindIntegrity, wrapped, component, method, userMessage)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return newClassified(KindTransient, wrapped, component, method, "")
}

// IsAuthentication checks if an error is an authentication failure
func IsAuthentication(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind == KindAuthentication
	}
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrMissingSecret)
}

// IsNotFound checks if an error is a per-key not-found outcome
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind == KindNotFound
	}
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUserNotFound)
}

// IsValidation checks if an error is a validation failure
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind == KindValidation
	}
	return errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken)
}

// IsIntegrity checks if an error is a data-integrity failure
func IsIntegrity(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind == KindIntegrity
	}
	return errors.Is(err, ErrCascadeIncomplete)
}

// Classify returns the error kind for an error
func Classify(err error) Kind {
	switch {
	case IsAuthentication(err):
		return KindAuthentication
	case IsNotFound(err):
		return KindNotFound
	case IsValidation(err):
		return KindValidation
	case IsIntegrity(err):
		return KindIntegrity
	default:
		return KindTransient
	}
}

// UserMessage returns the caller-facing message for an error: the classified
// user message when one was attached, otherwise the raw error text. Internal
// "component.method: action failed:" wrapping never leaks through this path.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) && ce.UserMessage != "" {
		return ce.UserMessage
	}
	return err.Error()
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers do not need both this package and stdlib errors.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }
