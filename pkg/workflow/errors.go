package workflow

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an operation failure for the caller's retry and
// reporting logic.
type ErrorClass string

const (
	// ErrorClassInput indicates a bad operation request.
	// Examples: missing proposed-configuration file, malformed JSON.
	ErrorClassInput ErrorClass = "input"

	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: network timeouts, temporary endpoint unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassRemote indicates the remote side rejected or failed the
	// request. The remote error message is attached.
	ErrorClassRemote ErrorClass = "remote"

	// ErrorClassGuard indicates a policy guard blocked the delta.
	ErrorClassGuard ErrorClass = "guard"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, artifact directory not writable.
	ErrorClassPermanent ErrorClass = "permanent"
)

// OpError is a classified operation error with step context.
type OpError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Step is the workflow step that failed, if applicable.
	Step string `json:"step,omitempty"`

	// Resource is the object key involved, if applicable.
	Resource string `json:"resource,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] step %s: %s%s", e.Class, e.Step, e.Message, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

func (e *OpError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Unwrap returns the underlying error for error chain inspection.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is matches on class so callers can test errors.Is(err, &OpError{Class: ...}).
func (e *OpError) Is(target error) bool {
	t, ok := target.(*OpError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithStep attaches the failing step name.
func (e *OpError) WithStep(step string) *OpError {
	e.Step = step
	return e
}

// WithResource attaches the object key involved.
func (e *OpError) WithResource(resource string) *OpError {
	e.Resource = resource
	return e
}

// NewInputError creates an input-classified error.
func NewInputError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassInput, Message: message, Err: err}
}

// NewTransientError creates a transient-classified error.
func NewTransientError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewRemoteError creates a remote-classified error.
func NewRemoteError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassRemote, Message: message, Err: err}
}

// NewGuardError creates a guard-classified error.
func NewGuardError(message string) *OpError {
	return &OpError{Class: ErrorClassGuard, Message: message}
}

// NewPermanentError creates a permanent-classified error.
func NewPermanentError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// ClassOf returns the class of err if it is an OpError anywhere in its chain,
// or ErrorClassPermanent otherwise.
func ClassOf(err error) ErrorClass {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Class
	}
	return ErrorClassPermanent
}
