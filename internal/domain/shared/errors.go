// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. DomainError.Kind holds one of these so callers match with errors.Is.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrStateTransition = errors.New("invalid state transition")
	ErrPrecondition    = errors.New("precondition failed")

	// ErrConcurrentModification marks a lost race on a locked row; the
	// whole unit of work can be retried.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnknownStrategy is returned by the calculator and evaluator registries.
	ErrUnknownStrategy = errors.New("unknown strategy")

	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError is an error raised by an aggregate, repository or service,
// tagged with where it happened and what kind it is.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches both the kind and anything in the wrapped chain.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError attaches a cause to a domain error.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NotFound builds a not-found error naming the entity and its id.
func NotFound(domain, entity, id string) *DomainError {
	return NewDomainError(domain, "Find", ErrNotFound, fmt.Sprintf("%s %s not found", entity, id))
}

// InvalidTransitionError is returned when a state machine is asked to take
// an edge that is not in its transition table.
type InvalidTransitionError struct {
	From       string
	To         string
	EntityType string
	EntityID   string
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("cannot transition %s %s from %q to %q", e.EntityType, e.EntityID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches ErrStateTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrStateTransition
}

// Precondition codes for business-rule failures.
const (
	CodeCourseNotPublished    = "course_not_published"
	CodeAlreadyEnrolled       = "already_enrolled"
	CodeEnrollmentNotActive   = "enrollment_not_active"
	CodePathNotPublished      = "path_not_published"
	CodeAlreadyEnrolledInPath = "already_enrolled_in_path"
	CodePathEnrollmentClosed  = "path_enrollment_not_active"
)

// PreconditionError reports a violated business precondition with the
// identifiers needed to act on it.
type PreconditionError struct {
	Code    string
	Message string
	Context map[string]string
}

func (e *PreconditionError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Context[k])
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// Is matches ErrPrecondition.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// NewPrecondition builds a PreconditionError. kv is a flat list of context key/value pairs.
func NewPrecondition(code, message string, kv ...string) *PreconditionError {
	ctx := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		ctx[kv[i]] = kv[i+1]
	}
	return &PreconditionError{Code: code, Message: message, Context: ctx}
}

// HasPreconditionCode reports whether err is a PreconditionError with the given code.
func HasPreconditionCode(err error, code string) bool {
	var p *PreconditionError
	return errors.As(err, &p) && p.Code == code
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsStateTransition(err error) bool {
	return errors.Is(err, ErrStateTransition)
}

// IsValidation reports malformed input. Listeners never retry these.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable reports transient failures worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
