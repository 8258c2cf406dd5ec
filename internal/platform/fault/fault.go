// Package fault defines the error taxonomy shared by the denial engine.
// Services return these types so callers can distinguish validation
// failures, illegal workflow transitions, conflicts, missing entities,
// and persistence failures without string matching.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports one or more violated data-model invariants.
// It is raised before any mutation is attempted.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// Validation builds a ValidationError from a non-empty violation list.
func Validation(violations ...string) error {
	return &ValidationError{Violations: violations}
}

// InvalidTransitionError reports a workflow event that is not legal from
// the current state. The appeal is never mutated when this is returned.
type InvalidTransitionError struct {
	Current string
	Event   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed from state %q", e.Event, e.Current)
}

// InvalidTransition builds an InvalidTransitionError.
func InvalidTransition(current, event string) error {
	return &InvalidTransitionError{Current: current, Event: event}
}

// ConflictError reports a concurrent-modification or duplicate-active-appeal
// conflict. Callers are expected to re-read current state before retrying;
// the engine never retries internally.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

// Conflict builds a ConflictError with a formatted reason.
func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent referenced entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// RepositoryError wraps an opaque failure from the persistence boundary.
// It is propagated unchanged and never retried by the engine.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Repository wraps err as a RepositoryError for the named operation.
// A nil err returns nil.
func Repository(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsRepository reports whether err is a RepositoryError.
func IsRepository(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}
