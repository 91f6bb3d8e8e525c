// Package apperr defines the clinical error taxonomy shared by every domain
// service: validation failures, lifecycle-state violations, expired
// instances, optimistic-lock conflicts, insufficient scoring data, finalized
// document mutations, and unknown references. Handlers translate these into
// HTTP status codes with HTTPStatus; services wrap them with %w so errors.As
// works across layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports malformed input or missing required fields.
type ValidationError struct {
	Msg    string
	Fields []string // names of the missing/invalid fields, if known
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.Fields, ", "))
}

// NewValidation creates a ValidationError with a formatted message.
func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// MissingFields creates a ValidationError naming the empty required fields.
func MissingFields(fields ...string) *ValidationError {
	return &ValidationError{Msg: "required fields are empty", Fields: fields}
}

// StateError reports an operation that is invalid for the entity's current
// lifecycle state. The state is left unchanged when this is returned.
type StateError struct {
	Op      string
	Current string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s in state %q", e.Op, e.Current)
}

// NewState creates a StateError for op attempted in state current.
func NewState(op, current string) *StateError {
	return &StateError{Op: op, Current: current}
}

// ExpiredError reports a write against an instance past its expiry.
type ExpiredError struct {
	ID string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("assessment %s has expired", e.ID)
}

// ConflictError reports an optimistic-lock mismatch: the entity was modified
// since it was last read. Callers re-fetch and retry.
type ConflictError struct {
	Entity  string
	ID      string
	Version int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently (stale version %d)", e.Entity, e.ID, e.Version)
}

// InsufficientDataError reports that too many item responses are missing for
// a mean or weighted aggregation to be clinically meaningful.
type InsufficientDataError struct {
	Subscale        string
	MissingFraction float64
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("subscale %q: %.0f%% of items missing, cannot score", e.Subscale, e.MissingFraction*100)
}

// AlreadyFinalizedError reports a mutation attempt on a finalized
// consultation document.
type AlreadyFinalizedError struct {
	ID string
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("consultation %s is finalized and cannot be modified", e.ID)
}

// NotFoundError reports an unknown reference.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFound creates a NotFoundError.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// HTTPStatus maps a taxonomy error to the HTTP status the handlers return.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		se *StateError
		ee *ExpiredError
		ce *ConflictError
		ie *InsufficientDataError
		fe *AlreadyFinalizedError
		nf *NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &se), errors.As(err, &ce), errors.As(err, &fe):
		return http.StatusConflict
	case errors.As(err, &ee):
		return http.StatusGone
	case errors.As(err, &ie):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
