// Package apperr defines the error taxonomy shared by the archive, prompt and transport layers.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrDatabase      = errors.New("database error")
)

// ValidationError reports malformed or missing input with per-field detail.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Message: "invalid input", Fields: map[string]string{field: msg}}
}

// FromValidation converts an ozzo-validation result into a ValidationError.
// Non-validation errors (internal rule failures) are returned unchanged.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		out := &ValidationError{Message: "invalid input", Fields: make(map[string]string, len(verrs))}
		for field, ferr := range verrs {
			out.Fields[field] = ferr.Error()
		}
		return out
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	return &ValidationError{Message: err.Error()}
}

// RateLimitError is returned when a token bucket cannot cover the requested cost.
type RateLimitError struct {
	Remaining  int
	Capacity   int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %d of %d tokens remaining, retry after %s", e.Remaining, e.Capacity, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// DBErrorKind classifies a persistence failure by its underlying constraint.
type DBErrorKind string

const (
	DBUniqueViolation DBErrorKind = "unique_violation"
	DBValueTooLong    DBErrorKind = "value_too_long"
	DBForeignKey      DBErrorKind = "foreign_key"
	DBNotFound        DBErrorKind = "not_found"
	DBBusy            DBErrorKind = "busy"
	DBGeneric         DBErrorKind = "generic"
)

// DatabaseError wraps a persistence-layer failure.
type DatabaseError struct {
	Kind DBErrorKind
	Op   string
	Err  error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Is matches ErrDatabase for every kind and ErrNotFound for the not_found kind.
func (e *DatabaseError) Is(target error) bool {
	switch target {
	case ErrDatabase:
		return true
	case ErrNotFound:
		return e.Kind == DBNotFound
	}
	return false
}

// IsBusy reports whether err is a retryable lock/busy database failure.
func IsBusy(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Kind == DBBusy
}
