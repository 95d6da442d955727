// Package apperr holds the error taxonomy shared by every component:
// malformed input, missing references and writes rejected by a lock.
package apperr

import (
	"errors"
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError is a permanent rejection: retrying the same request cannot
// succeed because the target is in a state that forbids it.
type ConflictError struct {
	Entity  string
	ID      string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message)
}

func Validation(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func NotFound(entity string, id fmt.Stringer) error {
	return &NotFoundError{Entity: entity, ID: stringOf(id)}
}

func Conflict(entity string, id fmt.Stringer, msg string) error {
	return &ConflictError{Entity: entity, ID: stringOf(id), Message: msg}
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func stringOf(id fmt.Stringer) string {
	if id == nil {
		return ""
	}
	return id.String()
}
