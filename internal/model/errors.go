package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	// ErrUpstream marks a failure of the model backend during primary draft
	// generation. It is the only failure class that aborts a turn.
	ErrUpstream = errors.New("upstream dependency failure")
)

// ValidationError describes an invalid field. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var validationErr ValidationError
	return errors.As(err, &validationErr) || errors.Is(err, ErrValidation)
}

// ValidateScopedSession enforces the scope/session pairing shared by memory
// items, alerts and tool settings: session rows need a session id, global rows
// must not carry one.
func ValidateScopedSession(scope Scope, sessionID *string) error {
	if !scope.Valid() {
		return NewValidationError("scope", "must be 'global' or 'session'")
	}
	if scope == ScopeSession && (sessionID == nil || *sessionID == "") {
		return NewValidationError("sessionId", "required for session scope")
	}
	if scope == ScopeGlobal && sessionID != nil && *sessionID != "" {
		return NewValidationError("sessionId", "must be empty for global scope")
	}
	return nil
}
