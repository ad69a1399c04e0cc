// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrBotNotFound      = errors.New("bot not found")
	ErrBotAlreadyExists = errors.New("bot already exists")
	ErrBotNotRunning    = errors.New("bot not running")
	ErrOrderRejected    = errors.New("order rejected")
	ErrConfigInvalid    = errors.New("invalid configuration")
)

// ExecutionError represents an error from the execution collaborator.
type ExecutionError struct {
	Symbol string
	Action string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error [%s] %s: %v", e.Symbol, e.Action, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(symbol, action string, err error) *ExecutionError {
	return &ExecutionError{
		Symbol: symbol,
		Action: action,
		Err:    err,
	}
}

// StateError represents a state-machine contract violation. It is fatal to
// the single operation but must never crash the bot or engine process.
type StateError struct {
	Component string
	Operation string
	Err       error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error [%s] %s: %v", e.Component, e.Operation, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// NewStateError creates a new StateError.
func NewStateError(component, operation string, err error) *StateError {
	return &StateError{
		Component: component,
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
