package errors

import (
	"errors"
	"fmt"
)

// Error types for classification of guardian failures

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeProcess       ErrorType = "process"
	ErrorTypeSpawn         ErrorType = "spawn"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypePermission    ErrorType = "permission"
	ErrorTypeIO            ErrorType = "io"
	ErrorTypeNoQuorum      ErrorType = "no_quorum"
	ErrorTypeResourceLimit ErrorType = "resource_limit"
	ErrorTypeEscalation    ErrorType = "escalation"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeCancelled     ErrorType = "cancelled"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Validation and lookup errors
func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

// Process supervision errors
func NewProcessError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcess, message, cause)
}

func NewSpawnError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeSpawn, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewResourceLimitError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeResourceLimit, message, cause)
}

func NewEscalationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeEscalation, message, cause)
}

// Integrity and storage errors
func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewNoQuorumError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNoQuorum, message, cause)
}

// System errors
func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

// Error checking helpers
func isErrorOfType(err error, errorType ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == errorType
}

func IsValidationError(err error) bool {
	return isErrorOfType(err, ErrorTypeValidation)
}

func IsNotFoundError(err error) bool {
	return isErrorOfType(err, ErrorTypeNotFound)
}

func IsConflictError(err error) bool {
	return isErrorOfType(err, ErrorTypeConflict)
}

func IsProcessError(err error) bool {
	return isErrorOfType(err, ErrorTypeProcess)
}

func IsSpawnError(err error) bool {
	return isErrorOfType(err, ErrorTypeSpawn)
}

func IsTimeoutError(err error) bool {
	return isErrorOfType(err, ErrorTypeTimeout)
}

func IsPermissionError(err error) bool {
	return isErrorOfType(err, ErrorTypePermission)
}

func IsIOError(err error) bool {
	return isErrorOfType(err, ErrorTypeIO)
}

func IsNoQuorumError(err error) bool {
	return isErrorOfType(err, ErrorTypeNoQuorum)
}

func IsResourceLimitError(err error) bool {
	return isErrorOfType(err, ErrorTypeResourceLimit)
}

func IsEscalationError(err error) bool {
	return isErrorOfType(err, ErrorTypeEscalation)
}

func IsInternalError(err error) bool {
	return isErrorOfType(err, ErrorTypeInternal)
}

func IsCancelledError(err error) bool {
	return isErrorOfType(err, ErrorTypeCancelled)
}

// Error aggregation for bulk operations (per-location repair results)
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
