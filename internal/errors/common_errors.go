package errors

import (
	"fmt"
)

// ErrorType classifies an AppError for HTTP mapping.
type ErrorType string

const (
	ErrTypeIngest    ErrorType = "INGEST"
	ErrTypeAnalytics ErrorType = "ANALYTICS"
	ErrTypeExport    ErrorType = "EXPORT"
	ErrTypeConfig    ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewIngestError wraps a failure to read an uploaded table.
func NewIngestError(entity string, cause error) *AppError {
	return NewAppError(ErrTypeIngest, fmt.Sprintf("failed to read %s file", entity), cause).
		WithContext("entity", entity)
}

// NewAnalyticsError wraps a computation fault. operation names the
// analytics operation that failed.
func NewAnalyticsError(operation string, cause error) *AppError {
	return NewAppError(ErrTypeAnalytics, fmt.Sprintf("%s failed", operation), cause).
		WithContext("operation", operation)
}

// NewExportError wraps a report write failure.
func NewExportError(format string, cause error) *AppError {
	return NewAppError(ErrTypeExport, fmt.Sprintf("failed to write %s report", format), cause).
		WithContext("format", format)
}

// NewConfigError wraps a failure to load or validate configuration.
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
