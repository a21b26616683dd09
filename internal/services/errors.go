package services

import (
	"errors"
	"fmt"

	"retailpulse/internal/schema"
)

// Analytics service errors
var (
	// Upload errors
	ErrMissingTable = errors.New("required table not supplied")
	ErrInvalidTable = errors.New("table failed schema validation")
)

// MissingTableError names the entity whose upload was absent.
type MissingTableError struct {
	Entity schema.EntityType
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("%s table is required", e.Entity)
}

func (e *MissingTableError) Unwrap() error { return ErrMissingTable }

// TableValidationError carries the validation result of a rejected table.
type TableValidationError struct {
	Entity schema.EntityType
	Result schema.ValidationResult
}

func (e *TableValidationError) Error() string {
	return fmt.Sprintf("%s table rejected: %s", e.Entity, e.Result.Message)
}

func (e *TableValidationError) Unwrap() error { return ErrInvalidTable }
