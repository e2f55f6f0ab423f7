package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound    = errors.New("patient not found")
	ErrNoCurrentNorm      = errors.New("no current norm prescription for patient")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMissingServingSize = errors.New("piece unit requires a nominal serving size")
	ErrZeroWeight         = errors.New("total weight must be greater than zero")
	ErrGenerationLocked   = errors.New("menu generation already running for patient")
	ErrAlreadyResolved    = errors.New("critical fact already resolved")
)

// NotFoundError names the missing record so callers can surface the identifier
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error for the given resource and ID
func NewNotFoundError(resource string, id uuid.UUID) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// InvalidInput wraps ErrInvalidInput with a description of the offending field
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// GenerationAbortedError names the menu date at which a generation run stopped.
// Nothing of the run is persisted.
type GenerationAbortedError struct {
	Date time.Time
	Err  error
}

func (e *GenerationAbortedError) Error() string {
	return fmt.Sprintf("menu generation aborted at %s: %v", e.Date.Format("2006-01-02"), e.Err)
}

func (e *GenerationAbortedError) Unwrap() error {
	return e.Err
}
