package pledge

import (
	"errors"
	"fmt"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/store"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("pledge: not found")
	ErrInvalidInput  = errors.New("pledge: invalid input")
	ErrUnauthorized  = errors.New("pledge: unauthorized")
	ErrInvalidAmount = errors.New("pledge: invalid amount")

	// Manager errors
	ErrManagerNotFound = errors.New("pledge: manager not found")
	ErrProjectCanceled = errors.New("pledge: project is canceled")
	ErrInvalidTarget   = errors.New("pledge: invalid transfer target")

	// Note errors
	ErrNoteNotFound       = errors.New("pledge: note not found")
	ErrInsufficientAmount = errors.New("pledge: insufficient note amount")
	ErrNotOwner           = errors.New("pledge: caller does not own the note")
	ErrInvalidState       = errors.New("pledge: invalid payment state")
	ErrTimeLocked         = errors.New("pledge: note is time-locked by a pending proposal")

	// Vault errors
	ErrPaymentNotFound = errors.New("pledge: payment not found")
	ErrSinkFailed      = errors.New("pledge: vault sink rejected credit")

	// Store errors
	ErrConflict    = store.ErrConflict
	ErrStoreClosed = store.ErrClosed
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("pledge: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// PaymentError ties a settlement failure to the payment it concerns.
type PaymentError struct {
	PaymentID id.PaymentID
	Err       error
}

func (e PaymentError) Error() string {
	return fmt.Sprintf("pledge: payment %s: %v", e.PaymentID, e.Err)
}

func (e PaymentError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "pledge: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("pledge: %d errors occurred", len(e.Errors))
}

// Unwrap exposes every gathered error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrManagerNotFound) ||
		errors.Is(err, ErrNoteNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsAuthorizationError returns true if the caller was not allowed to act.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotOwner)
}

// IsRetryable returns true if the operation may succeed when retried
// unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeLocked) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrSinkFailed)
}
