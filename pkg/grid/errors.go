package grid

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrValidation marks bad client input. Never retried automatically.
	ErrValidation = errors.New("validation failed")

	// ErrAdmissionDenied marks a write attempted during the cooldown window.
	ErrAdmissionDenied = errors.New("admission denied")

	// ErrStoreUnavailable marks an I/O failure talking to the cell store or
	// the rate-limit store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrProvider marks a failed or timed out metadata lookup.
	ErrProvider = errors.New("metadata provider error")

	// ErrCredentialUnavailable marks a provider call made before a bearer
	// token could be obtained.
	ErrCredentialUnavailable = errors.New("provider credential unavailable")
)

// ValidationError describes rejected client input. It wraps ErrValidation.
// Reason is safe to show to the client.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validationf returns a *ValidationError with a formatted reason.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// AdmissionDeniedError is returned when a client is still cooling down.
// It wraps ErrAdmissionDenied.
type AdmissionDeniedError struct {
	Remaining time.Duration
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("You must wait approximately %d more minutes.", e.Minutes())
}

func (e *AdmissionDeniedError) Unwrap() error {
	return ErrAdmissionDenied
}

// Minutes returns the remaining wait rounded up to whole minutes.
func (e *AdmissionDeniedError) Minutes() int {
	return int(math.Ceil(e.Remaining.Minutes()))
}

// Seconds returns the remaining wait rounded up to whole seconds.
func (e *AdmissionDeniedError) Seconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}
