package service

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned when an operation runs without a caller
	ErrAuthRequired = errors.New("authentication required")
	// ErrForbidden is returned when the caller does not own the resource
	ErrForbidden = errors.New("caller does not own this resource")

	ErrCampaignNotFound = errors.New("campaign not found")
	ErrReferralNotFound = errors.New("referral not found")
	ErrCodeNotFound     = errors.New("referral code not found")
	ErrBusinessNotFound = errors.New("business not found")

	ErrCodeAlreadyUsed       = errors.New("referral code already used")
	ErrAlreadyCompleted      = errors.New("referral already completed")
	ErrCampaignClosed        = errors.New("campaign is closed")
	ErrCampaignUsageExceeded = errors.New("campaign usage limit exceeded")
	ErrCodeExpired           = errors.New("referral code expired")
	ErrBelowMinSpend         = errors.New("order total below campaign minimum spend")
	ErrBusinessExists        = errors.New("business already registered")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinimum        = errors.New("amount below minimum withdrawal")

	// ErrCodeGenerationExhausted is returned when every generated code collided
	ErrCodeGenerationExhausted = errors.New("could not generate a unique referral code")
)

// ValidationError reports a malformed or out of range input field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ImmutableFieldError reports an attempt to change a frozen field
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("field %s cannot be changed", e.Field)
}

// IsNotFound reports whether err belongs to the not-found family
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrReferralNotFound) ||
		errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrBusinessNotFound)
}

// IsStateConflict reports whether err is a lifecycle or concurrency conflict.
// These are expected outcomes and are reported to users as such.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrCodeAlreadyUsed) ||
		errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrCampaignClosed) ||
		errors.Is(err, ErrCampaignUsageExceeded) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrBelowMinSpend) ||
		errors.Is(err, ErrBusinessExists) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsValidation reports whether err is a *ValidationError or *ImmutableFieldError
func IsValidation(err error) bool {
	var ve *ValidationError
	var ie *ImmutableFieldError
	return errors.As(err, &ve) || errors.As(err, &ie) || errors.Is(err, ErrBelowMinimum)
}
