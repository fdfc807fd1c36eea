package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeConfig            = "CONFIG_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeGatewayRequest    = "GATEWAY_REQUEST_ERROR"
	ErrCodeAuthenticity      = "AUTHENTICITY_ERROR"
	ErrCodeRecordNotFound    = "RECORD_NOT_FOUND"
	ErrCodePersistence       = "PERSISTENCE_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
)

// NewConfigError signals a gateway that is absent or marked inactive.
// Fatal to the request, never retried.
func NewConfigError(provider string) *DomainError {
	return &DomainError{
		Code:    ErrCodeConfig,
		Message: fmt.Sprintf("payment gateway %s is not configured or inactive", provider),
	}
}

func NewValidationError(msg string) *DomainError {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewGatewayRequestError wraps a transport or 5xx failure from a provider.
// Retryable by the caller with backoff.
func NewGatewayRequestError(provider string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeGatewayRequest,
		Message: fmt.Sprintf("gateway %s request failed", provider),
		Err:     err,
	}
}

func NewAuthenticityError(provider string) *DomainError {
	return &DomainError{
		Code:    ErrCodeAuthenticity,
		Message: fmt.Sprintf("callback from %s failed authenticity verification", provider),
	}
}

func NewRecordNotFoundError(ref string) *DomainError {
	return &DomainError{
		Code:    ErrCodeRecordNotFound,
		Message: fmt.Sprintf("payment record %s not found", ref),
	}
}

func NewPersistenceError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodePersistence,
		Message: "database write failed",
		Err:     err,
	}
}

func NewInvalidTransitionError(from, to PaymentStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
