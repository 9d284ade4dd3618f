package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Account Errors (ACCOUNT_*)
	ErrorCodeAccountNotFound  ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrorCodeAccountSuspended ErrorCode = "ACCOUNT_SUSPENDED"
	ErrorCodeAccountClosed    ErrorCode = "ACCOUNT_CLOSED"

	// Ledger Errors (LEDGER_*)
	ErrorCodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	ErrorCodeWriteVerification   ErrorCode = "WRITE_VERIFICATION_FAILED"
	ErrorCodeDataIntegrity       ErrorCode = "DATA_INTEGRITY_VIOLATION"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Payment Provider Errors (PROVIDER_*)
	ErrorCodeProviderError    ErrorCode = "PAYMENT_PROVIDER_ERROR"
	ErrorCodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"
	ErrorCodePaymentNotFound  ErrorCode = "PAYMENT_NOT_FOUND"

	// Idempotency Errors (IDEMPOTENCY_*)
	ErrorCodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError      ErrorCode = "INTERNAL_DATABASE_ERROR"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeAccountNotFound ||
		code == ErrorCodePaymentNotFound
}

// IsAccountStatusError checks if an error is caused by a non-active account
func IsAccountStatusError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeAccountSuspended ||
		code == ErrorCodeAccountClosed
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField
}

// IsIntegrityError checks if an error indicates the ledger and the database disagree
func IsIntegrityError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeWriteVerification ||
		code == ErrorCodeDataIntegrity
}

// Structured error instances
var (
	ErrAccountNotFound  = NewDomainError(ErrorCodeAccountNotFound, "account not found")
	ErrAccountSuspended = NewDomainError(ErrorCodeAccountSuspended, "account is suspended")
	ErrAccountClosed    = NewDomainError(ErrorCodeAccountClosed, "account is closed")

	ErrInsufficientCredits = NewDomainError(ErrorCodeInsufficientCredits, "insufficient credits")
	ErrWriteVerification   = NewDomainError(ErrorCodeWriteVerification, "write verification failed")
	ErrDataIntegrity       = NewDomainError(ErrorCodeDataIntegrity, "database integrity error")

	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrProviderError    = NewDomainError(ErrorCodeProviderError, "payment provider error")
	ErrSignatureInvalid = NewDomainError(ErrorCodeSignatureInvalid, "webhook signature verification failed")
	ErrPaymentNotFound  = NewDomainError(ErrorCodePaymentNotFound, "payment not found")

	ErrIdempotencyConflict = NewDomainError(ErrorCodeIdempotencyConflict, "idempotency key conflict")

	ErrInternalError      = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError      = NewDomainError(ErrorCodeDatabaseError, "database error")
	ErrServiceUnavailable = NewDomainError(ErrorCodeServiceUnavailable, "service unavailable")
)
