package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidDate      ErrorCode = "INVALID_DATE"
	ErrCodeInvalidQuantity  ErrorCode = "INVALID_QUANTITY"

	ErrCodeUnknownProduct ErrorCode = "UNKNOWN_PRODUCT"
	ErrCodeEmptyCart      ErrorCode = "EMPTY_CART"

	ErrCodeFileTooLarge        ErrorCode = "FILE_TOO_LARGE"
	ErrCodeUnsupportedType     ErrorCode = "UNSUPPORTED_TYPE"
	ErrCodeProofNotFound       ErrorCode = "PROOF_NOT_FOUND"
	ErrCodeAlreadyReviewed     ErrorCode = "ALREADY_REVIEWED"
	ErrCodeReviewNotesRequired ErrorCode = "REVIEW_NOTES_REQUIRED"

	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	ErrCodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"

	ErrCodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeOrderNotPending     ErrorCode = "ORDER_NOT_PENDING"
	ErrCodeIllegalTransition   ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodePixNotFound         ErrorCode = "PIX_NOT_FOUND"
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderNotFound    ErrorCode = "PROVIDER_PAYMENT_NOT_FOUND"
	ErrCodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"
	ErrCodeCartTooLarge        ErrorCode = "CART_TOO_LARGE"

	ErrCodeUnauthorizedAccess ErrorCode = "UNAUTHORIZED_ACCESS"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so that sentinels survive WithCause/WithDetails copies.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy carrying cause; sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewExternalError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

var (
	ErrUnknownProduct  = NewValidationError("unknown or unavailable product", ErrCodeUnknownProduct)
	ErrEmptyCart       = NewValidationError("cart is empty", ErrCodeEmptyCart)
	ErrInvalidQuantity = NewValidationError("quantity must be between 1 and 99", ErrCodeInvalidQuantity)

	ErrFileTooLarge        = NewValidationError("file exceeds the maximum allowed size", ErrCodeFileTooLarge)
	ErrUnsupportedType     = NewValidationError("file type is not accepted", ErrCodeUnsupportedType)
	ErrProofNotFound       = NewNotFoundError("payment proof not found", ErrCodeProofNotFound)
	ErrAlreadyReviewed     = NewConflictError("payment proof was already reviewed", ErrCodeAlreadyReviewed)
	ErrReviewNotesRequired = NewValidationError("notes are required when rejecting a proof", ErrCodeReviewNotesRequired)

	ErrInvalidSignature = NewValidationError("webhook signature verification failed", ErrCodeInvalidSignature)
	ErrMalformedPayload = NewValidationError("malformed payload", ErrCodeMalformedPayload)
	ErrChecksumMismatch = NewValidationError("payload checksum mismatch", ErrCodeChecksumMismatch)

	ErrOrderNotFound       = NewNotFoundError("order not found", ErrCodeOrderNotFound)
	ErrOrderNotPending     = NewConflictError("order is not pending", ErrCodeOrderNotPending)
	ErrIllegalTransition   = NewConflictError("illegal order status transition", ErrCodeIllegalTransition)
	ErrPixNotFound         = NewNotFoundError("pix transaction not found", ErrCodePixNotFound)
	ErrProviderUnavailable = NewExternalError("payment provider unavailable", ErrCodeProviderUnavailable)
	ErrProviderNotFound    = NewNotFoundError("payment not found at provider", ErrCodeProviderNotFound)
	ErrCartTooLarge        = NewValidationError("cart has too many items for one checkout", ErrCodeCartTooLarge)

	ErrUnauthorizedAccess = NewForbiddenError("unauthorized access", ErrCodeUnauthorizedAccess)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
