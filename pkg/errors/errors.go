package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a typed error code.
type ErrorCode string

const (
	// ErrorCodeInternal represents an internal server error.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeNotFound represents a resource not found error.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeBadRequest represents a bad request error.
	ErrorCodeBadRequest ErrorCode = "BAD_REQUEST"
	// ErrorCodeValidation represents a validation error.
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeConfiguration is raised at startup when required settings are missing.
	ErrorCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrorCodeTransfer is raised when an upload round trip fails.
	ErrorCodeTransfer ErrorCode = "TRANSFER_ERROR"
	// ErrorCodeListing is raised when a listing page cannot be fetched.
	ErrorCodeListing ErrorCode = "LISTING_ERROR"
	// ErrorCodeCancelled is raised when the caller cancelled an operation.
	ErrorCodeCancelled ErrorCode = "CANCELLED"
	// ErrorCodeServiceUnavailable represents a service unavailable error.
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeTooManyRequests is returned when a client exceeds the request rate.
	ErrorCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	// ErrorCodePayloadTooLarge is returned when a request body exceeds the upload limit.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
)

// StatusClientClosedRequest is the non-standard status used when the client went away
// before the response was produced.
const StatusClientClosedRequest = 499

// AppError represents an application error with code, message, and HTTP status.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Err        error
	Details    map[string]interface{}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// NewAppErrorWithErr creates a new application error with an underlying error.
func NewAppErrorWithErr(code ErrorCode, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithHTTPStatus overrides the HTTP status reported for the error.
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// ErrorResponse represents the JSON error response format.
type ErrorResponse struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToErrorResponse converts an AppError to an ErrorResponse for JSON serialization.
func (e *AppError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// ToHTTPStatus maps an error code to HTTP status code.
func ToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrorCodeBadRequest, ErrorCodeValidation:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeTransfer, ErrorCodeListing:
		return http.StatusBadGateway
	case ErrorCodeCancelled:
		return StatusClientClosedRequest
	case ErrorCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrorCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// FromError converts a standard error to an AppError.
// An AppError anywhere in the chain is returned as-is; a bare context error becomes a
// cancellation; anything else is wrapped as an internal error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError("operation cancelled", err)
	}

	return NewAppErrorWithErr(
		ErrorCodeInternal,
		"An internal error occurred",
		http.StatusInternalServerError,
		err,
	)
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsCancelled reports whether err is a cancellation outcome rather than a failure.
func IsCancelled(err error) bool {
	return HasCode(err, ErrorCodeCancelled)
}

// Common error constructors

// NewBadRequestError creates a bad request error.
func NewBadRequestError(message string) *AppError {
	return NewAppError(ErrorCodeBadRequest, message, http.StatusBadRequest)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrorCodeNotFound, message, http.StatusNotFound)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternal, message, http.StatusInternalServerError)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorCodeValidation, message, http.StatusBadRequest)
}

// NewServiceUnavailableError creates a service unavailable error.
func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrorCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// NewConfigurationError reports a missing or invalid startup setting.
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorCodeConfiguration, message, http.StatusInternalServerError)
}

// NewTransferError wraps a failed upload round trip.
func NewTransferError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeTransfer, message, http.StatusBadGateway, err)
}

// NewListingError wraps a failed page fetch.
func NewListingError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeListing, message, http.StatusBadGateway, err)
}

// NewCancelledError reports that the caller's context ended the operation.
func NewCancelledError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeCancelled, message, StatusClientClosedRequest, err)
}
