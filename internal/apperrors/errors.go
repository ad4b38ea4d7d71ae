// Package apperrors provides the unified error taxonomy for the data plane.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a unique, stable identifier for a class of error.
type ErrorCode string

const (
	// Validation errors (1xxx) — surfaced to callers, never retried.
	ErrCodeEmptyMessage    ErrorCode = "VAL_1001"
	ErrCodeMessageTooLarge ErrorCode = "VAL_1002"
	ErrCodeTooManyFields   ErrorCode = "VAL_1003"
	ErrCodeBadFieldName    ErrorCode = "VAL_1004"
	ErrCodeBadTenantBind   ErrorCode = "VAL_1005"
	ErrCodeBadTimestamp    ErrorCode = "VAL_1006"
	ErrCodeBatchTooLarge   ErrorCode = "VAL_1007"

	// Backend transient errors (2xxx) — retried with bounded backoff.
	ErrCodeBackendTimeout    ErrorCode = "BE_2001"
	ErrCodeBackendConnReset  ErrorCode = "BE_2002"
	ErrCodeBackendRetriesMax ErrorCode = "BE_2003"

	// Backend permanent errors (3xxx) — recorded, not retried until rule mutation.
	ErrCodeSchemaMismatch ErrorCode = "BE_3001"
	ErrCodeSQLSyntax      ErrorCode = "BE_3002"

	// Rule compilation errors (4xxx) — surfaced on create/update, rule rejected.
	ErrCodeUnmappedField    ErrorCode = "RULE_4001"
	ErrCodeDisallowedIdent  ErrorCode = "RULE_4002"
	ErrCodeInvalidRegex     ErrorCode = "RULE_4003"
	ErrCodeMalformedDSL     ErrorCode = "RULE_4004"
	ErrCodeSigmaUnsupported ErrorCode = "RULE_4005"

	// Internal (5xxx).
	ErrCodeInternal ErrorCode = "SVC_5001"
)

// ServiceError is a structured error carrying a stable code and HTTP status.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a contextual key/value pair and returns the same error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New constructs a bare ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap constructs a ServiceError around an underlying cause.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Validation constructors — spec.md §4.2 field policing.

func EmptyMessage() *ServiceError {
	return New(ErrCodeEmptyMessage, "message is empty", http.StatusBadRequest)
}

func MessageTooLarge(length, max int) *ServiceError {
	return New(ErrCodeMessageTooLarge, "message exceeds max_message_length", http.StatusBadRequest).
		WithDetails("length", length).WithDetails("max", max)
}

func TooManyFields(count, max int) *ServiceError {
	return New(ErrCodeTooManyFields, "field count exceeds max_fields_count", http.StatusBadRequest).
		WithDetails("count", count).WithDetails("max", max)
}

func BadTimestamp(raw interface{}) *ServiceError {
	return New(ErrCodeBadTimestamp, "unparseable explicit timestamp", http.StatusBadRequest).
		WithDetails("raw", raw)
}

func BatchTooLarge(size, max int) *ServiceError {
	return New(ErrCodeBatchTooLarge, "batch exceeds configured size", http.StatusBadRequest).
		WithDetails("size", size).WithDetails("max", max)
}

// Backend constructors — spec.md §7 backend transient/permanent.

func BackendTimeout(operation string, err error) *ServiceError {
	return Wrap(ErrCodeBackendTimeout, "backend operation timed out", http.StatusGatewayTimeout, err).
		WithDetails("operation", operation)
}

func BackendRetriesExhausted(operation string, attempts int, err error) *ServiceError {
	return Wrap(ErrCodeBackendRetriesMax, "backend retries exhausted", http.StatusServiceUnavailable, err).
		WithDetails("operation", operation).WithDetails("attempts", attempts)
}

func SchemaMismatch(table string, err error) *ServiceError {
	return Wrap(ErrCodeSchemaMismatch, "schema mismatch", http.StatusInternalServerError, err).
		WithDetails("table", table)
}

// Rule compilation constructors — spec.md §4.4.

func UnmappedField(field string) *ServiceError {
	return New(ErrCodeUnmappedField, "identifier not mapped to a CIM field", http.StatusBadRequest).
		WithDetails("field", field)
}

func DisallowedIdentifier(field string) *ServiceError {
	return New(ErrCodeDisallowedIdent, "identifier is not a recognized CIM or custom field", http.StatusBadRequest).
		WithDetails("field", field)
}

func InvalidRegex(pattern string, err error) *ServiceError {
	return Wrap(ErrCodeInvalidRegex, "invalid regular expression", http.StatusBadRequest, err).
		WithDetails("pattern", pattern)
}

func SigmaUnsupported(reason string) *ServiceError {
	return New(ErrCodeSigmaUnsupported, "sigma rule uses an unsupported construct", http.StatusBadRequest).
		WithDetails("reason", reason)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// IsServiceError reports whether err carries a ServiceError in its chain.
func IsServiceError(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr)
}

// Code extracts the ErrorCode from an error chain, or "" if absent.
func Code(err error) ErrorCode {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}

// HTTPStatus extracts the HTTP status associated with an error, defaulting to 500.
func HTTPStatus(err error) int {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
