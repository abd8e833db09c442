// Package errors defines the typed error taxonomy shared by the launch pipeline
// and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies an error class.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeAllocationExhausted Code = "ALLOCATION_EXHAUSTED"
	CodeAccountOccupied     Code = "ACCOUNT_OCCUPIED"
	CodeSimulation          Code = "SIMULATION_FAILED"
	CodeRelayTransport      Code = "RELAY_TRANSPORT"
	CodeCheckpointExpired   Code = "CHECKPOINT_EXPIRED"
	CodeUnconfirmed         Code = "UNCONFIRMED"
	CodeRPC                 Code = "RPC_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInternal            Code = "INTERNAL"
)

// ServiceError is a classified error carrying its HTTP mapping.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any ServiceError with the same code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails attaches a key/value detail and returns the receiver.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Recoverable reports whether the pipeline may retry after this error.
func (e *ServiceError) Recoverable() bool {
	switch e.Code {
	case CodeRelayTransport, CodeCheckpointExpired, CodeRPC:
		return true
	default:
		return false
	}
}

func newError(code Code, status int, msg string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: msg, HTTPStatus: status, Err: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation          = &ServiceError{Code: CodeValidation}
	ErrAllocationExhausted = &ServiceError{Code: CodeAllocationExhausted}
	ErrAccountOccupied     = &ServiceError{Code: CodeAccountOccupied}
	ErrSimulation          = &ServiceError{Code: CodeSimulation}
	ErrRelayTransport      = &ServiceError{Code: CodeRelayTransport}
	ErrCheckpointExpired   = &ServiceError{Code: CodeCheckpointExpired}
	ErrUnconfirmed         = &ServiceError{Code: CodeUnconfirmed}
	ErrRPC                 = &ServiceError{Code: CodeRPC}
	ErrNotFound            = &ServiceError{Code: CodeNotFound}
)

// =============================================================================
// Constructors
// =============================================================================

// Validation reports malformed or over-limit input. Never retried.
func Validation(format string, args ...interface{}) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// InvalidFormat reports a field that failed to parse.
func InvalidFormat(field, reason string) *ServiceError {
	return Validation("%s: %s", field, reason).WithDetails("field", field)
}

// AllocationExhausted reports that no vacant address set was found.
func AllocationExhausted(attempts int) *ServiceError {
	return newError(CodeAllocationExhausted, http.StatusInternalServerError,
		fmt.Sprintf("no unused asset accounts found after %d attempts", attempts), nil).
		WithDetails("attempts", attempts)
}

// AccountOccupied reports that an allocated address gained on-ledger data
// between allocation and signing.
func AccountOccupied(address string) *ServiceError {
	return newError(CodeAccountOccupied, http.StatusConflict,
		"allocated account is no longer vacant: "+address, nil).
		WithDetails("address", address)
}

// Simulation reports a dry-run rejection.
func Simulation(reason string, logs []string) *ServiceError {
	e := newError(CodeSimulation, http.StatusInternalServerError, "transaction simulation failed: "+reason, nil)
	if len(logs) > 0 {
		e.WithDetails("logs", logs)
	}
	return e
}

// RelayTransport reports a failure talking to the priority relay.
func RelayTransport(msg string, err error) *ServiceError {
	return newError(CodeRelayTransport, http.StatusBadGateway, msg, err)
}

// CheckpointExpired reports that a transaction's blockhash aged out.
func CheckpointExpired(msg string, err error) *ServiceError {
	return newError(CodeCheckpointExpired, http.StatusGatewayTimeout, msg, err)
}

// Unconfirmed reports that every submission path was exhausted.
func Unconfirmed(msg string, err error) *ServiceError {
	return newError(CodeUnconfirmed, http.StatusInternalServerError, msg, err)
}

// RPC reports a ledger RPC transport or protocol failure.
func RPC(msg string, err error) *ServiceError {
	return newError(CodeRPC, http.StatusBadGateway, msg, err)
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(msg string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, msg, nil)
}

// InvalidToken wraps a bearer token parse failure.
func InvalidToken(err error) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, "invalid token", err)
}

// RateLimitExceeded reports that a caller exceeded its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window), nil)
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found: %s", resource, id), nil)
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, msg, err)
}

// =============================================================================
// Helpers
// =============================================================================

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus maps any error to a response status.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil && se.HTTPStatus != 0 {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsRecoverable reports whether err is classified as retryable.
func IsRecoverable(err error) bool {
	if se := GetServiceError(err); se != nil {
		return se.Recoverable()
	}
	return false
}

// Is forwards to the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As forwards to the standard library.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// New forwards to the standard library.
func New(text string) error { return stderrors.New(text) }
