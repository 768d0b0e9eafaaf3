package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure taxonomy surfaced to callers.
type Kind string

const (
	KindUnauthenticated   Kind = "UNAUTHENTICATED"
	KindNotAuthorized     Kind = "NOT_AUTHORIZED"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidArgument   Kind = "INVALID_ARGUMENT"
	KindInvalidState      Kind = "INVALID_STATE"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindAlreadyUnlocked   Kind = "ALREADY_UNLOCKED"
	KindUnlockRequired    Kind = "UNLOCK_REQUIRED"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindInternal          Kind = "INTERNAL"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind   `json:"kind"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Retryable  bool   `json:"retryable,omitempty"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// IsRetryable reports whether the caller layer may retry the operation.
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Retryable
}

// ---- Caller identity (AUTH) ----

func ErrUnauthenticated() *AppError {
	return New(KindUnauthenticated, "AUTH_001", "Missing or invalid caller identity", http.StatusUnauthorized)
}

func ErrNotAuthorized(message string) *AppError {
	return New(KindNotAuthorized, "AUTH_002", message, http.StatusForbidden)
}

// ---- Requests & quotes (REQ) ----

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "REQ_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidArgument(message string) *AppError {
	return New(KindInvalidArgument, "REQ_002", message, http.StatusBadRequest)
}

func ErrInvalidState(message string) *AppError {
	return New(KindInvalidState, "REQ_003", message, http.StatusConflict)
}

func ErrRequestNotOpen() *AppError {
	return New(KindInvalidState, "REQ_004", "Job request is no longer open for unlocking or quoting", http.StatusConflict)
}

func ErrDuplicateQuote() *AppError {
	return New(KindInvalidState, "REQ_005", "You already have a pending quote on this job", http.StatusConflict)
}

func ErrBodyTooLarge() *AppError {
	return New(KindInvalidArgument, "REQ_006", "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- Wallet (WAL) ----

func ErrInsufficientFunds() *AppError {
	return New(KindInsufficientFunds, "WAL_001", "Insufficient wallet balance - recharge to continue", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New(KindInvalidArgument, "WAL_002", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrAmountTooLarge(max int64) *AppError {
	return New(KindInvalidArgument, "WAL_002", fmt.Sprintf("Amount must not exceed %d", max), http.StatusBadRequest)
}

func ErrBalanceOverflow() *AppError {
	return New(KindInvalidArgument, "WAL_002", "Amount would exceed the maximum wallet balance", http.StatusBadRequest)
}

func ErrWalletNotFound() *AppError {
	return New(KindInvalidArgument, "WAL_003", "Wallet does not exist - recharge to create one", http.StatusBadRequest)
}

func ErrIdempotencyKeyReused() *AppError {
	return New(KindInvalidState, "WAL_004", "Idempotency-Key was already used for a different recharge", http.StatusConflict)
}

// ---- Marketplace gating (MKT) ----

func ErrAlreadyUnlocked() *AppError {
	return New(KindAlreadyUnlocked, "MKT_001", "You have already unlocked this job", http.StatusConflict)
}

func ErrUnlockRequired() *AppError {
	return New(KindUnlockRequired, "MKT_002", "Unlock this job before submitting a quote", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	e := New(KindRateLimited, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
	e.Retryable = true
	return e
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	e := Wrap(KindInternal, "SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
	e.Retryable = true
	return e
}

func ErrTimeout(err error) *AppError {
	e := Wrap(KindInternal, "SYS_003", "Operation timed out, please retry", http.StatusServiceUnavailable, err)
	e.Retryable = true
	return e
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a REQ_002-style validation error.
func Validation(message string) *AppError {
	return ErrInvalidArgument(message)
}
