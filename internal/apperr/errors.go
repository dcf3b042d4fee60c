// Package apperr holds the error taxonomy shared by the marketplace
// components and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorCode is a machine-readable error code with its HTTP status.
type ErrorCode struct {
	Code    string
	Status  int
	Message string // default message
}

var (
	// Validation
	CodeInvalidInput  = ErrorCode{Code: "INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
	CodeInvalidSeller = ErrorCode{Code: "INVALID_SELLER", Status: http.StatusForbidden, Message: "invalid seller"}
	CodeInvalidBuyer  = ErrorCode{Code: "INVALID_BUYER", Status: http.StatusForbidden, Message: "invalid buyer"}
	CodeUnauthorized  = ErrorCode{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Message: "unauthorized"}

	// Preconditions
	CodeSellerNotPayable = ErrorCode{Code: "SELLER_NOT_PAYABLE", Status: http.StatusConflict, Message: "seller cannot receive payments"}
	CodeNotOnboarded     = ErrorCode{Code: "NOT_ONBOARDED", Status: http.StatusNotFound, Message: "seller has not onboarded"}

	// External dependencies
	CodeOnboardingFailed     = ErrorCode{Code: "ONBOARDING_FAILED", Status: http.StatusBadGateway, Message: "onboarding failed"}
	CodePaymentProviderError = ErrorCode{Code: "PAYMENT_PROVIDER_ERROR", Status: http.StatusBadGateway, Message: "payment provider error"}
	CodePersistenceError     = ErrorCode{Code: "PERSISTENCE_ERROR", Status: http.StatusInternalServerError, Message: "persistence error"}

	// Webhook
	CodeInvalidSignature = ErrorCode{Code: "INVALID_SIGNATURE", Status: http.StatusBadRequest, Message: "invalid signature"}

	// Not found
	CodeOrderNotFound   = ErrorCode{Code: "ORDER_NOT_FOUND", Status: http.StatusNotFound, Message: "order not found"}
	CodeAccountNotFound = ErrorCode{Code: "ACCOUNT_NOT_FOUND", Status: http.StatusNotFound, Message: "account not found"}
	CodeNotFound        = ErrorCode{Code: "NOT_FOUND", Status: http.StatusNotFound, Message: "record not found"}

	// SQL layer
	CodeDuplicate = ErrorCode{Code: "DUPLICATE", Status: http.StatusConflict, Message: "duplicate record"}
	CodeConflict  = ErrorCode{Code: "CONFLICT", Status: http.StatusConflict, Message: "conflict"}

	CodeInternal = ErrorCode{Code: "INTERNAL", Status: http.StatusInternalServerError, Message: "internal server error"}
)

type AppError struct {
	Code    ErrorCode
	Message string // public-facing message
	Cause   error  // internal cause (wrapped)
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code ErrorCode, msg string, cause error) error {
	if msg == "" {
		msg = code.Message
	}
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// As extracts the AppError carried by err, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code.Code == code.Code
}

// FromSQL maps pgx errors onto codes. ErrNoRows becomes notFound.
func FromSQL(err error, notFound ErrorCode) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return New(notFound, "", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return New(CodePersistenceError, "", err)
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return New(CodeDuplicate, "duplicate value violates unique constraint", err)
	case "23503": // foreign_key_violation
		return New(CodeConflict, "foreign key violation", err)
	case "22P02", "22001", "22003", "23514":
		return New(CodeInvalidInput, pgErr.Message, err)
	default:
		return New(CodePersistenceError, "", err)
	}
}
