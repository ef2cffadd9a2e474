package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("resource conflict")
	ErrInternal   = errors.New("internal server error")
	ErrValidation = errors.New("validation error")

	// Dispensing errors. Inventory conditions are non-fatal and reported to
	// the operator; integrity violations are fatal and halt the operation.
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrAllExpired             = errors.New("all batches expired")
	ErrOverDispense           = errors.New("quantity exceeds remaining prescribed amount")
	ErrAlreadyDispensed       = errors.New("item already fully dispensed")
	ErrNotADummyItem          = errors.New("item does not reference a placeholder medicine")
	ErrDummyNotDispensable    = errors.New("placeholder medicine has no physical stock")
	ErrInsufficientBatchStock = errors.New("insufficient batch stock")
	ErrStockConflict          = errors.New("stock changed concurrently")
	ErrIntegrity              = errors.New("data integrity violation")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Retryable  bool              `json:"retryable,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Dispensing error constructors

// InsufficientStock reports that non-expired stock cannot cover the
// requested quantity. Non-fatal: the caller records the condition.
func InsufficientStock(medicineName string, requested, available int) *AppError {
	return &AppError{
		Err:     ErrInsufficientStock,
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("insufficient stock of %s: requested %d, available %d", medicineName, requested, available),
		Details: map[string]string{
			"requested": fmt.Sprintf("%d", requested),
			"available": fmt.Sprintf("%d", available),
		},
		StatusCode: http.StatusConflict,
	}
}

// AllExpired reports that the only remaining stock of a medicine is expired.
// Distinguished from InsufficientStock so operators see why units on the
// shelf cannot be dispensed.
func AllExpired(medicineName string) *AppError {
	return &AppError{
		Err:        ErrAllExpired,
		Code:       "ALL_BATCHES_EXPIRED",
		Message:    fmt.Sprintf("all batches of %s are expired", medicineName),
		StatusCode: http.StatusConflict,
	}
}

// OverDispense rejects a request for more than the remaining prescribed amount.
func OverDispense(requested, remaining int) *AppError {
	return &AppError{
		Err:     ErrOverDispense,
		Code:    "OVER_DISPENSE",
		Message: fmt.Sprintf("requested %d exceeds remaining prescribed amount %d", requested, remaining),
		Details: map[string]string{
			"requested": fmt.Sprintf("%d", requested),
			"remaining": fmt.Sprintf("%d", remaining),
		},
		StatusCode: http.StatusBadRequest,
	}
}

// AlreadyDispensed rejects dispensing against a fully dispensed item.
func AlreadyDispensed(itemID string) *AppError {
	return &AppError{
		Err:        ErrAlreadyDispensed,
		Code:       "ALREADY_DISPENSED",
		Message:    fmt.Sprintf("prescription item %s is already fully dispensed", itemID),
		StatusCode: http.StatusConflict,
	}
}

// NotADummyItem rejects substitution on an item that already references a
// real medicine.
func NotADummyItem(itemID string) *AppError {
	return &AppError{
		Err:        ErrNotADummyItem,
		Code:       "NOT_A_DUMMY_ITEM",
		Message:    fmt.Sprintf("prescription item %s does not reference a placeholder medicine", itemID),
		StatusCode: http.StatusBadRequest,
	}
}

// DummyNotDispensable rejects dispensing an item that still references a
// placeholder medicine; it must be substituted first.
func DummyNotDispensable(itemID string) *AppError {
	return &AppError{
		Err:        ErrDummyNotDispensable,
		Code:       "DUMMY_NOT_DISPENSABLE",
		Message:    fmt.Sprintf("prescription item %s references a placeholder medicine; substitute a real medicine first", itemID),
		StatusCode: http.StatusConflict,
	}
}

// InsufficientBatchStock reports a deduction larger than a batch holds.
func InsufficientBatchStock(batchID string, requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientBatchStock,
		Code:       "INSUFFICIENT_BATCH_STOCK",
		Message:    fmt.Sprintf("batch %s holds %d available units, cannot deduct %d", batchID, available, requested),
		StatusCode: http.StatusConflict,
	}
}

// StockConflict reports a lost race on batch stock. The whole transaction
// has been rolled back; the caller may retry.
func StockConflict(message string) *AppError {
	return &AppError{
		Err:        ErrStockConflict,
		Code:       "STOCK_CONFLICT",
		Message:    message,
		Retryable:  true,
		StatusCode: http.StatusConflict,
	}
}

// Integrity reports a broken invariant (aggregate drift, a prescription item
// with both or neither medicine reference). Fatal: never coerced.
func Integrity(message string) *AppError {
	return &AppError{
		Err:        ErrIntegrity,
		Code:       "INTEGRITY_VIOLATION",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsRetryable reports whether err is a transient conflict the caller may retry.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
