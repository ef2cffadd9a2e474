package database

import (
	"strings"

	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/lib/pq"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Serialization failure (40001) / deadlock detected (40P01): the whole
	// transaction was rolled back, the caller decides whether to retry.
	case "40001", "40P01":
		return errors.StockConflict("transaction aborted by a concurrent update, retry the operation")

	// Check constraint violation (23514): quantity bounds on batches and items
	case "23514":
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	switch {
	case strings.Contains(pqErr.Constraint, "medicines_name"):
		return "a medicine with this name already exists"
	case strings.Contains(pqErr.Constraint, "batch_number"):
		return "a batch with this number already exists for this medicine"
	default:
		return "a record with these values already exists"
	}
}
