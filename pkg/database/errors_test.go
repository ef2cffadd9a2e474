package database

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/pharmacy-backend/pkg/errors"
)

func TestMapPQError(t *testing.T) {
	t.Run("serialization failure is a retryable conflict", func(t *testing.T) {
		appErr := MapPQError(&pq.Error{Code: "40001"})
		require.NotNil(t, appErr)
		assert.ErrorIs(t, appErr, errors.ErrStockConflict)
		assert.True(t, appErr.Retryable)
	})

	t.Run("deadlock is a retryable conflict", func(t *testing.T) {
		appErr := MapPQError(&pq.Error{Code: "40P01"})
		require.NotNil(t, appErr)
		assert.ErrorIs(t, appErr, errors.ErrStockConflict)
	})

	t.Run("check violation is a bad request", func(t *testing.T) {
		appErr := MapPQError(&pq.Error{Code: "23514", Constraint: "medicine_batches_available_quantity_check"})
		require.NotNil(t, appErr)
		assert.ErrorIs(t, appErr, errors.ErrBadRequest)
	})

	t.Run("duplicate medicine name", func(t *testing.T) {
		appErr := MapPQError(&pq.Error{Code: "23505", Constraint: "medicines_name_key"})
		require.NotNil(t, appErr)
		assert.ErrorIs(t, appErr, errors.ErrConflict)
		assert.Contains(t, appErr.Message, "medicine with this name")
	})

	t.Run("duplicate batch number", func(t *testing.T) {
		appErr := MapPQError(&pq.Error{Code: "23505", Constraint: "medicine_batches_medicine_id_batch_number_key"})
		require.NotNil(t, appErr)
		assert.Contains(t, appErr.Message, "batch with this number")
	})

	t.Run("non-pq errors pass through", func(t *testing.T) {
		assert.Nil(t, MapPQError(fmt.Errorf("plain error")))
		assert.Nil(t, MapPQError(nil))
	})
}
