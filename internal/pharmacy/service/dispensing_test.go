package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
)

func TestDispenseItem_FefoAcrossBatches(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	soon := env.addBatch(med.ID, "BN-SOON", 4, 5, time.Now().UTC())
	later := env.addBatch(med.ID, "BN-LATER", 10, 30, time.Now().UTC())
	item := env.addItem(med.ID, 6, 0, repository.StatusPending)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 6, nil)
	require.NoError(t, err)

	// Earliest expiry exhausted first, remainder from the later batch.
	require.Len(t, result.Allocations, 2)
	assert.Equal(t, soon.ID, result.Allocations[0].BatchID)
	assert.Equal(t, 4, result.Allocations[0].Quantity)
	assert.Equal(t, later.ID, result.Allocations[1].BatchID)
	assert.Equal(t, 2, result.Allocations[1].Quantity)

	assert.Equal(t, 0, env.state.batches[soon.ID].AvailableQuantity)
	assert.Equal(t, 8, env.state.batches[later.ID].AvailableQuantity)
	assert.Equal(t, 8, result.NewAggregate)

	assert.Equal(t, repository.StatusDispensed, result.Item.Status)
	assert.Equal(t, 6, result.Item.QuantityDispensed)
	assert.NotNil(t, result.Item.DispensedDate)

	stored := env.state.items[item.ID]
	assert.Equal(t, repository.StatusDispensed, stored.Status)
	assert.Equal(t, 6, stored.QuantityDispensed)

	// One medicine-level movement, one dispensing row per batch drawn.
	require.Len(t, env.state.movements, 1)
	assert.Equal(t, repository.MovementDispense, env.state.movements[0].MovementType)
	assert.Equal(t, 6, env.state.movements[0].Quantity)
	require.NotNil(t, env.state.movements[0].ReferenceItemID)
	assert.Equal(t, item.ID, *env.state.movements[0].ReferenceItemID)
	assert.Len(t, env.state.dispensings, 2)
}

func TestDispenseItem_PartialDispense(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Ibuprofen 400mg", 5)
	env.addBatch(med.ID, "BN-1", 50, 60, time.Now().UTC())
	item := env.addItem(med.ID, 10, 0, repository.StatusPending)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 4, nil)
	require.NoError(t, err)

	assert.Equal(t, repository.StatusPartial, result.Item.Status)
	assert.Equal(t, 4, result.Item.QuantityDispensed)
	assert.Equal(t, 6, result.Item.Remaining())
}

func TestDispenseItem_ZeroQuantityMeansRemaining(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Cetirizine 10mg", 5)
	env.addBatch(med.ID, "BN-1", 50, 60, time.Now().UTC())
	item := env.addItem(med.ID, 10, 3, repository.StatusPartial)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 10, result.Item.QuantityDispensed)
	assert.Equal(t, repository.StatusDispensed, result.Item.Status)

	// Only the remaining 7 left the shelf.
	require.Len(t, env.state.movements, 1)
	assert.Equal(t, 7, env.state.movements[0].Quantity)
}

func TestDispenseItem_TieBreakOnReceiptOrder(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Amoxicillin 250mg", 5)
	expiry := 30
	older := env.addBatch(med.ID, "BN-OLD", 5, expiry, time.Now().UTC().Add(-48*time.Hour))
	newer := env.addBatch(med.ID, "BN-NEW", 5, expiry, time.Now().UTC())
	// Same expiry date for both.
	env.state.batches[newer.ID].ExpiryDate = env.state.batches[older.ID].ExpiryDate
	item := env.addItem(med.ID, 3, 0, repository.StatusPending)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 3, nil)
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, older.ID, result.Allocations[0].BatchID)
}

func TestDispenseItem_SkipsExpiredBatches(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Aspirin 100mg", 5)
	env.addBatch(med.ID, "BN-EXPIRED", 100, -1, time.Now().UTC().Add(-720*time.Hour))
	fresh := env.addBatch(med.ID, "BN-FRESH", 10, 30, time.Now().UTC())
	item := env.addItem(med.ID, 5, 0, repository.StatusPending)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 5, nil)
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, fresh.ID, result.Allocations[0].BatchID)
	// The expired units never count toward the aggregate.
	assert.Equal(t, 5, result.NewAggregate)
}

func TestDispenseItem_OverDispenseRejected(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	batch := env.addBatch(med.ID, "BN-1", 50, 30, time.Now().UTC())
	item := env.addItem(med.ID, 10, 8, repository.StatusPartial)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 5, nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, errors.ErrOverDispense)

	// Nothing changed.
	assert.Equal(t, 50, env.state.batches[batch.ID].AvailableQuantity)
	assert.Equal(t, 8, env.state.items[item.ID].QuantityDispensed)
	assert.Empty(t, env.state.movements)
}

func TestDispenseItem_AlreadyDispensed(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	env.addBatch(med.ID, "BN-1", 50, 30, time.Now().UTC())
	item := env.addItem(med.ID, 10, 10, repository.StatusDispensed)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 1, nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, errors.ErrAlreadyDispensed)
}

func TestDispenseItem_PlaceholderNotDispensable(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	dummy := &repository.DummyMedicine{ID: "dummy-1", Name: "Rare Drug"}
	env.state.dummies[dummy.ID] = dummy
	item := env.addDummyItem(dummy.ID, 5)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 5, nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, errors.ErrDummyNotDispensable)
	assert.Equal(t, repository.StatusPending, env.state.items[item.ID].Status)
}

func TestDispenseItem_InsufficientStockMarksOutOfStock(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	env.addBatch(med.ID, "BN-1", 3, 30, time.Now().UTC())
	item := env.addItem(med.ID, 10, 0, repository.StatusPending)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 10, nil)
	assert.ErrorIs(t, err, errors.ErrInsufficientStock)

	// The OUT_OF_STOCK transition commits even though the dispense failed.
	require.NotNil(t, result)
	assert.Equal(t, repository.StatusOutOfStock, result.Item.Status)
	assert.Equal(t, repository.StatusOutOfStock, env.state.items[item.ID].Status)

	// No stock moved, no ledger entries.
	assert.Equal(t, 3, sumAvailable(env, med.ID))
	assert.Empty(t, env.state.movements)
	assert.Empty(t, env.state.dispensings)
}

func TestDispenseItem_AllExpired(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	env.addBatch(med.ID, "BN-EXPIRED", 20, -1, time.Now().UTC().Add(-720*time.Hour))
	item := env.addItem(med.ID, 5, 0, repository.StatusPending)

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 5, nil)
	assert.ErrorIs(t, err, errors.ErrAllExpired)

	require.NotNil(t, result)
	assert.Equal(t, repository.StatusOutOfStock, env.state.items[item.ID].Status)
}

func TestDispenseItem_ConflictRollsBackEverything(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	first := env.addBatch(med.ID, "BN-1", 4, 5, time.Now().UTC())
	second := env.addBatch(med.ID, "BN-2", 10, 30, time.Now().UTC())
	item := env.addItem(med.ID, 6, 0, repository.StatusPending)

	// The second deduction loses the race.
	env.state.failDeductBatchID = second.ID

	result, err := env.dispensing.DispenseItem(ctx, item.ID, 6, nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, errors.ErrStockConflict)
	assert.True(t, errors.IsRetryable(err))

	// The first deduction and all ledger writes rolled back with it.
	assert.Equal(t, 4, env.state.batches[first.ID].AvailableQuantity)
	assert.Equal(t, 10, env.state.batches[second.ID].AvailableQuantity)
	assert.Equal(t, 0, env.state.items[item.ID].QuantityDispensed)
	assert.Equal(t, repository.StatusPending, env.state.items[item.ID].Status)
	assert.Empty(t, env.state.movements)
	assert.Empty(t, env.state.dispensings)
}

func TestReceiveBatch_CreatesBatchAndLedgerEntry(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)

	result, err := env.dispensing.ReceiveBatch(ctx, ReceiveBatchInput{
		MedicineID:    med.ID,
		BatchNumber:   "BN-2026-001",
		Quantity:      100,
		ExpiryDate:    time.Now().UTC().AddDate(1, 0, 0),
		ShelfLocation: "B-3",
	})
	require.NoError(t, err)

	assert.False(t, result.Merged)
	assert.Equal(t, 100, result.Batch.AvailableQuantity)
	assert.Equal(t, 100, result.NewAggregate)

	require.Len(t, env.state.movements, 1)
	assert.Equal(t, repository.MovementAdd, env.state.movements[0].MovementType)
	assert.Equal(t, 100, env.state.movements[0].Quantity)
}

func TestReceiveBatch_MergesExistingBatchNumber(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	env.addBatch(med.ID, "BN-2026-001", 40, 180, time.Now().UTC())

	result, err := env.dispensing.ReceiveBatch(ctx, ReceiveBatchInput{
		MedicineID:  med.ID,
		BatchNumber: "BN-2026-001",
		Quantity:    60,
		ExpiryDate:  time.Now().UTC().AddDate(0, 6, 0),
	})
	require.NoError(t, err)

	assert.True(t, result.Merged)
	assert.Equal(t, 100, result.Batch.AvailableQuantity)
	assert.Equal(t, 100, result.NewAggregate)
}

func TestReceiveBatch_RejectsExpiredStock(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)

	_, err := env.dispensing.ReceiveBatch(ctx, ReceiveBatchInput{
		MedicineID:  med.ID,
		BatchNumber: "BN-OLD",
		Quantity:    10,
		ExpiryDate:  time.Now().UTC().AddDate(0, 0, -1),
	})
	assert.ErrorIs(t, err, errors.ErrBadRequest)
	assert.Empty(t, env.state.movements)
}

func TestReceiveBatch_RejectsNonPositiveQuantity(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)

	_, err := env.dispensing.ReceiveBatch(ctx, ReceiveBatchInput{
		MedicineID:  med.ID,
		BatchNumber: "BN-1",
		Quantity:    0,
		ExpiryDate:  time.Now().UTC().AddDate(1, 0, 0),
	})
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestAdjustLoss_RecordsMovementAndDeducts(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	batch := env.addBatch(med.ID, "BN-1", 30, 60, time.Now().UTC())

	result, err := env.dispensing.AdjustLoss(ctx, batch.ID, 10, "water damage")
	require.NoError(t, err)

	assert.Equal(t, 20, result.Batch.AvailableQuantity)
	assert.Equal(t, 20, result.NewAggregate)
	assert.Equal(t, 20, env.state.batches[batch.ID].AvailableQuantity)

	require.Len(t, env.state.movements, 1)
	assert.Equal(t, repository.MovementLoss, env.state.movements[0].MovementType)
	require.NotNil(t, env.state.movements[0].Reason)
	assert.Equal(t, "water damage", *env.state.movements[0].Reason)
}

func TestAdjustLoss_RequiresReason(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	batch := env.addBatch(med.ID, "BN-1", 30, 60, time.Now().UTC())

	_, err := env.dispensing.AdjustLoss(ctx, batch.ID, 10, "")
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestAdjustLoss_RejectsMoreThanAvailable(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	batch := env.addBatch(med.ID, "BN-1", 5, 60, time.Now().UTC())

	_, err := env.dispensing.AdjustLoss(ctx, batch.ID, 10, "disposal")
	assert.ErrorIs(t, err, errors.ErrInsufficientBatchStock)
	assert.Equal(t, 5, env.state.batches[batch.ID].AvailableQuantity)
}

func TestPreviewFefo_DoesNotChangeState(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	soon := env.addBatch(med.ID, "BN-SOON", 4, 5, time.Now().UTC())
	env.addBatch(med.ID, "BN-LATER", 10, 30, time.Now().UTC())

	plan, err := env.dispensing.PreviewFefo(ctx, med.ID, 6)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, soon.ID, plan[0].BatchID)

	assert.Equal(t, 4, env.state.batches[soon.ID].AvailableQuantity)
	assert.Empty(t, env.state.movements)
}

func TestPreviewFefo_ReportsShortage(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	env.addBatch(med.ID, "BN-1", 2, 30, time.Now().UTC())

	_, err := env.dispensing.PreviewFefo(ctx, med.ID, 6)
	assert.ErrorIs(t, err, errors.ErrInsufficientStock)
}

func TestCreatePrescription_StockedMedicineGetsRealReference(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	env.addBatch(med.ID, "BN-1", 50, 60, time.Now().UTC())

	created, err := env.dispensing.CreatePrescription(ctx, CreatePrescriptionInput{
		StudentID: "student-1",
		Items: []PrescriptionItemInput{
			{MedicineName: "Paracetamol 500mg", QuantityPrescribed: 10},
		},
	})
	require.NoError(t, err)

	require.Len(t, created.Items, 1)
	require.NotNil(t, created.Items[0].MedicineID)
	assert.Equal(t, med.ID, *created.Items[0].MedicineID)
	assert.Nil(t, created.Items[0].DummyMedicineID)
	assert.Empty(t, created.Dummies)
}

func TestCreatePrescription_UnknownMedicineGetsPlaceholder(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	created, err := env.dispensing.CreatePrescription(ctx, CreatePrescriptionInput{
		StudentID: "student-1",
		Items: []PrescriptionItemInput{
			{MedicineName: "Obscure Antiviral", QuantityPrescribed: 5},
		},
	})
	require.NoError(t, err)

	require.Len(t, created.Items, 1)
	assert.Nil(t, created.Items[0].MedicineID)
	require.NotNil(t, created.Items[0].DummyMedicineID)

	require.Len(t, created.Dummies, 1)
	assert.Equal(t, "Obscure Antiviral", created.Dummies[0].Name)
	assert.False(t, created.Dummies[0].IsReplaced)
}

func TestCreatePrescription_ShortStockGetsPlaceholder(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	env.addBatch(med.ID, "BN-1", 3, 60, time.Now().UTC())

	created, err := env.dispensing.CreatePrescription(ctx, CreatePrescriptionInput{
		StudentID: "student-1",
		Items: []PrescriptionItemInput{
			{MedicineName: "Paracetamol 500mg", QuantityPrescribed: 10},
		},
	})
	require.NoError(t, err)

	require.Len(t, created.Items, 1)
	assert.Nil(t, created.Items[0].MedicineID)
	require.NotNil(t, created.Items[0].DummyMedicineID)
	require.Len(t, created.Dummies, 1)
	assert.Equal(t, med.Name, created.Dummies[0].Name)
}

func TestCreatePrescription_RejectsEmptyItems(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	_, err := env.dispensing.CreatePrescription(ctx, CreatePrescriptionInput{StudentID: "student-1"})
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func sumAvailable(env *fakeEnv, medicineID string) int {
	total := 0
	for _, b := range env.state.batches {
		if b.MedicineID == medicineID {
			total += b.AvailableQuantity
		}
	}
	return total
}
