package service

import (
	"context"
	"fmt"
	"time"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/events"
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/actor"
	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

// DispensingService owns the stock-mutating flows: receiving batches,
// dispensing prescription items, loss adjustments and prescription creation.
// Every mutation runs in a single transaction that also appends the ledger
// records and recomputes the medicine's cached aggregate.
type DispensingService struct {
	db            database.TxRunner
	q             database.Queryer
	medicines     MedicineStore
	batches       BatchStore
	prescriptions PrescriptionStore
	dummies       DummyStore
	ledger        Ledger
	publisher     *events.PharmacyEventPublisher
	logger        *logger.Logger
}

// NewDispensingService creates a new dispensing service. The publisher may be
// nil, in which case no events are emitted.
func NewDispensingService(
	db database.TxRunner,
	q database.Queryer,
	medicines MedicineStore,
	batches BatchStore,
	prescriptions PrescriptionStore,
	dummies DummyStore,
	ledger Ledger,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *DispensingService {
	return &DispensingService{
		db:            db,
		q:             q,
		medicines:     medicines,
		batches:       batches,
		prescriptions: prescriptions,
		dummies:       dummies,
		ledger:        ledger,
		publisher:     publisher,
		logger:        log,
	}
}

// ReceiveBatchInput describes one stock receipt.
type ReceiveBatchInput struct {
	MedicineID    string
	BatchNumber   string
	Quantity      int
	ExpiryDate    time.Time
	ShelfLocation string
	CostPerUnit   *float64
	Reason        *string
}

// ReceiveBatchResult is the outcome of a stock receipt.
type ReceiveBatchResult struct {
	Batch        *repository.MedicineBatch `json:"batch"`
	Merged       bool                      `json:"merged"`
	NewAggregate int                       `json:"new_aggregate"`
}

// ReceiveBatch records received stock into a batch, appends an ADD movement
// and refreshes the medicine's cached aggregate, all in one transaction.
// Stock that is already expired on arrival is rejected.
func (s *DispensingService) ReceiveBatch(ctx context.Context, input ReceiveBatchInput) (*ReceiveBatchResult, error) {
	if input.Quantity <= 0 {
		return nil, errors.BadRequest("received quantity must be positive")
	}
	if !input.ExpiryDate.After(todayUTC()) {
		return nil, errors.BadRequest("cannot receive stock that is already expired")
	}

	act := actingUser(ctx)
	batch := &repository.MedicineBatch{
		MedicineID:    input.MedicineID,
		BatchNumber:   input.BatchNumber,
		Quantity:      input.Quantity,
		ExpiryDate:    input.ExpiryDate,
		ShelfLocation: input.ShelfLocation,
		CostPerUnit:   input.CostPerUnit,
	}

	var (
		result   ReceiveBatchResult
		movement *repository.StockMovement
		medicine *repository.Medicine
	)
	err := s.db.Transaction(ctx, func(q database.Queryer) error {
		var err error
		medicine, err = s.medicines.GetByID(ctx, q, input.MedicineID)
		if err != nil {
			return err
		}

		merged, err := s.batches.Receive(ctx, q, batch)
		if err != nil {
			return err
		}

		reason := input.Reason
		if reason == nil {
			r := fmt.Sprintf("received batch %s", batch.BatchNumber)
			reason = &r
		}
		movement = &repository.StockMovement{
			MedicineID:   input.MedicineID,
			UserID:       act.ID,
			MovementType: repository.MovementAdd,
			Quantity:     input.Quantity,
			Reason:       reason,
		}
		if err := s.ledger.CreateMovement(ctx, q, movement); err != nil {
			return err
		}

		newAgg, err := s.medicines.RecomputeAggregate(ctx, q, input.MedicineID)
		if err != nil {
			return err
		}

		result = ReceiveBatchResult{Batch: batch, Merged: merged, NewAggregate: newAgg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("medicine_id", input.MedicineID).
		Str("batch_number", input.BatchNumber).
		Int("quantity", input.Quantity).
		Bool("merged", result.Merged).
		Int("new_aggregate", result.NewAggregate).
		Msg("batch received")

	s.publisher.PublishBatchReceived(ctx, batch, input.Quantity, result.Merged)
	s.publisher.PublishStockMovement(ctx, movement, medicine.Name)

	return &result, nil
}

// PreviewFefo plans a dispense without executing it: which batches would be
// drawn from and how much from each. The plan is advisory; stock may change
// before the dispense runs.
func (s *DispensingService) PreviewFefo(ctx context.Context, medicineID string, quantity int) ([]Allocation, error) {
	medicine, err := s.medicines.GetByID(ctx, s.q, medicineID)
	if err != nil {
		return nil, err
	}

	batches, err := s.batches.ListAllocatable(ctx, s.q, medicineID)
	if err != nil {
		return nil, err
	}

	plan, err := PlanAllocation(batches, quantity)
	if err != nil {
		if errors.Is(err, errors.ErrInsufficientStock) {
			return nil, s.stockShortageError(ctx, s.q, medicine, quantity, batches)
		}
		return nil, err
	}
	return plan, nil
}

// DispenseResult is the outcome of a dispense attempt.
type DispenseResult struct {
	Item         *repository.PrescriptionItem `json:"item"`
	Allocations  []Allocation                 `json:"allocations,omitempty"`
	NewAggregate int                          `json:"new_aggregate"`
}

// DispenseItem dispenses quantity units against a prescription item,
// first-expired-first-out. A quantity of zero or less means the full
// remaining amount.
//
// When usable stock cannot cover the request, the item is moved to
// OUT_OF_STOCK and that transition is committed even though an error is
// returned; nothing else changes. On success the batch deductions, ledger
// records, item progress and aggregate refresh all commit atomically.
func (s *DispensingService) DispenseItem(ctx context.Context, itemID string, quantity int, notes *string) (*DispenseResult, error) {
	act := actingUser(ctx)

	var (
		result    DispenseResult
		reported  error
		requested int
		medicine  *repository.Medicine
		movement  *repository.StockMovement
		lowStock  bool
	)
	err := s.db.Transaction(ctx, func(q database.Queryer) error {
		item, err := s.prescriptions.GetItem(ctx, q, itemID)
		if err != nil {
			return err
		}
		if item.Status == repository.StatusDispensed || item.Remaining() <= 0 {
			return errors.AlreadyDispensed(itemID)
		}

		ref, err := item.Ref()
		if err != nil {
			return err
		}
		if ref.IsPlaceholder() {
			return errors.DummyNotDispensable(itemID)
		}

		medicine, err = s.medicines.GetByID(ctx, q, ref.ID())
		if err != nil {
			return err
		}

		requested = quantity
		if requested <= 0 {
			requested = item.Remaining()
		}
		if requested > item.Remaining() {
			return errors.OverDispense(requested, item.Remaining())
		}

		batches, err := s.batches.ListAllocatable(ctx, q, ref.ID())
		if err != nil {
			return err
		}

		plan, err := PlanAllocation(batches, requested)
		if err != nil {
			if !errors.Is(err, errors.ErrInsufficientStock) {
				return err
			}
			// Commit the OUT_OF_STOCK transition, report the shortage.
			if err := s.prescriptions.UpdateItemStatus(ctx, q, item.ID, repository.StatusOutOfStock); err != nil {
				return err
			}
			item.Status = repository.StatusOutOfStock
			reported = s.stockShortageError(ctx, q, medicine, requested, batches)
			result = DispenseResult{Item: item}
			return nil
		}

		now := time.Now().UTC()
		for _, a := range plan {
			if err := s.batches.Deduct(ctx, q, a.BatchID, a.Quantity); err != nil {
				return err
			}
			dispensing := &repository.BatchDispensing{
				PrescriptionItemID: item.ID,
				BatchID:            a.BatchID,
				QuantityDispensed:  a.Quantity,
				DispensedByID:      act.ID,
				DispensedAt:        now,
				Notes:              notes,
			}
			if err := s.ledger.CreateDispensing(ctx, q, dispensing); err != nil {
				return err
			}
		}

		reason := fmt.Sprintf("dispensed %s", medicine.Name)
		movement = &repository.StockMovement{
			MedicineID:      ref.ID(),
			UserID:          act.ID,
			MovementType:    repository.MovementDispense,
			Quantity:        requested,
			Reason:          &reason,
			ReferenceItemID: &item.ID,
		}
		if err := s.ledger.CreateMovement(ctx, q, movement); err != nil {
			return err
		}

		status := nextItemStatus(item, requested)
		if err := s.prescriptions.RecordDispense(ctx, q, item.ID, requested, status, now); err != nil {
			return err
		}
		item.QuantityDispensed += requested
		item.Status = status
		item.DispensedDate = &now

		newAgg, err := s.medicines.RecomputeAggregate(ctx, q, ref.ID())
		if err != nil {
			return err
		}
		lowStock = newAgg <= medicine.MinStockLevel

		result = DispenseResult{Item: item, Allocations: plan, NewAggregate: newAgg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reported != nil {
		s.logger.Warn().
			Str("item_id", itemID).
			Str("medicine_id", medicine.ID).
			Int("requested", requested).
			Err(reported).
			Msg("dispense failed, item marked out of stock")
		allExpired := errors.Is(reported, errors.ErrAllExpired)
		s.publisher.PublishItemOutOfStock(ctx, result.Item, medicine.ID, requested, allExpired)
		return &result, reported
	}

	s.logger.Info().
		Str("item_id", itemID).
		Str("medicine_id", medicine.ID).
		Int("quantity", requested).
		Int("batches", len(result.Allocations)).
		Str("status", string(result.Item.Status)).
		Int("new_aggregate", result.NewAggregate).
		Msg("item dispensed")

	s.publisher.PublishItemDispensed(ctx, result.Item, medicine.ID, requested, len(result.Allocations), act.ID)
	s.publisher.PublishStockMovement(ctx, movement, medicine.Name)
	if lowStock {
		s.publisher.PublishLowStock(ctx, medicine, result.NewAggregate)
	}

	return &result, nil
}

// AdjustLossResult is the outcome of a loss adjustment.
type AdjustLossResult struct {
	Batch        *repository.MedicineBatch `json:"batch"`
	NewAggregate int                       `json:"new_aggregate"`
}

// AdjustLoss writes off quantity units from a batch (damage, theft, disposal
// of expired stock). The ledger movement carries the mandatory reason.
func (s *DispensingService) AdjustLoss(ctx context.Context, batchID string, quantity int, reason string) (*AdjustLossResult, error) {
	if quantity <= 0 {
		return nil, errors.BadRequest("loss quantity must be positive")
	}
	if reason == "" {
		return nil, errors.BadRequest("a reason is required for loss adjustments")
	}

	act := actingUser(ctx)

	var (
		result   AdjustLossResult
		movement *repository.StockMovement
		medicine *repository.Medicine
	)
	err := s.db.Transaction(ctx, func(q database.Queryer) error {
		batch, err := s.batches.GetByID(ctx, q, batchID)
		if err != nil {
			return err
		}
		if quantity > batch.AvailableQuantity {
			return errors.InsufficientBatchStock(batchID, quantity, batch.AvailableQuantity)
		}

		medicine, err = s.medicines.GetByID(ctx, q, batch.MedicineID)
		if err != nil {
			return err
		}

		if err := s.batches.Deduct(ctx, q, batchID, quantity); err != nil {
			return err
		}
		batch.AvailableQuantity -= quantity

		movement = &repository.StockMovement{
			MedicineID:   batch.MedicineID,
			UserID:       act.ID,
			MovementType: repository.MovementLoss,
			Quantity:     quantity,
			Reason:       &reason,
		}
		if err := s.ledger.CreateMovement(ctx, q, movement); err != nil {
			return err
		}

		newAgg, err := s.medicines.RecomputeAggregate(ctx, q, batch.MedicineID)
		if err != nil {
			return err
		}

		result = AdjustLossResult{Batch: batch, NewAggregate: newAgg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Str("medicine_id", result.Batch.MedicineID).
		Int("quantity", quantity).
		Str("reason", reason).
		Int("new_aggregate", result.NewAggregate).
		Msg("loss adjustment recorded")

	s.publisher.PublishStockMovement(ctx, movement, medicine.Name)
	if result.NewAggregate <= medicine.MinStockLevel {
		s.publisher.PublishLowStock(ctx, medicine, result.NewAggregate)
	}

	return &result, nil
}

// PrescriptionItemInput describes one prescribed line. The medicine is named,
// not referenced: when no medicine with that name exists, or its usable stock
// cannot cover the prescribed quantity, a placeholder medicine is created and
// the item references it instead.
type PrescriptionItemInput struct {
	MedicineName       string
	GenericName        *string
	Dosage             *string
	Unit               *string
	Frequency          *string
	DurationDays       *int
	QuantityPrescribed int
	Instructions       *string
	EstimatedCost      *float64
}

// CreatePrescriptionInput describes a prescription with its items.
type CreatePrescriptionInput struct {
	StudentID string
	VisitID   *string
	Notes     *string
	Items     []PrescriptionItemInput
}

// CreatedPrescription is a freshly created prescription with its items and
// any placeholder medicines created along the way.
type CreatedPrescription struct {
	Prescription *repository.Prescription       `json:"prescription"`
	Items        []*repository.PrescriptionItem `json:"items"`
	Dummies      []*repository.DummyMedicine    `json:"dummy_medicines,omitempty"`
}

// CreatePrescription creates a prescription. Items whose medicine is unknown
// or short on stock get a placeholder medicine so the prescriber's intent is
// recorded now and substituted later.
func (s *DispensingService) CreatePrescription(ctx context.Context, input CreatePrescriptionInput) (*CreatedPrescription, error) {
	if len(input.Items) == 0 {
		return nil, errors.BadRequest("a prescription needs at least one item")
	}
	for _, it := range input.Items {
		if it.QuantityPrescribed <= 0 {
			return nil, errors.BadRequest("prescribed quantity must be positive")
		}
		if it.MedicineName == "" {
			return nil, errors.BadRequest("medicine name is required")
		}
	}

	act := actingUser(ctx)
	prescription := &repository.Prescription{
		StudentID:   input.StudentID,
		VisitID:     input.VisitID,
		CreatedByID: act.ID,
		Notes:       input.Notes,
	}

	var created CreatedPrescription
	err := s.db.Transaction(ctx, func(q database.Queryer) error {
		items := make([]*repository.PrescriptionItem, 0, len(input.Items))
		var dummies []*repository.DummyMedicine

		for _, in := range input.Items {
			item := &repository.PrescriptionItem{
				Dosage:             in.Dosage,
				Frequency:          in.Frequency,
				DurationDays:       in.DurationDays,
				QuantityPrescribed: in.QuantityPrescribed,
				Instructions:       in.Instructions,
				Status:             repository.StatusPending,
			}

			medicine, err := s.medicines.GetByName(ctx, q, in.MedicineName)
			switch {
			case err == nil:
				available, err := s.batches.SumAvailable(ctx, q, medicine.ID)
				if err != nil {
					return err
				}
				if available >= in.QuantityPrescribed {
					item.MedicineID = &medicine.ID
					items = append(items, item)
					continue
				}
			case errors.Is(err, errors.ErrNotFound):
				// Unknown medicine, fall through to the placeholder.
			default:
				return err
			}

			dummy := &repository.DummyMedicine{
				Name:          in.MedicineName,
				GenericName:   in.GenericName,
				Dosage:        in.Dosage,
				Unit:          in.Unit,
				EstimatedCost: in.EstimatedCost,
			}
			if err := s.dummies.Create(ctx, q, dummy); err != nil {
				return err
			}
			dummies = append(dummies, dummy)
			item.DummyMedicineID = &dummy.ID
			items = append(items, item)
		}

		if err := s.prescriptions.Create(ctx, q, prescription, items); err != nil {
			return err
		}

		created = CreatedPrescription{Prescription: prescription, Items: items, Dummies: dummies}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_id", prescription.ID).
		Str("student_id", input.StudentID).
		Int("items", len(created.Items)).
		Int("placeholders", len(created.Dummies)).
		Msg("prescription created")

	return &created, nil
}

// stockShortageError picks between AllExpired and InsufficientStock: when no
// usable units exist at all but expired ones do, the operator should hear
// about the expiry, not a bare shortage.
func (s *DispensingService) stockShortageError(ctx context.Context, q database.Queryer, medicine *repository.Medicine, requested int, allocatable []*repository.MedicineBatch) error {
	available := 0
	for _, b := range allocatable {
		available += b.AvailableQuantity
	}

	if available == 0 {
		expired, err := s.batches.HasExpiredStock(ctx, q, medicine.ID)
		if err != nil {
			return err
		}
		if expired {
			return errors.AllExpired(medicine.Name)
		}
	}
	return errors.InsufficientStock(medicine.Name, requested, available)
}

func actingUser(ctx context.Context) *actor.Actor {
	if a := actor.FromContext(ctx); a != nil {
		return a
	}
	return actor.System
}

func todayUTC() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
