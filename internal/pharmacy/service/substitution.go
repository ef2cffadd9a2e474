package service

import (
	"context"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/events"
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

// SubstitutionService replaces placeholder medicines on prescription items
// with real, stocked medicines once they become available.
type SubstitutionService struct {
	db            database.TxRunner
	medicines     MedicineStore
	batches       BatchStore
	prescriptions PrescriptionStore
	dummies       DummyStore
	publisher     *events.PharmacyEventPublisher
	logger        *logger.Logger
}

// NewSubstitutionService creates a new substitution service
func NewSubstitutionService(
	db database.TxRunner,
	medicines MedicineStore,
	batches BatchStore,
	prescriptions PrescriptionStore,
	dummies DummyStore,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *SubstitutionService {
	return &SubstitutionService{
		db:            db,
		medicines:     medicines,
		batches:       batches,
		prescriptions: prescriptions,
		dummies:       dummies,
		publisher:     publisher,
		logger:        log,
	}
}

// SubstituteDummy switches a prescription item from its placeholder medicine
// to the given real medicine and resets the item to PENDING. The swap and the
// placeholder's replaced flag commit together. Substitution is refused when
// the real medicine's usable stock cannot cover the item's remaining amount,
// so a substituted item is always immediately dispensable.
func (s *SubstitutionService) SubstituteDummy(ctx context.Context, itemID, medicineID string) (*repository.PrescriptionItem, error) {
	var (
		item    *repository.PrescriptionItem
		dummyID string
	)
	err := s.db.Transaction(ctx, func(q database.Queryer) error {
		var err error
		item, err = s.prescriptions.GetItem(ctx, q, itemID)
		if err != nil {
			return err
		}

		ref, err := item.Ref()
		if err != nil {
			return err
		}
		if !ref.IsPlaceholder() {
			return errors.NotADummyItem(itemID)
		}
		dummyID = ref.ID()

		if _, err := s.dummies.GetByID(ctx, q, dummyID); err != nil {
			return err
		}

		medicine, err := s.medicines.GetByID(ctx, q, medicineID)
		if err != nil {
			return err
		}

		available, err := s.batches.SumAvailable(ctx, q, medicineID)
		if err != nil {
			return err
		}
		if available < item.Remaining() {
			return errors.InsufficientStock(medicine.Name, item.Remaining(), available)
		}

		if err := s.prescriptions.SwapToRealMedicine(ctx, q, itemID, dummyID, medicineID); err != nil {
			return err
		}
		if err := s.dummies.MarkReplaced(ctx, q, dummyID, medicineID); err != nil {
			return err
		}

		item.MedicineID = &medicineID
		item.DummyMedicineID = nil
		item.Status = repository.StatusPending
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("item_id", itemID).
		Str("dummy_medicine_id", dummyID).
		Str("medicine_id", medicineID).
		Msg("placeholder medicine substituted")

	s.publisher.PublishItemSubstituted(ctx, itemID, dummyID, medicineID)

	return item, nil
}
