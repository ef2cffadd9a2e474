package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/google/uuid"
)

// ItemStatus is the lifecycle state of a prescription item.
type ItemStatus string

const (
	StatusPending    ItemStatus = "PENDING"
	StatusPartial    ItemStatus = "PARTIAL"
	StatusDispensed  ItemStatus = "DISPENSED"
	StatusOutOfStock ItemStatus = "OUT_OF_STOCK"
)

// MedicineRef is a tagged reference to either a real medicine or a
// placeholder (dummy) medicine. The underlying schema stores two nullable
// columns; this type makes the both-set and both-null states unrepresentable
// above the repository layer.
type MedicineRef struct {
	id          string
	placeholder bool
}

// RealMedicine returns a reference to a real medicine.
func RealMedicine(id string) MedicineRef {
	return MedicineRef{id: id}
}

// PlaceholderMedicine returns a reference to a dummy medicine.
func PlaceholderMedicine(id string) MedicineRef {
	return MedicineRef{id: id, placeholder: true}
}

// ID returns the referenced medicine or dummy-medicine ID.
func (ref MedicineRef) ID() string { return ref.id }

// IsPlaceholder reports whether the reference points at a dummy medicine.
func (ref MedicineRef) IsPlaceholder() bool { return ref.placeholder }

func (ref MedicineRef) String() string {
	if ref.placeholder {
		return "dummy:" + ref.id
	}
	return "medicine:" + ref.id
}

// Prescription groups the items prescribed in one sitting. Its status is
// always derived from the items, never stored.
type Prescription struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	VisitID     *string   `db:"visit_id" json:"visit_id,omitempty"`
	CreatedByID string    `db:"created_by_id" json:"created_by_id"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PrescriptionItem is one prescribed line: one medicine, one quantity.
type PrescriptionItem struct {
	ID                 string     `db:"id" json:"id"`
	PrescriptionID     string     `db:"prescription_id" json:"prescription_id"`
	MedicineID         *string    `db:"medicine_id" json:"medicine_id,omitempty"`
	DummyMedicineID    *string    `db:"dummy_medicine_id" json:"dummy_medicine_id,omitempty"`
	Dosage             *string    `db:"dosage" json:"dosage,omitempty"`
	Frequency          *string    `db:"frequency" json:"frequency,omitempty"`
	DurationDays       *int       `db:"duration_days" json:"duration_days,omitempty"`
	QuantityPrescribed int        `db:"quantity_prescribed" json:"quantity_prescribed"`
	QuantityDispensed  int        `db:"quantity_dispensed" json:"quantity_dispensed"`
	Instructions       *string    `db:"instructions" json:"instructions,omitempty"`
	Status             ItemStatus `db:"status" json:"status"`
	DispensedDate      *time.Time `db:"dispensed_date" json:"dispensed_date,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Ref returns the item's medicine reference. A row with both or neither
// column set is a broken invariant and is never coerced.
func (i *PrescriptionItem) Ref() (MedicineRef, error) {
	switch {
	case i.MedicineID != nil && i.DummyMedicineID != nil:
		return MedicineRef{}, errors.Integrity(fmt.Sprintf("prescription item %s references both a real and a placeholder medicine", i.ID))
	case i.MedicineID != nil:
		return RealMedicine(*i.MedicineID), nil
	case i.DummyMedicineID != nil:
		return PlaceholderMedicine(*i.DummyMedicineID), nil
	default:
		return MedicineRef{}, errors.Integrity(fmt.Sprintf("prescription item %s references no medicine", i.ID))
	}
}

// Remaining returns the undispensed amount.
func (i *PrescriptionItem) Remaining() int {
	return i.QuantityPrescribed - i.QuantityDispensed
}

// PrescriptionRepository handles prescription persistence
type PrescriptionRepository struct {
	db *database.DB
}

// NewPrescriptionRepository creates a new prescription repository
func NewPrescriptionRepository(db *database.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

// Create creates a prescription together with its items
func (r *PrescriptionRepository) Create(ctx context.Context, q database.Queryer, p *Prescription, items []*PrescriptionItem) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO prescriptions (id, student_id, visit_id, created_by_id, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	if err := q.QueryRowxContext(ctx, query,
		p.ID, p.StudentID, p.VisitID, p.CreatedByID, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	for _, item := range items {
		item.PrescriptionID = p.ID
		if err := r.CreateItem(ctx, q, item); err != nil {
			return err
		}
	}
	return nil
}

// CreateItem creates a single prescription item
func (r *PrescriptionRepository) CreateItem(ctx context.Context, q database.Queryer, item *PrescriptionItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	if _, err := item.Ref(); err != nil {
		return err
	}

	query := `
		INSERT INTO prescription_items (
			id, prescription_id, medicine_id, dummy_medicine_id, dosage,
			frequency, duration_days, quantity_prescribed, quantity_dispensed,
			instructions, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		item.ID, item.PrescriptionID, item.MedicineID, item.DummyMedicineID,
		item.Dosage, item.Frequency, item.DurationDays, item.QuantityPrescribed,
		item.QuantityDispensed, item.Instructions, item.Status,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a prescription by ID
func (r *PrescriptionRepository) GetByID(ctx context.Context, id string) (*Prescription, error) {
	var p Prescription
	query := `SELECT * FROM prescriptions WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("prescription")
		}
		return nil, err
	}
	return &p, nil
}

// GetItem gets a prescription item by ID
func (r *PrescriptionRepository) GetItem(ctx context.Context, q database.Queryer, itemID string) (*PrescriptionItem, error) {
	var item PrescriptionItem
	query := `SELECT * FROM prescription_items WHERE id = $1`
	if err := q.GetContext(ctx, &item, query, itemID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("prescription item")
		}
		return nil, err
	}
	return &item, nil
}

// ListItems lists a prescription's items in creation order
func (r *PrescriptionRepository) ListItems(ctx context.Context, prescriptionID string) ([]*PrescriptionItem, error) {
	var items []*PrescriptionItem
	query := `SELECT * FROM prescription_items WHERE prescription_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &items, query, prescriptionID); err != nil {
		return nil, err
	}
	return items, nil
}

// ListByStudent lists a student's prescriptions, newest first
func (r *PrescriptionRepository) ListByStudent(ctx context.Context, studentID string, page, perPage int) ([]*Prescription, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM prescriptions WHERE student_id = $1`, studentID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	var prescriptions []*Prescription
	query := `
		SELECT * FROM prescriptions
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &prescriptions, query, studentID, perPage, offset); err != nil {
		return nil, 0, err
	}
	return prescriptions, total, nil
}

// RecordDispense advances an item after a successful allocation: bumps the
// dispensed quantity, sets the new status and stamps the dispense time.
func (r *PrescriptionRepository) RecordDispense(ctx context.Context, q database.Queryer, itemID string, quantity int, status ItemStatus, at time.Time) error {
	query := `
		UPDATE prescription_items SET
			quantity_dispensed = quantity_dispensed + $2,
			status = $3,
			dispensed_date = $4,
			updated_at = NOW()
		WHERE id = $1 AND quantity_dispensed + $2 <= quantity_prescribed
	`
	result, err := q.ExecContext(ctx, query, itemID, quantity, status, at)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StockConflict("prescription item changed since planning, retry the dispense")
	}
	return nil
}

// UpdateItemStatus sets an item's status without touching quantities.
// Used for the OUT_OF_STOCK transition.
func (r *PrescriptionRepository) UpdateItemStatus(ctx context.Context, q database.Queryer, itemID string, status ItemStatus) error {
	query := `UPDATE prescription_items SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := q.ExecContext(ctx, query, itemID, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("prescription item")
	}
	return nil
}

// SwapToRealMedicine switches an item's reference from a dummy medicine to a
// real one and resets it to PENDING. The guard keeps the swap valid only
// while the item still references that dummy.
func (r *PrescriptionRepository) SwapToRealMedicine(ctx context.Context, q database.Queryer, itemID, dummyID, medicineID string) error {
	query := `
		UPDATE prescription_items SET
			medicine_id = $3,
			dummy_medicine_id = NULL,
			status = $4,
			updated_at = NOW()
		WHERE id = $1 AND dummy_medicine_id = $2
	`
	result, err := q.ExecContext(ctx, query, itemID, dummyID, medicineID, StatusPending)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StockConflict("prescription item was modified concurrently, retry the substitution")
	}
	return nil
}
