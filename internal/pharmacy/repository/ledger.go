package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/google/uuid"
)

// Movement types
const (
	MovementAdd      = "ADD"
	MovementDispense = "DISPENSE"
	MovementLoss     = "LOSS"
)

// StockMovement is the medicine-level audit record. Every mutation of
// available stock produces exactly one movement.
type StockMovement struct {
	ID              string    `db:"id" json:"id"`
	MedicineID      string    `db:"medicine_id" json:"medicine_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	MovementType    string    `db:"movement_type" json:"movement_type"`
	Quantity        int       `db:"quantity" json:"quantity"`
	Reason          *string   `db:"reason" json:"reason,omitempty"`
	ReferenceItemID *string   `db:"reference_item_id" json:"reference_item_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// BatchDispensing is the batch-level traceability record: which prescription
// item drew how much from which batch. One allocation may span several
// batches, producing several rows.
type BatchDispensing struct {
	ID                 string    `db:"id" json:"id"`
	PrescriptionItemID string    `db:"prescription_item_id" json:"prescription_item_id"`
	BatchID            string    `db:"batch_id" json:"batch_id"`
	QuantityDispensed  int       `db:"quantity_dispensed" json:"quantity_dispensed"`
	DispensedByID      string    `db:"dispensed_by_id" json:"dispensed_by_id"`
	DispensedAt        time.Time `db:"dispensed_at" json:"dispensed_at"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
}

// LedgerRepository persists the append-only dispensing ledger. Both tables
// are insert-and-read only; no update or delete exists.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CreateMovement appends a stock movement
func (r *LedgerRepository) CreateMovement(ctx context.Context, q database.Queryer, m *StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (
			id, medicine_id, user_id, movement_type, quantity, reason, reference_item_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return q.QueryRowxContext(ctx, query,
		m.ID, m.MedicineID, m.UserID, m.MovementType, m.Quantity,
		m.Reason, m.ReferenceItemID,
	).Scan(&m.CreatedAt)
}

// CreateDispensing appends a batch dispensing record
func (r *LedgerRepository) CreateDispensing(ctx context.Context, q database.Queryer, d *BatchDispensing) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DispensedAt.IsZero() {
		d.DispensedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO batch_dispensings (
			id, prescription_item_id, batch_id, quantity_dispensed,
			dispensed_by_id, dispensed_at, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.ExecContext(ctx, query,
		d.ID, d.PrescriptionItemID, d.BatchID, d.QuantityDispensed,
		d.DispensedByID, d.DispensedAt, d.Notes,
	)
	return err
}

// ListMovementsByMedicine lists a medicine's movements, newest first,
// optionally filtered by movement type.
func (r *LedgerRepository) ListMovementsByMedicine(ctx context.Context, medicineID, movementType string, page, perPage int) ([]*StockMovement, int64, error) {
	where := `WHERE medicine_id = $1`
	args := []interface{}{medicineID}
	if movementType != "" {
		where += ` AND movement_type = $2`
		args = append(args, movementType)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM stock_movements `+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := fmt.Sprintf(`SELECT * FROM stock_movements %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	var movements []*StockMovement
	if err := r.db.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// ListDispensingsByItem lists the batch breakdown of a prescription item's
// dispensings in dispense order.
func (r *LedgerRepository) ListDispensingsByItem(ctx context.Context, itemID string) ([]*BatchDispensing, error) {
	var dispensings []*BatchDispensing
	query := `
		SELECT * FROM batch_dispensings
		WHERE prescription_item_id = $1
		ORDER BY dispensed_at, id
	`
	if err := r.db.SelectContext(ctx, &dispensings, query, itemID); err != nil {
		return nil, err
	}
	return dispensings, nil
}
