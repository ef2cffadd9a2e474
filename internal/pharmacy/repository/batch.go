package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/google/uuid"
)

// MedicineBatch represents a dated, located quantity of one medicine
// received together. Batches past their expiry date are excluded from
// allocation but kept for audit; nothing on the dispensing path deletes them.
type MedicineBatch struct {
	ID                string    `db:"id" json:"id"`
	MedicineID        string    `db:"medicine_id" json:"medicine_id"`
	BatchNumber       string    `db:"batch_number" json:"batch_number"`
	Quantity          int       `db:"quantity" json:"quantity"`
	AvailableQuantity int       `db:"available_quantity" json:"available_quantity"`
	ExpiryDate        time.Time `db:"expiry_date" json:"expiry_date"`
	ShelfLocation     string    `db:"shelf_location" json:"shelf_location"`
	CostPerUnit       *float64  `db:"cost_per_unit" json:"cost_per_unit,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// IsExpired reports whether the batch has passed its expiry date.
func (b *MedicineBatch) IsExpired(now time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return !b.ExpiryDate.After(today)
}

// BatchRepository owns the physical stock batches per medicine
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Receive records received stock. If a batch with the same
// (medicine_id, batch_number) already exists, the quantity is added to both
// total and available and the location/cost are refreshed; otherwise a new
// batch row is created. Returns the batch and whether it was merged.
func (r *BatchRepository) Receive(ctx context.Context, q database.Queryer, b *MedicineBatch) (bool, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	// Merge into an existing batch when the batch number matches.
	mergeQuery := `
		UPDATE medicine_batches SET
			quantity = quantity + $3,
			available_quantity = available_quantity + $3,
			shelf_location = $4,
			cost_per_unit = COALESCE($5, cost_per_unit),
			updated_at = NOW()
		WHERE medicine_id = $1 AND batch_number = $2
		RETURNING id, quantity, available_quantity, expiry_date, created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, mergeQuery,
		b.MedicineID, b.BatchNumber, b.Quantity, b.ShelfLocation, b.CostPerUnit,
	).Scan(&b.ID, &b.Quantity, &b.AvailableQuantity, &b.ExpiryDate, &b.CreatedAt, &b.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		if appErr := database.MapPQError(err); appErr != nil {
			return false, appErr
		}
		return false, err
	}

	insertQuery := `
		INSERT INTO medicine_batches (
			id, medicine_id, batch_number, quantity, available_quantity,
			expiry_date, shelf_location, cost_per_unit
		) VALUES ($1, $2, $3, $4, $4, $5, $6, $7)
		RETURNING available_quantity, created_at, updated_at
	`
	err = q.QueryRowxContext(ctx, insertQuery,
		b.ID, b.MedicineID, b.BatchNumber, b.Quantity,
		b.ExpiryDate, b.ShelfLocation, b.CostPerUnit,
	).Scan(&b.AvailableQuantity, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return false, appErr
		}
		return false, err
	}
	return false, nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, q database.Queryer, id string) (*MedicineBatch, error) {
	var b MedicineBatch
	query := `SELECT * FROM medicine_batches WHERE id = $1`
	if err := q.GetContext(ctx, &b, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &b, nil
}

// ListByMedicine lists all batches of a medicine, expired included, ordered
// by expiry date. Used for history views, not for allocation.
func (r *BatchRepository) ListByMedicine(ctx context.Context, medicineID string) ([]*MedicineBatch, error) {
	var batches []*MedicineBatch
	query := `
		SELECT * FROM medicine_batches
		WHERE medicine_id = $1
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListAllocatable returns the batches a dispense may draw from: available
// stock, not expired, in FEFO order. The tie-break on equal expiry dates is
// earliest received first.
func (r *BatchRepository) ListAllocatable(ctx context.Context, q database.Queryer, medicineID string) ([]*MedicineBatch, error) {
	var batches []*MedicineBatch
	query := `
		SELECT * FROM medicine_batches
		WHERE medicine_id = $1 AND available_quantity > 0 AND expiry_date > CURRENT_DATE
		ORDER BY expiry_date, created_at
	`
	if err := q.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

// HasExpiredStock reports whether the medicine holds available units that
// are unusable because their batch has expired. Distinguishes the AllExpired
// condition from plain insufficiency.
func (r *BatchRepository) HasExpiredStock(ctx context.Context, q database.Queryer, medicineID string) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM medicine_batches
		WHERE medicine_id = $1 AND available_quantity > 0 AND expiry_date <= CURRENT_DATE
	`
	if err := q.GetContext(ctx, &count, query, medicineID); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Deduct atomically decrements a batch's available quantity. The guard in
// the WHERE clause re-validates stock under the row lock the UPDATE takes,
// so a plan raced by a concurrent dispense fails here instead of going
// negative. Zero rows affected means either the batch vanished or the stock
// changed since planning.
func (r *BatchRepository) Deduct(ctx context.Context, q database.Queryer, batchID string, quantity int) error {
	if quantity <= 0 {
		return errors.BadRequest("deduction quantity must be positive")
	}

	query := `
		UPDATE medicine_batches SET
			available_quantity = available_quantity - $2,
			updated_at = NOW()
		WHERE id = $1 AND available_quantity >= $2
	`
	result, err := q.ExecContext(ctx, query, batchID, quantity)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StockConflict("batch stock changed since planning, retry the dispense")
	}

	return nil
}

// SumAvailable returns the sum of available quantities over non-expired
// batches, the authoritative aggregate for a medicine.
func (r *BatchRepository) SumAvailable(ctx context.Context, q database.Queryer, medicineID string) (int, error) {
	var total sql.NullInt64
	query := `
		SELECT SUM(available_quantity) FROM medicine_batches
		WHERE medicine_id = $1 AND expiry_date > CURRENT_DATE
	`
	if err := q.GetContext(ctx, &total, query, medicineID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// ListExpiring lists non-exhausted batches expiring within the given number
// of days, soonest first.
func (r *BatchRepository) ListExpiring(ctx context.Context, withinDays int) ([]*MedicineBatch, error) {
	var batches []*MedicineBatch
	query := `
		SELECT * FROM medicine_batches
		WHERE available_quantity > 0
		AND expiry_date <= CURRENT_DATE + $1::int
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, withinDays); err != nil {
		return nil, err
	}
	return batches, nil
}
