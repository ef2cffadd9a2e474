package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/google/uuid"
)

// DummyMedicine is a placeholder record for a prescribed drug that was out
// of stock at prescription time. It copies the descriptive fields the
// prescriber entered so the intent survives even after the item is later
// substituted with a real medicine. Dummies are retained forever; the
// replaced flag plus back-reference record what happened to them.
type DummyMedicine struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	GenericName   *string   `db:"generic_name" json:"generic_name,omitempty"`
	Dosage        *string   `db:"dosage" json:"dosage,omitempty"`
	Unit          *string   `db:"unit" json:"unit,omitempty"`
	Supplier      *string   `db:"supplier" json:"supplier,omitempty"`
	EstimatedCost *float64  `db:"estimated_cost" json:"estimated_cost,omitempty"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	ReplacedByID  *string   `db:"replaced_by_id" json:"replaced_by_id,omitempty"`
	IsReplaced    bool      `db:"is_replaced" json:"is_replaced"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// DummyMedicineRepository handles placeholder medicine persistence
type DummyMedicineRepository struct {
	db *database.DB
}

// NewDummyMedicineRepository creates a new dummy medicine repository
func NewDummyMedicineRepository(db *database.DB) *DummyMedicineRepository {
	return &DummyMedicineRepository{db: db}
}

// Create creates a new dummy medicine
func (r *DummyMedicineRepository) Create(ctx context.Context, q database.Queryer, d *DummyMedicine) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	query := `
		INSERT INTO dummy_medicines (
			id, name, generic_name, dosage, unit, supplier, estimated_cost, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		d.ID, d.Name, d.GenericName, d.Dosage, d.Unit, d.Supplier,
		d.EstimatedCost, d.Notes,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a dummy medicine by ID
func (r *DummyMedicineRepository) GetByID(ctx context.Context, q database.Queryer, id string) (*DummyMedicine, error) {
	var d DummyMedicine
	query := `SELECT * FROM dummy_medicines WHERE id = $1`
	if err := q.GetContext(ctx, &d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("dummy medicine")
		}
		return nil, err
	}
	return &d, nil
}

// ListUnreplaced lists the placeholders still awaiting substitution,
// oldest first.
func (r *DummyMedicineRepository) ListUnreplaced(ctx context.Context) ([]*DummyMedicine, error) {
	var dummies []*DummyMedicine
	query := `SELECT * FROM dummy_medicines WHERE is_replaced = false ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &dummies, query); err != nil {
		return nil, err
	}
	return dummies, nil
}

// MarkReplaced records that a real medicine has been substituted for the
// placeholder. The dummy is kept for historical traceability of what was
// originally prescribed.
func (r *DummyMedicineRepository) MarkReplaced(ctx context.Context, q database.Queryer, dummyID, medicineID string) error {
	query := `
		UPDATE dummy_medicines SET
			replaced_by_id = $2,
			is_replaced = true,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := q.ExecContext(ctx, query, dummyID, medicineID)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("dummy medicine")
	}
	return nil
}
