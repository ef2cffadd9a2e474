package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/google/uuid"
)

// Medicine represents a medicine in the inventory.
//
// Quantity is a cached aggregate: the authoritative value is the sum of
// available_quantity over the medicine's non-expired batches. Every code
// path that mutates batch stock recomputes the cache inside the same
// transaction via RecomputeAggregate.
type Medicine struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	GenericName   *string   `db:"generic_name" json:"generic_name,omitempty"`
	Dosage        *string   `db:"dosage" json:"dosage,omitempty"`
	Unit          *string   `db:"unit" json:"unit,omitempty"`
	Quantity      int       `db:"quantity" json:"quantity"`
	MinStockLevel int       `db:"min_stock_level" json:"min_stock_level"`
	Supplier      *string   `db:"supplier" json:"supplier,omitempty"`
	CostPerUnit   *float64  `db:"cost_per_unit" json:"cost_per_unit,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsLowStock reports whether the cached non-expired aggregate is at or below
// the minimum stock threshold.
func (m *Medicine) IsLowStock() bool {
	return m.Quantity <= m.MinStockLevel
}

// MedicineRepository handles medicine persistence
type MedicineRepository struct {
	db *database.DB
}

// NewMedicineRepository creates a new medicine repository
func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

// Create creates a new medicine
func (r *MedicineRepository) Create(ctx context.Context, m *Medicine) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medicines (
			id, name, generic_name, dosage, unit, quantity, min_stock_level,
			supplier, cost_per_unit
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.Name, m.GenericName, m.Dosage, m.Unit, m.Quantity,
		m.MinStockLevel, m.Supplier, m.CostPerUnit,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a medicine by ID
func (r *MedicineRepository) GetByID(ctx context.Context, q database.Queryer, id string) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE id = $1`
	if err := q.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// GetByName gets a medicine by its unique name
func (r *MedicineRepository) GetByName(ctx context.Context, q database.Queryer, name string) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE name = $1`
	if err := q.GetContext(ctx, &m, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// List lists medicines ordered by name, optionally filtered to low stock
func (r *MedicineRepository) List(ctx context.Context, page, perPage int, lowStockOnly bool) ([]*Medicine, int64, error) {
	where := ""
	if lowStockOnly {
		where = "WHERE quantity <= min_stock_level"
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM medicines `+where); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	var medicines []*Medicine
	query := `SELECT * FROM medicines ` + where + ` ORDER BY name LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &medicines, query, perPage, offset); err != nil {
		return nil, 0, err
	}
	return medicines, total, nil
}

// Update updates a medicine's descriptive fields. The cached quantity is
// not settable here; it only moves through RecomputeAggregate.
func (r *MedicineRepository) Update(ctx context.Context, m *Medicine) error {
	query := `
		UPDATE medicines SET
			generic_name = $2, dosage = $3, unit = $4, min_stock_level = $5,
			supplier = $6, cost_per_unit = $7, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		m.ID, m.GenericName, m.Dosage, m.Unit, m.MinStockLevel,
		m.Supplier, m.CostPerUnit,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medicine")
	}

	return nil
}

// RecomputeAggregate refreshes the cached quantity from the sum of available
// quantities over non-expired batches, and returns the new value. Must be
// called within the same transaction as any batch mutation.
func (r *MedicineRepository) RecomputeAggregate(ctx context.Context, q database.Queryer, medicineID string) (int, error) {
	query := `
		UPDATE medicines SET
			quantity = COALESCE((
				SELECT SUM(available_quantity) FROM medicine_batches
				WHERE medicine_id = $1 AND expiry_date > CURRENT_DATE
			), 0),
			updated_at = NOW()
		WHERE id = $1
		RETURNING quantity
	`
	var newQty int
	if err := q.QueryRowxContext(ctx, query, medicineID).Scan(&newQty); err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.NotFound("medicine")
		}
		return 0, err
	}
	return newQty, nil
}
