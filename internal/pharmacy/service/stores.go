package service

import (
	"context"
	"time"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/database"
)

// The services depend on these narrow store interfaces rather than the
// concrete repositories so the transactional flows can be unit tested
// against in-memory implementations.

// MedicineStore is the medicine persistence the services need.
type MedicineStore interface {
	Create(ctx context.Context, m *repository.Medicine) error
	GetByID(ctx context.Context, q database.Queryer, id string) (*repository.Medicine, error)
	GetByName(ctx context.Context, q database.Queryer, name string) (*repository.Medicine, error)
	RecomputeAggregate(ctx context.Context, q database.Queryer, medicineID string) (int, error)
}

// BatchStore is the batch persistence the services need.
type BatchStore interface {
	Receive(ctx context.Context, q database.Queryer, b *repository.MedicineBatch) (bool, error)
	GetByID(ctx context.Context, q database.Queryer, id string) (*repository.MedicineBatch, error)
	ListAllocatable(ctx context.Context, q database.Queryer, medicineID string) ([]*repository.MedicineBatch, error)
	HasExpiredStock(ctx context.Context, q database.Queryer, medicineID string) (bool, error)
	Deduct(ctx context.Context, q database.Queryer, batchID string, quantity int) error
	SumAvailable(ctx context.Context, q database.Queryer, medicineID string) (int, error)
}

// PrescriptionStore is the prescription persistence the services need.
type PrescriptionStore interface {
	Create(ctx context.Context, q database.Queryer, p *repository.Prescription, items []*repository.PrescriptionItem) error
	GetItem(ctx context.Context, q database.Queryer, itemID string) (*repository.PrescriptionItem, error)
	RecordDispense(ctx context.Context, q database.Queryer, itemID string, quantity int, status repository.ItemStatus, at time.Time) error
	UpdateItemStatus(ctx context.Context, q database.Queryer, itemID string, status repository.ItemStatus) error
	SwapToRealMedicine(ctx context.Context, q database.Queryer, itemID, dummyID, medicineID string) error
}

// DummyStore is the placeholder-medicine persistence the services need.
type DummyStore interface {
	Create(ctx context.Context, q database.Queryer, d *repository.DummyMedicine) error
	GetByID(ctx context.Context, q database.Queryer, id string) (*repository.DummyMedicine, error)
	MarkReplaced(ctx context.Context, q database.Queryer, dummyID, medicineID string) error
}

// Ledger appends to the dispensing ledger.
type Ledger interface {
	CreateMovement(ctx context.Context, q database.Queryer, m *repository.StockMovement) error
	CreateDispensing(ctx context.Context, q database.Queryer, d *repository.BatchDispensing) error
}
