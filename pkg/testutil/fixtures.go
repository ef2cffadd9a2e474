package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MedicineFixture represents test medicine data
type MedicineFixture struct {
	ID            string
	Name          string
	GenericName   *string
	Dosage        *string
	Unit          *string
	Quantity      int
	MinStockLevel int
	Supplier      *string
	CostPerUnit   *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID                string
	MedicineID        string
	BatchNumber       string
	Quantity          int
	AvailableQuantity int
	ExpiryDate        time.Time
	ShelfLocation     string
	CostPerUnit       *float64
	CreatedAt         time.Time
}

// PrescriptionFixture represents test prescription data
type PrescriptionFixture struct {
	ID          string
	StudentID   string
	VisitID     *string
	CreatedByID string
	Notes       *string
	CreatedAt   time.Time
}

// ItemFixture represents test prescription item data
type ItemFixture struct {
	ID                 string
	PrescriptionID     string
	MedicineID         *string
	DummyMedicineID    *string
	QuantityPrescribed int
	QuantityDispensed  int
	Status             string
	CreatedAt          time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Medicine creates a medicine fixture with defaults
func (f *FixtureFactory) Medicine(opts ...func(*MedicineFixture)) MedicineFixture {
	seq := f.nextSeq()

	m := MedicineFixture{
		ID:            uuid.New().String(),
		Name:          fmt.Sprintf("Medicine %d", seq),
		MinStockLevel: 10,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// WithMedicineName sets the medicine name
func WithMedicineName(name string) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.Name = name
	}
}

// WithMinStock sets the medicine's minimum stock level
func WithMinStock(level int) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.MinStockLevel = level
	}
}

// Batch creates a batch fixture with defaults: fully available, expiring in
// a year.
func (f *FixtureFactory) Batch(medicineID string, opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()

	b := BatchFixture{
		ID:                uuid.New().String(),
		MedicineID:        medicineID,
		BatchNumber:       fmt.Sprintf("BATCH-%04d", seq),
		Quantity:          100,
		AvailableQuantity: 100,
		ExpiryDate:        time.Now().UTC().AddDate(1, 0, 0),
		ShelfLocation:     fmt.Sprintf("A-%d", seq),
		CreatedAt:         time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// WithQuantity sets both total and available quantity
func WithQuantity(quantity int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.Quantity = quantity
		b.AvailableQuantity = quantity
	}
}

// ExpiringIn sets the expiry date relative to now
func ExpiringIn(days int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ExpiryDate = time.Now().UTC().AddDate(0, 0, days)
	}
}

// Prescription creates a prescription fixture with defaults
func (f *FixtureFactory) Prescription(opts ...func(*PrescriptionFixture)) PrescriptionFixture {
	seq := f.nextSeq()

	p := PrescriptionFixture{
		ID:          uuid.New().String(),
		StudentID:   fmt.Sprintf("student-%d", seq),
		CreatedByID: "doctor-1",
		CreatedAt:   time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// Item creates a prescription item fixture referencing a real medicine
func (f *FixtureFactory) Item(prescriptionID, medicineID string, opts ...func(*ItemFixture)) ItemFixture {
	item := ItemFixture{
		ID:                 uuid.New().String(),
		PrescriptionID:     prescriptionID,
		MedicineID:         &medicineID,
		QuantityPrescribed: 10,
		Status:             "PENDING",
		CreatedAt:          time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&item)
	}

	return item
}

// WithPrescribed sets the prescribed quantity
func WithPrescribed(quantity int) func(*ItemFixture) {
	return func(i *ItemFixture) {
		i.QuantityPrescribed = quantity
	}
}
