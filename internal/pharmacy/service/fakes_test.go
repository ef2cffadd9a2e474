package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

// The fakes below implement the store interfaces against plain maps so the
// transactional flows can be tested without a database. The fake TxRunner
// snapshots the state before running the function and restores it on error,
// mirroring a rollback.

type fakeState struct {
	medicines     map[string]*repository.Medicine
	batches       map[string]*repository.MedicineBatch
	prescriptions map[string]*repository.Prescription
	items         map[string]*repository.PrescriptionItem
	dummies       map[string]*repository.DummyMedicine
	movements     []*repository.StockMovement
	dispensings   []*repository.BatchDispensing

	// failDeductBatchID simulates a concurrent dispense racing this one.
	failDeductBatchID string
}

func newFakeState() *fakeState {
	return &fakeState{
		medicines:     make(map[string]*repository.Medicine),
		batches:       make(map[string]*repository.MedicineBatch),
		prescriptions: make(map[string]*repository.Prescription),
		items:         make(map[string]*repository.PrescriptionItem),
		dummies:       make(map[string]*repository.DummyMedicine),
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	c.failDeductBatchID = s.failDeductBatchID
	for k, v := range s.medicines {
		cp := *v
		c.medicines[k] = &cp
	}
	for k, v := range s.batches {
		cp := *v
		c.batches[k] = &cp
	}
	for k, v := range s.prescriptions {
		cp := *v
		c.prescriptions[k] = &cp
	}
	for k, v := range s.items {
		cp := *v
		c.items[k] = &cp
	}
	for k, v := range s.dummies {
		cp := *v
		c.dummies[k] = &cp
	}
	c.movements = append(c.movements, s.movements...)
	c.dispensings = append(c.dispensings, s.dispensings...)
	return c
}

func (s *fakeState) restore(from *fakeState) {
	s.medicines = from.medicines
	s.batches = from.batches
	s.prescriptions = from.prescriptions
	s.items = from.items
	s.dummies = from.dummies
	s.movements = from.movements
	s.dispensings = from.dispensings
}

type fakeTx struct {
	state *fakeState
}

func (f *fakeTx) Transaction(ctx context.Context, fn func(q database.Queryer) error) error {
	snapshot := f.state.clone()
	if err := fn(nil); err != nil {
		f.state.restore(snapshot)
		return err
	}
	return nil
}

type fakeMedicines struct{ s *fakeState }

func (f *fakeMedicines) Create(ctx context.Context, m *repository.Medicine) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	cp := *m
	f.s.medicines[m.ID] = &cp
	return nil
}

func (f *fakeMedicines) GetByID(ctx context.Context, q database.Queryer, id string) (*repository.Medicine, error) {
	m, ok := f.s.medicines[id]
	if !ok {
		return nil, errors.NotFound("medicine")
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMedicines) GetByName(ctx context.Context, q database.Queryer, name string) (*repository.Medicine, error) {
	for _, m := range f.s.medicines {
		if m.Name == name {
			cp := *m
			return &cp, nil
		}
	}
	return nil, errors.NotFound("medicine")
}

func (f *fakeMedicines) RecomputeAggregate(ctx context.Context, q database.Queryer, medicineID string) (int, error) {
	m, ok := f.s.medicines[medicineID]
	if !ok {
		return 0, errors.NotFound("medicine")
	}
	total := 0
	for _, b := range f.s.batches {
		if b.MedicineID == medicineID && !b.IsExpired(time.Now().UTC()) {
			total += b.AvailableQuantity
		}
	}
	m.Quantity = total
	return total, nil
}

type fakeBatches struct{ s *fakeState }

func (f *fakeBatches) Receive(ctx context.Context, q database.Queryer, b *repository.MedicineBatch) (bool, error) {
	for _, existing := range f.s.batches {
		if existing.MedicineID == b.MedicineID && existing.BatchNumber == b.BatchNumber {
			existing.Quantity += b.Quantity
			existing.AvailableQuantity += b.Quantity
			existing.ShelfLocation = b.ShelfLocation
			*b = *existing
			return true, nil
		}
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.AvailableQuantity = b.Quantity
	b.CreatedAt = time.Now().UTC()
	cp := *b
	f.s.batches[b.ID] = &cp
	return false, nil
}

func (f *fakeBatches) GetByID(ctx context.Context, q database.Queryer, id string) (*repository.MedicineBatch, error) {
	b, ok := f.s.batches[id]
	if !ok {
		return nil, errors.NotFound("batch")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBatches) ListAllocatable(ctx context.Context, q database.Queryer, medicineID string) ([]*repository.MedicineBatch, error) {
	now := time.Now().UTC()
	var out []*repository.MedicineBatch
	for _, b := range f.s.batches {
		if b.MedicineID == medicineID && b.AvailableQuantity > 0 && !b.IsExpired(now) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeBatches) HasExpiredStock(ctx context.Context, q database.Queryer, medicineID string) (bool, error) {
	now := time.Now().UTC()
	for _, b := range f.s.batches {
		if b.MedicineID == medicineID && b.AvailableQuantity > 0 && b.IsExpired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBatches) Deduct(ctx context.Context, q database.Queryer, batchID string, quantity int) error {
	if batchID == f.s.failDeductBatchID {
		return errors.StockConflict("batch stock changed since planning, retry the dispense")
	}
	b, ok := f.s.batches[batchID]
	if !ok || b.AvailableQuantity < quantity {
		return errors.StockConflict("batch stock changed since planning, retry the dispense")
	}
	b.AvailableQuantity -= quantity
	return nil
}

func (f *fakeBatches) SumAvailable(ctx context.Context, q database.Queryer, medicineID string) (int, error) {
	now := time.Now().UTC()
	total := 0
	for _, b := range f.s.batches {
		if b.MedicineID == medicineID && !b.IsExpired(now) {
			total += b.AvailableQuantity
		}
	}
	return total, nil
}

type fakePrescriptions struct{ s *fakeState }

func (f *fakePrescriptions) Create(ctx context.Context, q database.Queryer, p *repository.Prescription, items []*repository.PrescriptionItem) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	cp := *p
	f.s.prescriptions[p.ID] = &cp
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.PrescriptionID = p.ID
		if _, err := item.Ref(); err != nil {
			return err
		}
		icp := *item
		f.s.items[item.ID] = &icp
	}
	return nil
}

func (f *fakePrescriptions) GetItem(ctx context.Context, q database.Queryer, itemID string) (*repository.PrescriptionItem, error) {
	item, ok := f.s.items[itemID]
	if !ok {
		return nil, errors.NotFound("prescription item")
	}
	cp := *item
	return &cp, nil
}

func (f *fakePrescriptions) RecordDispense(ctx context.Context, q database.Queryer, itemID string, quantity int, status repository.ItemStatus, at time.Time) error {
	item, ok := f.s.items[itemID]
	if !ok || item.QuantityDispensed+quantity > item.QuantityPrescribed {
		return errors.StockConflict("prescription item changed since planning, retry the dispense")
	}
	item.QuantityDispensed += quantity
	item.Status = status
	item.DispensedDate = &at
	return nil
}

func (f *fakePrescriptions) UpdateItemStatus(ctx context.Context, q database.Queryer, itemID string, status repository.ItemStatus) error {
	item, ok := f.s.items[itemID]
	if !ok {
		return errors.NotFound("prescription item")
	}
	item.Status = status
	return nil
}

func (f *fakePrescriptions) SwapToRealMedicine(ctx context.Context, q database.Queryer, itemID, dummyID, medicineID string) error {
	item, ok := f.s.items[itemID]
	if !ok || item.DummyMedicineID == nil || *item.DummyMedicineID != dummyID {
		return errors.StockConflict("prescription item was modified concurrently, retry the substitution")
	}
	item.MedicineID = &medicineID
	item.DummyMedicineID = nil
	item.Status = repository.StatusPending
	return nil
}

type fakeDummies struct{ s *fakeState }

func (f *fakeDummies) Create(ctx context.Context, q database.Queryer, d *repository.DummyMedicine) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	cp := *d
	f.s.dummies[d.ID] = &cp
	return nil
}

func (f *fakeDummies) GetByID(ctx context.Context, q database.Queryer, id string) (*repository.DummyMedicine, error) {
	d, ok := f.s.dummies[id]
	if !ok {
		return nil, errors.NotFound("dummy medicine")
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDummies) MarkReplaced(ctx context.Context, q database.Queryer, dummyID, medicineID string) error {
	d, ok := f.s.dummies[dummyID]
	if !ok {
		return errors.NotFound("dummy medicine")
	}
	d.ReplacedByID = &medicineID
	d.IsReplaced = true
	return nil
}

type fakeLedger struct{ s *fakeState }

func (f *fakeLedger) CreateMovement(ctx context.Context, q database.Queryer, m *repository.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	cp := *m
	f.s.movements = append(f.s.movements, &cp)
	return nil
}

func (f *fakeLedger) CreateDispensing(ctx context.Context, q database.Queryer, d *repository.BatchDispensing) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	cp := *d
	f.s.dispensings = append(f.s.dispensings, &cp)
	return nil
}

// fakeEnv bundles the fakes behind a fully wired DispensingService.
type fakeEnv struct {
	state         *fakeState
	dispensing    *DispensingService
	substitution  *SubstitutionService
	medicines     *fakeMedicines
	batches       *fakeBatches
	prescriptions *fakePrescriptions
	dummies       *fakeDummies
}

func newFakeEnv() *fakeEnv {
	state := newFakeState()
	tx := &fakeTx{state: state}
	log := logger.New("test", "test")

	medicines := &fakeMedicines{s: state}
	batches := &fakeBatches{s: state}
	prescriptions := &fakePrescriptions{s: state}
	dummies := &fakeDummies{s: state}
	ledger := &fakeLedger{s: state}

	return &fakeEnv{
		state:         state,
		medicines:     medicines,
		batches:       batches,
		prescriptions: prescriptions,
		dummies:       dummies,
		dispensing: NewDispensingService(
			tx, nil, medicines, batches, prescriptions, dummies, ledger, nil, log,
		),
		substitution: NewSubstitutionService(
			tx, medicines, batches, prescriptions, dummies, nil, log,
		),
	}
}

func (e *fakeEnv) addMedicine(name string, minStock int) *repository.Medicine {
	m := &repository.Medicine{
		ID:            uuid.New().String(),
		Name:          name,
		MinStockLevel: minStock,
	}
	e.state.medicines[m.ID] = m
	return m
}

func (e *fakeEnv) addBatch(medicineID, batchNumber string, available int, expiresInDays int, createdAt time.Time) *repository.MedicineBatch {
	b := &repository.MedicineBatch{
		ID:                uuid.New().String(),
		MedicineID:        medicineID,
		BatchNumber:       batchNumber,
		Quantity:          available,
		AvailableQuantity: available,
		ExpiryDate:        time.Now().UTC().AddDate(0, 0, expiresInDays),
		ShelfLocation:     "A-1",
		CreatedAt:         createdAt,
	}
	e.state.batches[b.ID] = b
	return b
}

func (e *fakeEnv) addItem(medicineID string, prescribed, dispensed int, status repository.ItemStatus) *repository.PrescriptionItem {
	p := &repository.Prescription{ID: uuid.New().String(), StudentID: "student-1", CreatedByID: "doctor-1"}
	e.state.prescriptions[p.ID] = p

	item := &repository.PrescriptionItem{
		ID:                 uuid.New().String(),
		PrescriptionID:     p.ID,
		MedicineID:         &medicineID,
		QuantityPrescribed: prescribed,
		QuantityDispensed:  dispensed,
		Status:             status,
	}
	e.state.items[item.ID] = item
	return item
}

func (e *fakeEnv) addDummyItem(dummyID string, prescribed int) *repository.PrescriptionItem {
	p := &repository.Prescription{ID: uuid.New().String(), StudentID: "student-1", CreatedByID: "doctor-1"}
	e.state.prescriptions[p.ID] = p

	item := &repository.PrescriptionItem{
		ID:                 uuid.New().String(),
		PrescriptionID:     p.ID,
		DummyMedicineID:    &dummyID,
		QuantityPrescribed: prescribed,
		Status:             repository.StatusPending,
	}
	e.state.items[item.ID] = item
	return item
}
