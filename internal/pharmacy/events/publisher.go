package events

import (
	"context"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
	"github.com/campuscare/pharmacy-backend/pkg/messaging"
)

// PharmacyEventPublisher publishes dispensing-related events. All publishes
// are best-effort: a broker failure is logged, never propagated into the
// dispensing transaction. A nil publisher is a no-op so tests and tools can
// run without a broker.
type PharmacyEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher creates a new pharmacy event publisher
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishStockMovement publishes a ledger movement event
func (p *PharmacyEventPublisher) PublishStockMovement(ctx context.Context, m *repository.StockMovement, medicineName string) {
	if p == nil {
		return
	}

	reason := ""
	if m.Reason != nil {
		reason = *m.Reason
	}

	data := messaging.StockMovementEvent{
		MovementID:   m.ID,
		MedicineID:   m.MedicineID,
		MedicineName: medicineName,
		MovementType: m.MovementType,
		Quantity:     m.Quantity,
		Reason:       reason,
		PerformedBy:  m.UserID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockMovement, data); err != nil {
		p.logger.Error().Err(err).Str("medicine_id", m.MedicineID).Msg("failed to publish stock movement event")
	}
}

// PublishBatchReceived publishes a batch receipt event
func (p *PharmacyEventPublisher) PublishBatchReceived(ctx context.Context, b *repository.MedicineBatch, received int, merged bool) {
	if p == nil {
		return
	}

	data := messaging.BatchReceivedEvent{
		BatchID:     b.ID,
		MedicineID:  b.MedicineID,
		BatchNumber: b.BatchNumber,
		Quantity:    received,
		ExpiryDate:  b.ExpiryDate.Format("2006-01-02"),
		Merged:      merged,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to publish batch received event")
	}
}

// PublishItemDispensed publishes a successful dispense event
func (p *PharmacyEventPublisher) PublishItemDispensed(ctx context.Context, item *repository.PrescriptionItem, medicineID string, quantity, batchCount int, dispensedBy string) {
	if p == nil {
		return
	}

	data := messaging.ItemDispensedEvent{
		ItemID:         item.ID,
		PrescriptionID: item.PrescriptionID,
		MedicineID:     medicineID,
		Quantity:       quantity,
		NewStatus:      string(item.Status),
		BatchCount:     batchCount,
		DispensedBy:    dispensedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventItemDispensed, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to publish item dispensed event")
	}
}

// PublishItemOutOfStock publishes an out-of-stock transition event
func (p *PharmacyEventPublisher) PublishItemOutOfStock(ctx context.Context, item *repository.PrescriptionItem, medicineID string, requested int, allExpired bool) {
	if p == nil {
		return
	}

	data := messaging.ItemOutOfStockEvent{
		ItemID:         item.ID,
		PrescriptionID: item.PrescriptionID,
		MedicineID:     medicineID,
		Requested:      requested,
		AllExpired:     allExpired,
	}

	if err := p.publisher.Publish(ctx, messaging.EventItemOutOfStock, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to publish item out of stock event")
	}
}

// PublishItemSubstituted publishes a substitution event
func (p *PharmacyEventPublisher) PublishItemSubstituted(ctx context.Context, itemID, dummyID, medicineID string) {
	if p == nil {
		return
	}

	data := messaging.ItemSubstitutedEvent{
		ItemID:          itemID,
		DummyMedicineID: dummyID,
		RealMedicineID:  medicineID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventItemSubstituted, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", itemID).Msg("failed to publish item substituted event")
	}
}

// PublishLowStock publishes a low stock alert event
func (p *PharmacyEventPublisher) PublishLowStock(ctx context.Context, m *repository.Medicine, currentStock int) {
	if p == nil {
		return
	}

	data := messaging.LowStockAlertEvent{
		MedicineID:   m.ID,
		MedicineName: m.Name,
		CurrentStock: currentStock,
		MinStock:     m.MinStockLevel,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLowStockAlert, data); err != nil {
		p.logger.Error().Err(err).Str("medicine_id", m.ID).Msg("failed to publish low stock event")
	}
}
