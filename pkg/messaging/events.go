package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Stock events
	EventStockMovement = "pharmacy.stock.movement"
	EventBatchReceived = "pharmacy.stock.batch_received"
	EventLowStockAlert = "pharmacy.alert.low_stock"
	EventBatchExpiring = "pharmacy.alert.batch_expiring"

	// Dispensing events
	EventItemDispensed   = "pharmacy.item.dispensed"
	EventItemOutOfStock  = "pharmacy.item.out_of_stock"
	EventItemSubstituted = "pharmacy.item.substituted"
)

// Exchange names
const (
	ExchangePharmacyEvents = "pharmacy.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// StockMovementEvent is published for every ledger movement (ADD/DISPENSE/LOSS)
type StockMovementEvent struct {
	MovementID   string `json:"movement_id"`
	MedicineID   string `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	MovementType string `json:"movement_type"`
	Quantity     int    `json:"quantity"`
	Reason       string `json:"reason,omitempty"`
	PerformedBy  string `json:"performed_by"`
}

// BatchReceivedEvent is published when stock is received into a batch
type BatchReceivedEvent struct {
	BatchID     string `json:"batch_id"`
	MedicineID  string `json:"medicine_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    int    `json:"quantity"`
	ExpiryDate  string `json:"expiry_date"`
	Merged      bool   `json:"merged"`
}

// ItemDispensedEvent is published after a successful dispense
type ItemDispensedEvent struct {
	ItemID         string `json:"item_id"`
	PrescriptionID string `json:"prescription_id"`
	MedicineID     string `json:"medicine_id"`
	Quantity       int    `json:"quantity"`
	NewStatus      string `json:"new_status"`
	BatchCount     int    `json:"batch_count"`
	DispensedBy    string `json:"dispensed_by"`
}

// ItemOutOfStockEvent is published when a dispense attempt finds no usable stock
type ItemOutOfStockEvent struct {
	ItemID         string `json:"item_id"`
	PrescriptionID string `json:"prescription_id"`
	MedicineID     string `json:"medicine_id"`
	Requested      int    `json:"requested"`
	AllExpired     bool   `json:"all_expired"`
}

// ItemSubstitutedEvent is published when a placeholder medicine is replaced
type ItemSubstitutedEvent struct {
	ItemID          string `json:"item_id"`
	DummyMedicineID string `json:"dummy_medicine_id"`
	RealMedicineID  string `json:"real_medicine_id"`
}

// LowStockAlertEvent is published when a medicine crosses its threshold
type LowStockAlertEvent struct {
	MedicineID   string `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	CurrentStock int    `json:"current_stock"`
	MinStock     int    `json:"min_stock"`
}
