package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

// importColumns is the required CSV header, in order.
var importColumns = []string{
	"medicine_name", "batch_number", "quantity", "expiry_date", "shelf_location", "cost_per_unit",
}

// batchReceiver is the slice of DispensingService the importer needs.
type batchReceiver interface {
	ReceiveBatch(ctx context.Context, input ReceiveBatchInput) (*ReceiveBatchResult, error)
}

// ImportRowError describes why one CSV row was rejected.
type ImportRowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportResult summarizes a stock import run.
type ImportResult struct {
	Processed int              `json:"processed"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Errors    []ImportRowError `json:"errors,omitempty"`
}

// StockImporter imports stock receipts from CSV. Each row becomes one
// ReceiveBatch call with its own transaction; a bad row is reported and
// skipped, it never aborts the rest of the file.
type StockImporter struct {
	q          database.Queryer
	medicines  MedicineStore
	dispensing batchReceiver
	logger     *logger.Logger
}

// NewStockImporter creates a new stock importer
func NewStockImporter(q database.Queryer, medicines MedicineStore, dispensing batchReceiver, log *logger.Logger) *StockImporter {
	return &StockImporter{q: q, medicines: medicines, dispensing: dispensing, logger: log}
}

// Import reads CSV stock receipts from r. The first record must be the header
// medicine_name,batch_number,quantity,expiry_date,shelf_location,cost_per_unit
// with expiry dates in YYYY-MM-DD and cost_per_unit optional per row.
func (s *StockImporter) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.BadRequest("import file is empty")
	}
	if err != nil {
		return nil, errors.BadRequest(fmt.Sprintf("invalid CSV: %v", err))
	}
	if err := checkImportHeader(header); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Processed++
			result.Failed++
			result.Errors = append(result.Errors, ImportRowError{Line: line, Message: fmt.Sprintf("invalid CSV: %v", err)})
			continue
		}

		result.Processed++
		if err := s.importRow(ctx, record); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportRowError{Line: line, Message: err.Error()})
			continue
		}
		result.Succeeded++
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("stock import finished")

	return result, nil
}

func (s *StockImporter) importRow(ctx context.Context, record []string) error {
	if len(record) != len(importColumns) {
		return fmt.Errorf("expected %d columns, got %d", len(importColumns), len(record))
	}

	name := strings.TrimSpace(record[0])
	if name == "" {
		return fmt.Errorf("medicine_name is required")
	}
	batchNumber := strings.TrimSpace(record[1])
	if batchNumber == "" {
		return fmt.Errorf("batch_number is required")
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return fmt.Errorf("invalid quantity %q", record[2])
	}

	expiry, err := time.Parse("2006-01-02", strings.TrimSpace(record[3]))
	if err != nil {
		return fmt.Errorf("invalid expiry_date %q, want YYYY-MM-DD", record[3])
	}

	var costPerUnit *float64
	if raw := strings.TrimSpace(record[5]); raw != "" {
		cost, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid cost_per_unit %q", record[5])
		}
		costPerUnit = &cost
	}

	medicine, err := s.medicines.GetByName(ctx, s.q, name)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return fmt.Errorf("unknown medicine %q", name)
		}
		return err
	}

	_, err = s.dispensing.ReceiveBatch(ctx, ReceiveBatchInput{
		MedicineID:    medicine.ID,
		BatchNumber:   batchNumber,
		Quantity:      quantity,
		ExpiryDate:    expiry,
		ShelfLocation: strings.TrimSpace(record[4]),
		CostPerUnit:   costPerUnit,
	})
	return err
}

func checkImportHeader(header []string) error {
	if len(header) != len(importColumns) {
		return errors.BadRequest("import header must be " + strings.Join(importColumns, ","))
	}
	for i, col := range importColumns {
		if strings.TrimSpace(strings.ToLower(header[i])) != col {
			return errors.BadRequest("import header must be " + strings.Join(importColumns, ","))
		}
	}
	return nil
}
