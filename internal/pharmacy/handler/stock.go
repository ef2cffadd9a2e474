package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/service"
	"github.com/campuscare/pharmacy-backend/pkg/config"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/campuscare/pharmacy-backend/pkg/httputil"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

// StockHandler handles stock receipt, adjustment and reporting endpoints
type StockHandler struct {
	dispensing *service.DispensingService
	importer   *service.StockImporter
	batches    *repository.BatchRepository
	cfg        config.PharmacyConfig
	logger     *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(
	dispensing *service.DispensingService,
	importer *service.StockImporter,
	batches *repository.BatchRepository,
	cfg config.PharmacyConfig,
	log *logger.Logger,
) *StockHandler {
	return &StockHandler{
		dispensing: dispensing,
		importer:   importer,
		batches:    batches,
		cfg:        cfg,
		logger:     log,
	}
}

// ReceiveBatch records received stock into a batch
func (h *StockHandler) ReceiveBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MedicineID    string   `json:"medicine_id" validate:"required,uuid4"`
		BatchNumber   string   `json:"batch_number" validate:"required"`
		Quantity      int      `json:"quantity" validate:"required,min=1"`
		ExpiryDate    string   `json:"expiry_date" validate:"required"`
		ShelfLocation string   `json:"shelf_location"`
		CostPerUnit   *float64 `json:"cost_per_unit" validate:"omitempty,min=0"`
		Reason        *string  `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		httputil.Error(w, errors.BadRequest("expiry_date must be YYYY-MM-DD"))
		return
	}

	result, err := h.dispensing.ReceiveBatch(r.Context(), service.ReceiveBatchInput{
		MedicineID:    req.MedicineID,
		BatchNumber:   req.BatchNumber,
		Quantity:      req.Quantity,
		ExpiryDate:    expiry,
		ShelfLocation: req.ShelfLocation,
		CostPerUnit:   req.CostPerUnit,
		Reason:        req.Reason,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// PreviewFefo plans a dispense without executing it
func (h *StockHandler) PreviewFefo(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "id")

	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || quantity <= 0 {
		httputil.Error(w, errors.BadRequest("quantity must be a positive integer"))
		return
	}

	plan, err := h.dispensing.PreviewFefo(r.Context(), medicineID, quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, plan)
}

// AdjustLoss writes off stock from a batch
func (h *StockHandler) AdjustLoss(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req struct {
		Quantity int    `json:"quantity" validate:"required,min=1"`
		Reason   string `json:"reason" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.dispensing.AdjustLoss(r.Context(), batchID, req.Quantity, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Expiring lists batches expiring within the warning horizon. The horizon
// can be overridden per request with ?days=N.
func (h *StockHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := h.cfg.ExpiryWarningDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.Error(w, errors.BadRequest("days must be a non-negative integer"))
			return
		}
		days = parsed
	}

	batches, err := h.batches.ListExpiring(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Import imports stock receipts from a CSV request body
func (h *StockHandler) Import(w http.ResponseWriter, r *http.Request) {
	result, err := h.importer.Import(r.Context(), r.Body)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
