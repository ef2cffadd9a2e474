package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/config"
	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/httputil"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

// MedicineHandler handles medicine catalog endpoints
type MedicineHandler struct {
	db        *database.DB
	medicines *repository.MedicineRepository
	batches   *repository.BatchRepository
	ledger    *repository.LedgerRepository
	cfg       config.PharmacyConfig
	logger    *logger.Logger
}

// NewMedicineHandler creates a new medicine handler
func NewMedicineHandler(
	db *database.DB,
	medicines *repository.MedicineRepository,
	batches *repository.BatchRepository,
	ledger *repository.LedgerRepository,
	cfg config.PharmacyConfig,
	log *logger.Logger,
) *MedicineHandler {
	return &MedicineHandler{
		db:        db,
		medicines: medicines,
		batches:   batches,
		ledger:    ledger,
		cfg:       cfg,
		logger:    log,
	}
}

// Create creates a new medicine
func (h *MedicineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string   `json:"name" validate:"required"`
		GenericName   *string  `json:"generic_name"`
		Dosage        *string  `json:"dosage"`
		Unit          *string  `json:"unit"`
		MinStockLevel *int     `json:"min_stock_level" validate:"omitempty,min=0"`
		Supplier      *string  `json:"supplier"`
		CostPerUnit   *float64 `json:"cost_per_unit" validate:"omitempty,min=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	minStock := h.cfg.DefaultMinStock
	if req.MinStockLevel != nil {
		minStock = *req.MinStockLevel
	}

	medicine := &repository.Medicine{
		Name:          req.Name,
		GenericName:   req.GenericName,
		Dosage:        req.Dosage,
		Unit:          req.Unit,
		MinStockLevel: minStock,
		Supplier:      req.Supplier,
		CostPerUnit:   req.CostPerUnit,
	}
	if err := h.medicines.Create(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, medicine)
}

// Get gets a medicine by ID
func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	medicine, err := h.medicines.GetByID(r.Context(), h.db, id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// List lists medicines, optionally filtered to those at or below their
// minimum stock level.
func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	lowStockOnly := r.URL.Query().Get("low_stock") == "true"

	medicines, total, err := h.medicines.List(r.Context(), page, perPage, lowStockOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, medicines, paginationMeta(page, perPage, total))
}

// Update updates a medicine's descriptive fields
func (h *MedicineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	medicine, err := h.medicines.GetByID(r.Context(), h.db, id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req struct {
		GenericName   *string  `json:"generic_name"`
		Dosage        *string  `json:"dosage"`
		Unit          *string  `json:"unit"`
		MinStockLevel *int     `json:"min_stock_level" validate:"omitempty,min=0"`
		Supplier      *string  `json:"supplier"`
		CostPerUnit   *float64 `json:"cost_per_unit" validate:"omitempty,min=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if req.GenericName != nil {
		medicine.GenericName = req.GenericName
	}
	if req.Dosage != nil {
		medicine.Dosage = req.Dosage
	}
	if req.Unit != nil {
		medicine.Unit = req.Unit
	}
	if req.MinStockLevel != nil {
		medicine.MinStockLevel = *req.MinStockLevel
	}
	if req.Supplier != nil {
		medicine.Supplier = req.Supplier
	}
	if req.CostPerUnit != nil {
		medicine.CostPerUnit = req.CostPerUnit
	}

	if err := h.medicines.Update(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// ListBatches lists all batches of a medicine, expired included
func (h *MedicineHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batches, err := h.batches.ListByMedicine(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Movements lists a medicine's stock movement history, newest first
func (h *MedicineHandler) Movements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, perPage := pagination(r)
	movementType := r.URL.Query().Get("type")

	movements, total, err := h.ledger.ListMovementsByMedicine(r.Context(), id, movementType, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, paginationMeta(page, perPage, total))
}

func pagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func paginationMeta(page, perPage int, total int64) *httputil.Meta {
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}
