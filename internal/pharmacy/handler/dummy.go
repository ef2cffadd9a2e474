package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/httputil"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

// DummyMedicineHandler handles placeholder medicine endpoints
type DummyMedicineHandler struct {
	db      *database.DB
	dummies *repository.DummyMedicineRepository
	logger  *logger.Logger
}

// NewDummyMedicineHandler creates a new dummy medicine handler
func NewDummyMedicineHandler(db *database.DB, dummies *repository.DummyMedicineRepository, log *logger.Logger) *DummyMedicineHandler {
	return &DummyMedicineHandler{db: db, dummies: dummies, logger: log}
}

// ListUnreplaced lists the placeholders still awaiting substitution. This is
// the pharmacist's procurement worklist.
func (h *DummyMedicineHandler) ListUnreplaced(w http.ResponseWriter, r *http.Request) {
	dummies, err := h.dummies.ListUnreplaced(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dummies)
}

// Get gets a placeholder medicine by ID
func (h *DummyMedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dummy, err := h.dummies.GetByID(r.Context(), h.db, id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dummy)
}
