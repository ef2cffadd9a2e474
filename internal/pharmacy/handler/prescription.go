package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/service"
	"github.com/campuscare/pharmacy-backend/pkg/httputil"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

// PrescriptionHandler handles prescription and dispensing endpoints
type PrescriptionHandler struct {
	dispensing    *service.DispensingService
	substitution  *service.SubstitutionService
	prescriptions *repository.PrescriptionRepository
	ledger        *repository.LedgerRepository
	logger        *logger.Logger
}

// NewPrescriptionHandler creates a new prescription handler
func NewPrescriptionHandler(
	dispensing *service.DispensingService,
	substitution *service.SubstitutionService,
	prescriptions *repository.PrescriptionRepository,
	ledger *repository.LedgerRepository,
	log *logger.Logger,
) *PrescriptionHandler {
	return &PrescriptionHandler{
		dispensing:    dispensing,
		substitution:  substitution,
		prescriptions: prescriptions,
		ledger:        ledger,
		logger:        log,
	}
}

// prescriptionView is a prescription with its items and derived status.
type prescriptionView struct {
	*repository.Prescription
	Status service.PrescriptionStatus     `json:"status"`
	Items  []*repository.PrescriptionItem `json:"items"`
}

// Create creates a prescription. Unknown or under-stocked medicines become
// placeholder medicines behind the scenes.
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID string  `json:"student_id" validate:"required"`
		VisitID   *string `json:"visit_id"`
		Notes     *string `json:"notes"`
		Items     []struct {
			MedicineName       string   `json:"medicine_name" validate:"required"`
			GenericName        *string  `json:"generic_name"`
			Dosage             *string  `json:"dosage"`
			Unit               *string  `json:"unit"`
			Frequency          *string  `json:"frequency"`
			DurationDays       *int     `json:"duration_days" validate:"omitempty,min=1"`
			QuantityPrescribed int      `json:"quantity_prescribed" validate:"required,min=1"`
			Instructions       *string  `json:"instructions"`
			EstimatedCost      *float64 `json:"estimated_cost" validate:"omitempty,min=0"`
		} `json:"items" validate:"required,min=1,dive"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	input := service.CreatePrescriptionInput{
		StudentID: req.StudentID,
		VisitID:   req.VisitID,
		Notes:     req.Notes,
	}
	for _, it := range req.Items {
		input.Items = append(input.Items, service.PrescriptionItemInput{
			MedicineName:       it.MedicineName,
			GenericName:        it.GenericName,
			Dosage:             it.Dosage,
			Unit:               it.Unit,
			Frequency:          it.Frequency,
			DurationDays:       it.DurationDays,
			QuantityPrescribed: it.QuantityPrescribed,
			Instructions:       it.Instructions,
			EstimatedCost:      it.EstimatedCost,
		})
	}

	created, err := h.dispensing.CreatePrescription(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, created)
}

// Get gets a prescription with its items and derived status
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	prescription, err := h.prescriptions.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	items, err := h.prescriptions.ListItems(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, &prescriptionView{
		Prescription: prescription,
		Status:       service.OverallStatus(items),
		Items:        items,
	})
}

// ListByStudent lists a student's prescriptions, newest first
func (h *PrescriptionHandler) ListByStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	page, perPage := pagination(r)

	prescriptions, total, err := h.prescriptions.ListByStudent(r.Context(), studentID, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, prescriptions, paginationMeta(page, perPage, total))
}

// DispenseItem dispenses stock against a prescription item
func (h *PrescriptionHandler) DispenseItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var req struct {
		Quantity int     `json:"quantity" validate:"omitempty,min=1"`
		Notes    *string `json:"notes"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.dispensing.DispenseItem(r.Context(), itemID, req.Quantity, req.Notes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Substitute replaces a prescription item's placeholder medicine with a real one
func (h *PrescriptionHandler) Substitute(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var req struct {
		MedicineID string `json:"medicine_id" validate:"required,uuid4"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.substitution.SubstituteDummy(r.Context(), itemID, req.MedicineID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// ItemDispensings lists the batch breakdown of an item's dispensings
func (h *PrescriptionHandler) ItemDispensings(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	dispensings, err := h.ledger.ListDispensingsByItem(r.Context(), itemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dispensings)
}
