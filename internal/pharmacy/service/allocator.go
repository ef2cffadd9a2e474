package service

import (
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/pkg/errors"
)

// Allocation is one entry of a dispense plan: draw Quantity units from the
// identified batch.
type Allocation struct {
	BatchID       string `json:"batch_id"`
	BatchNumber   string `json:"batch_number"`
	ShelfLocation string `json:"shelf_location"`
	Quantity      int    `json:"quantity"`
}

// PlanAllocation selects which batches to draw from and how much from each,
// first-expired-first-out. The input must already be the allocatable set
// (available stock, not expired) in FEFO order; the plan greedily exhausts
// each batch before touching the next.
//
// Planning is pure: it never mutates anything, and a failed plan has no
// side effects. Returns ErrInsufficientStock when the batches cannot cover
// the requested quantity.
func PlanAllocation(batches []*repository.MedicineBatch, requested int) ([]Allocation, error) {
	if requested <= 0 {
		return nil, errors.BadRequest("requested quantity must be positive")
	}

	total := 0
	for _, b := range batches {
		total += b.AvailableQuantity
	}
	if total < requested {
		return nil, errors.ErrInsufficientStock
	}

	plan := make([]Allocation, 0, len(batches))
	remaining := requested
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := remaining
		if b.AvailableQuantity < take {
			take = b.AvailableQuantity
		}
		plan = append(plan, Allocation{
			BatchID:       b.ID,
			BatchNumber:   b.BatchNumber,
			ShelfLocation: b.ShelfLocation,
			Quantity:      take,
		})
		remaining -= take
	}

	return plan, nil
}
