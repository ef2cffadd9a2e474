package service

import (
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
)

// PrescriptionStatus is the derived status of a whole prescription. It is a
// pure function of the item statuses and is never stored.
type PrescriptionStatus string

const (
	PrescriptionEmpty      PrescriptionStatus = "EMPTY"
	PrescriptionPending    PrescriptionStatus = "PENDING"
	PrescriptionPartial    PrescriptionStatus = "PARTIAL"
	PrescriptionDispensed  PrescriptionStatus = "DISPENSED"
	PrescriptionOutOfStock PrescriptionStatus = "OUT_OF_STOCK"
)

// OverallStatus derives a prescription's status from its items.
//
// OUT_OF_STOCK is reported only when every item shares that single status;
// a mixed OUT_OF_STOCK/PENDING prescription reports PENDING. Mixtures that
// are underway but not fully dispensed report PARTIAL.
func OverallStatus(items []*repository.PrescriptionItem) PrescriptionStatus {
	if len(items) == 0 {
		return PrescriptionEmpty
	}

	statuses := make(map[repository.ItemStatus]bool, 4)
	for _, item := range items {
		statuses[item.Status] = true
	}

	switch {
	case len(statuses) == 1 && statuses[repository.StatusDispensed]:
		return PrescriptionDispensed
	case len(statuses) == 1 && statuses[repository.StatusOutOfStock]:
		return PrescriptionOutOfStock
	case statuses[repository.StatusPending]:
		return PrescriptionPending
	default:
		return PrescriptionPartial
	}
}

// nextItemStatus computes the item status after dispensing quantity more units.
func nextItemStatus(item *repository.PrescriptionItem, quantity int) repository.ItemStatus {
	if item.QuantityDispensed+quantity >= item.QuantityPrescribed {
		return repository.StatusDispensed
	}
	return repository.StatusPartial
}
