// Package fefo implements first-expiry-first-out batch allocation.
package fefo

import (
	"slices"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// Compare orders batches for dispensing: earliest expiry first, batches
// without an expiry date last, ties broken by receipt time then ID.
func Compare(a domain.Batch, b domain.Batch) int {
	if a.ExpiryDate == nil && b.ExpiryDate != nil {
		return 1
	}
	if a.ExpiryDate != nil && b.ExpiryDate == nil {
		return -1
	}
	if a.ExpiryDate != nil && b.ExpiryDate != nil {
		if a.ExpiryDate.Before(*b.ExpiryDate) {
			return -1
		}
		if a.ExpiryDate.After(*b.ExpiryDate) {
			return 1
		}
	}
	if a.ReceivedAt.Before(b.ReceivedAt) {
		return -1
	}
	if a.ReceivedAt.After(b.ReceivedAt) {
		return 1
	}
	return cmpString(a.ID, b.ID)
}

// Sort orders batches in place per Compare.
func Sort(batches []domain.Batch) {
	slices.SortFunc(batches, Compare)
}

// Usable reports whether a batch can serve stock as of the given day.
func Usable(batch domain.Batch, asOf time.Time) bool {
	if batch.QtyAvailable < 1 {
		return false
	}
	if batch.ExpiryDate != nil && batch.ExpiryDate.Before(dateUTC(asOf)) {
		return false
	}
	return true
}

// Plan walks batches in FEFO order and allocates qty across them,
// spilling to the next batch when one is exhausted. Expired and empty
// batches are skipped. Returns store.ErrInsufficientStock when the
// usable batches cannot cover qty.
func Plan(batches []domain.Batch, qty int, asOf time.Time) ([]domain.BatchAllocation, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}

	ordered := make([]domain.Batch, len(batches))
	copy(ordered, batches)
	Sort(ordered)

	allocations := make([]domain.BatchAllocation, 0, 2)
	remaining := qty
	for _, batch := range ordered {
		if remaining == 0 {
			break
		}
		if !Usable(batch, asOf) {
			continue
		}
		used := remaining
		if used > batch.QtyAvailable {
			used = batch.QtyAvailable
		}
		allocations = append(allocations, domain.BatchAllocation{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Qty:         used,
			ExpiryDate:  batch.ExpiryDate,
		})
		remaining -= used
	}
	if remaining > 0 {
		return nil, store.ErrInsufficientStock
	}
	return allocations, nil
}

// ValidatePick reports whether dispensing from pickedBatchID respects
// FEFO order: no other usable batch may sort strictly earlier.
func ValidatePick(batches []domain.Batch, pickedBatchID string, asOf time.Time) bool {
	var picked *domain.Batch
	for i := range batches {
		if batches[i].ID == pickedBatchID {
			picked = &batches[i]
			break
		}
	}
	if picked == nil || !Usable(*picked, asOf) {
		return false
	}
	for _, batch := range batches {
		if batch.ID == pickedBatchID || !Usable(batch, asOf) {
			continue
		}
		if Compare(batch, *picked) < 0 {
			return false
		}
	}
	return true
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
