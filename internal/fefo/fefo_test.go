package fefo

import (
	"errors"
	"testing"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func datePtr(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse date %s: %v", value, err)
	}
	parsed = parsed.UTC()
	return &parsed
}

func testBatch(id string, expiry *time.Time, qty int, receivedAt time.Time) domain.Batch {
	return domain.Batch{
		ID:           id,
		MedicineID:   "med-1",
		BatchNumber:  "BN-" + id,
		ExpiryDate:   expiry,
		QtyReceived:  qty,
		QtyAvailable: qty,
		ReceivedAt:   receivedAt,
	}
}

func TestPlanSpillsToNextBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batches := []domain.Batch{
		testBatch("b-late", datePtr(t, "2026-09-01"), 5, now.AddDate(0, -2, 0)),
		testBatch("b-early", datePtr(t, "2026-04-01"), 2, now.AddDate(0, -1, 0)),
		testBatch("b-mid", datePtr(t, "2026-06-01"), 3, now.AddDate(0, -3, 0)),
	}

	allocations, err := Plan(batches, 4, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocations))
	}
	if allocations[0].BatchID != "b-early" || allocations[0].Qty != 2 {
		t.Fatalf("first allocation wrong: %+v", allocations[0])
	}
	if allocations[1].BatchID != "b-mid" || allocations[1].Qty != 2 {
		t.Fatalf("second allocation wrong: %+v", allocations[1])
	}
}

func TestPlanSkipsExpiredBatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batches := []domain.Batch{
		testBatch("b-expired", datePtr(t, "2026-02-01"), 10, now.AddDate(0, -4, 0)),
		testBatch("b-good", datePtr(t, "2026-05-01"), 4, now.AddDate(0, -1, 0)),
	}

	allocations, err := Plan(batches, 3, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(allocations) != 1 || allocations[0].BatchID != "b-good" {
		t.Fatalf("expected single allocation from b-good, got %+v", allocations)
	}
}

func TestPlanExpiringTodayStillUsable(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	batches := []domain.Batch{
		testBatch("b-today", datePtr(t, "2026-03-01"), 2, now.AddDate(0, -1, 0)),
	}

	allocations, err := Plan(batches, 2, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(allocations) != 1 || allocations[0].Qty != 2 {
		t.Fatalf("expected batch expiring today to serve, got %+v", allocations)
	}
}

func TestPlanInsufficientStock(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batches := []domain.Batch{
		testBatch("b-1", datePtr(t, "2026-05-01"), 2, now.AddDate(0, -1, 0)),
	}

	if _, err := Plan(batches, 3, now); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestPlanRejectsNonPositiveQty(t *testing.T) {
	now := time.Now().UTC()
	if _, err := Plan(nil, 0, now); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCompareNilExpirySortsLast(t *testing.T) {
	now := time.Now().UTC()
	withExpiry := testBatch("b-exp", datePtr(t, "2027-01-01"), 5, now)
	noExpiry := testBatch("b-none", nil, 5, now.AddDate(0, -6, 0))

	if Compare(withExpiry, noExpiry) >= 0 {
		t.Fatal("batch with expiry should sort before batch without")
	}
	if Compare(noExpiry, withExpiry) <= 0 {
		t.Fatal("batch without expiry should sort after batch with")
	}
}

func TestCompareTieBreaksOnReceivedThenID(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expiry := datePtr(t, "2026-08-01")

	older := testBatch("b-z", expiry, 5, now.AddDate(0, -2, 0))
	newer := testBatch("b-a", expiry, 5, now)
	if Compare(older, newer) >= 0 {
		t.Fatal("older receipt should sort first on equal expiry")
	}

	first := testBatch("b-a", expiry, 5, now)
	second := testBatch("b-b", expiry, 5, now)
	if Compare(first, second) >= 0 {
		t.Fatal("ID should break full ties")
	}
}

func TestValidatePick(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batches := []domain.Batch{
		testBatch("b-early", datePtr(t, "2026-04-01"), 2, now.AddDate(0, -1, 0)),
		testBatch("b-late", datePtr(t, "2026-09-01"), 5, now.AddDate(0, -2, 0)),
	}

	if !ValidatePick(batches, "b-early", now) {
		t.Fatal("earliest batch should validate")
	}
	if ValidatePick(batches, "b-late", now) {
		t.Fatal("later batch should fail while earlier batch has stock")
	}

	// Once the earlier batch is depleted the later batch becomes valid.
	batches[0].QtyAvailable = 0
	if !ValidatePick(batches, "b-late", now) {
		t.Fatal("later batch should validate once earlier batch is empty")
	}
}

func TestValidatePickUnknownBatch(t *testing.T) {
	now := time.Now().UTC()
	if ValidatePick(nil, "missing", now) {
		t.Fatal("unknown batch should not validate")
	}
}
