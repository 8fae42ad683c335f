package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
)

type stubPINValidator struct {
	valid string
}

func (v stubPINValidator) ValidatePharmacistPIN(pin string) bool {
	return v.valid != "" && pin == v.valid
}

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopAlertSummaryCache{}, stubPINValidator{valid: "731842"}, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func pharmacistCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "pharmacist", Role: domain.RolePharmacist})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func mustCreateMedicine(t *testing.T, svc *Service, req domain.MedicineCreateRequest) domain.Medicine {
	t.Helper()
	med, err := svc.CreateMedicine(adminCtx(), req)
	if err != nil {
		t.Fatalf("create medicine: %v", err)
	}
	return med
}

func mustReceiveBatch(t *testing.T, svc *Service, medicineID string, batchNumber string, expiry string, qty int) domain.Batch {
	t.Helper()
	batch, err := svc.ReceiveBatch(pharmacistCtx(), domain.BatchReceiveRequest{
		MedicineID:         medicineID,
		BatchNumber:        batchNumber,
		ExpiryDate:         expiry,
		Qty:                qty,
		PurchasePriceCents: 50,
	})
	if err != nil {
		t.Fatalf("receive batch: %v", err)
	}
	return batch
}

func futureDate(t *testing.T, days int) string {
	t.Helper()
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func TestLineChargesTaxOnGross(t *testing.T) {
	// 2 x 100 with 10% discount and 18% tax: tax applies to the gross
	// line total, so the cart lands at 200 - 20 + 36 = 216.
	discount, tax := lineCharges(200, 10, 18)
	if discount != 20 || tax != 36 {
		t.Fatalf("got discount=%d tax=%d, want 20/36", discount, tax)
	}
}

func TestCreateSaleComputesTotalsAndChange(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Test Tablet", Classification: "otc",
		UnitPriceCents: 100, PurchasePriceCents: 60, ReorderLevel: 5,
	})
	mustReceiveBatch(t, svc, med.ID, "TT-01", futureDate(t, 200), 50)

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		IdempotencyKey:    "sale-totals-1",
		PaymentMethod:     "cash",
		DiscountPercent:   10,
		TaxRatePercent:    18,
		CashReceivedCents: 500,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	sale := resp.Sale
	if sale.SubtotalCents != 200 || sale.DiscountCents != 20 || sale.TaxCents != 36 || sale.TotalCents != 216 {
		t.Fatalf("unexpected totals: %+v", sale)
	}
	if sale.ProfitCents != 80 {
		t.Fatalf("profit = %d, want (100-60)*2 = 80", sale.ProfitCents)
	}
	if sale.ChangeCents != 284 {
		t.Fatalf("change = %d, want 284", sale.ChangeCents)
	}
	if sale.InvoiceNumber == "" {
		t.Fatal("invoice number must be assigned")
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("status = %q, want %q", sale.Status, domain.SaleStatusCompleted)
	}
}

func TestCreateSalePerItemRates(t *testing.T) {
	svc := newTestService()
	discounted := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Discounted Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	plain := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Plain Tablet", Classification: "otc", UnitPriceCents: 200,
	})
	mustReceiveBatch(t, svc, discounted.ID, "DT-01", futureDate(t, 200), 50)
	mustReceiveBatch(t, svc, plain.ID, "PT-01", futureDate(t, 200), 50)

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		IdempotencyKey:    "per-item-rates-1",
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		Items: []domain.SaleLineRequest{
			{MedicineID: discounted.ID, Qty: 2, DiscountPercent: 10, TaxRatePercent: 18},
			{MedicineID: plain.ID, Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	sale := resp.Sale
	// Line one: 200 gross, 20 discount, 36 tax. Line two: 200 flat.
	if sale.SubtotalCents != 400 || sale.DiscountCents != 20 || sale.TaxCents != 36 || sale.TotalCents != 416 {
		t.Fatalf("unexpected totals: %+v", sale)
	}
	for _, item := range sale.Items {
		switch item.MedicineID {
		case discounted.ID:
			if item.DiscountPercent != 10 || item.DiscountCents != 20 || item.TaxRatePercent != 18 || item.TaxCents != 36 {
				t.Fatalf("unexpected discounted line: %+v", item)
			}
		case plain.ID:
			if item.DiscountCents != 0 || item.TaxCents != 0 {
				t.Fatalf("unexpected plain line: %+v", item)
			}
		}
	}
}

func TestCreateSaleFEFOSpillsAcrossBatches(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Spill Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	early := mustReceiveBatch(t, svc, med.ID, "SP-EARLY", futureDate(t, 30), 2)
	mid := mustReceiveBatch(t, svc, med.ID, "SP-MID", futureDate(t, 90), 5)
	mustReceiveBatch(t, svc, med.ID, "SP-LATE", futureDate(t, 300), 3)

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	allocations := resp.Sale.Items[0].Allocations
	if len(allocations) != 2 {
		t.Fatalf("expected spill into two batches, got %+v", allocations)
	}
	if allocations[0].BatchID != early.ID || allocations[0].Qty != 2 {
		t.Fatalf("first allocation should drain earliest batch: %+v", allocations[0])
	}
	if allocations[1].BatchID != mid.ID || allocations[1].Qty != 2 {
		t.Fatalf("second allocation should come from next expiry: %+v", allocations[1])
	}

	batches, err := svc.ListBatches(context.Background(), med.ID, true, 0)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	for _, batch := range batches {
		switch batch.ID {
		case early.ID:
			if batch.QtyAvailable != 0 {
				t.Fatalf("earliest batch should be drained, has %d", batch.QtyAvailable)
			}
		case mid.ID:
			if batch.QtyAvailable != 3 {
				t.Fatalf("mid batch should have 3 left, has %d", batch.QtyAvailable)
			}
		}
	}
}

func TestCreateSaleIdempotency(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Idem Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	mustReceiveBatch(t, svc, med.ID, "ID-01", futureDate(t, 100), 10)

	req := domain.SaleCreateRequest{
		IdempotencyKey:    "sale-idem-1",
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 3}},
	}

	first, err := svc.CreateSale(cashierCtx(), req)
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := svc.CreateSale(cashierCtx(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Duplicate || second.Sale.ID != first.Sale.ID {
		t.Fatalf("replay should return the original sale, got %+v", second)
	}

	stock, err := svc.StockOverview(context.Background())
	if err != nil {
		t.Fatalf("stock overview: %v", err)
	}
	for _, entry := range stock {
		if entry.Medicine.ID == med.ID && entry.TotalQty != 7 {
			t.Fatalf("stock consumed twice: %d", entry.TotalQty)
		}
	}
}

func TestCreateSaleInsufficientStock(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Scarce Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	mustReceiveBatch(t, svc, med.ID, "SC-01", futureDate(t, 100), 2)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 5}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCreateSaleRejectsShortCash(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Cash Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	mustReceiveBatch(t, svc, med.ID, "CA-01", futureDate(t, 100), 10)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		PaymentMethod:     "cash",
		CashReceivedCents: 50,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for short cash, got %v", err)
	}
}

func TestManualBatchPickStrictMode(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Strict Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	mustReceiveBatch(t, svc, med.ID, "ST-EARLY", futureDate(t, 30), 5)
	late := mustReceiveBatch(t, svc, med.ID, "ST-LATE", futureDate(t, 300), 5)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 1, BatchID: late.ID}},
	})
	if !errors.Is(err, store.ErrFEFOViolation) {
		t.Fatalf("strict mode must reject out-of-order pick, got %v", err)
	}
}

func TestManualBatchPickSuggestModeWithPIN(t *testing.T) {
	svc := newTestService()
	if _, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{FEFOMode: strPtr("suggest")}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Suggest Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	mustReceiveBatch(t, svc, med.ID, "SG-EARLY", futureDate(t, 30), 5)
	late := mustReceiveBatch(t, svc, med.ID, "SG-LATE", futureDate(t, 300), 5)

	// Without a valid PIN the pick still fails.
	_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 1, BatchID: late.ID}},
	})
	if !errors.Is(err, store.ErrFEFOViolation) {
		t.Fatalf("suggest mode without PIN must reject, got %v", err)
	}

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		PharmacistPIN:     "731842",
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 1, BatchID: late.ID}},
	})
	if err != nil {
		t.Fatalf("suggest mode with PIN: %v", err)
	}
	if !resp.Sale.FEFOOverride {
		t.Fatal("override sale must be flagged")
	}
	if !resp.Sale.Items[0].FEFOOverride {
		t.Fatal("overridden line must be flagged")
	}
	if resp.Sale.Items[0].Allocations[0].BatchID != late.ID {
		t.Fatalf("allocation should use the picked batch: %+v", resp.Sale.Items[0].Allocations)
	}
}

func TestManualPickOfEarliestBatchNeedsNoPIN(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Earliest Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	early := mustReceiveBatch(t, svc, med.ID, "EA-EARLY", futureDate(t, 30), 5)
	mustReceiveBatch(t, svc, med.ID, "EA-LATE", futureDate(t, 300), 5)

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 1, BatchID: early.ID}},
	})
	if err != nil {
		t.Fatalf("picking the FEFO batch must always pass: %v", err)
	}
	if resp.Sale.FEFOOverride {
		t.Fatal("picking the earliest batch is not an override")
	}
}

func TestVoidSaleRestocksBatches(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Void Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	batch := mustReceiveBatch(t, svc, med.ID, "VD-01", futureDate(t, 100), 10)

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		PaymentMethod:     "cash",
		CashReceivedCents: 1000,
		Items:             []domain.SaleLineRequest{{MedicineID: med.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if _, err := svc.VoidSale(cashierCtx(), domain.SaleVoidRequest{SaleID: resp.Sale.ID, Reason: "test"}); err == nil {
		t.Fatal("cashier must not void sales")
	}

	voided, err := svc.VoidSale(pharmacistCtx(), domain.SaleVoidRequest{SaleID: resp.Sale.ID, Reason: "wrong item"})
	if err != nil {
		t.Fatalf("void sale: %v", err)
	}
	if voided.Status != domain.SaleStatusVoided {
		t.Fatalf("status = %s", voided.Status)
	}

	batches, err := svc.ListBatches(context.Background(), med.ID, true, 0)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	for _, b := range batches {
		if b.ID == batch.ID && b.QtyAvailable != 10 {
			t.Fatalf("void should restock batch, has %d", b.QtyAvailable)
		}
	}

	// Voiding twice is rejected.
	if _, err := svc.VoidSale(pharmacistCtx(), domain.SaleVoidRequest{SaleID: resp.Sale.ID, Reason: "again"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("second void should fail, got %v", err)
	}
}

func TestFEFOPlanPreview(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Plan Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	mustReceiveBatch(t, svc, med.ID, "PL-EARLY", futureDate(t, 30), 2)
	mustReceiveBatch(t, svc, med.ID, "PL-LATE", futureDate(t, 300), 5)

	plan, err := svc.FEFOPlan(context.Background(), med.ID, 4)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Allocations) != 2 || plan.Allocations[0].Qty != 2 || plan.Allocations[1].Qty != 2 {
		t.Fatalf("unexpected plan: %+v", plan.Allocations)
	}

	// Preview must not consume stock.
	stock, err := svc.StockOverview(context.Background())
	if err != nil {
		t.Fatalf("stock overview: %v", err)
	}
	for _, entry := range stock {
		if entry.Medicine.ID == med.ID && entry.TotalQty != 7 {
			t.Fatalf("preview consumed stock: %d", entry.TotalQty)
		}
	}
}

func TestScanAlertsIdempotent(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Alert Tablet", Classification: "otc", UnitPriceCents: 100, ReorderLevel: 50,
	})
	mustReceiveBatch(t, svc, med.ID, "AL-01", futureDate(t, 10), 10)

	first, err := svc.ScanAlerts(adminCtx())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	second, err := svc.ScanAlerts(adminCtx())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(first.ExpiryAlerts) != len(second.ExpiryAlerts) {
		t.Fatalf("rescan changed expiry alerts: %d vs %d", len(first.ExpiryAlerts), len(second.ExpiryAlerts))
	}
	if len(first.LowStockAlerts) != len(second.LowStockAlerts) {
		t.Fatalf("rescan changed low-stock alerts: %d vs %d", len(first.LowStockAlerts), len(second.LowStockAlerts))
	}

	var target *domain.ExpiryAlert
	for i := range second.ExpiryAlerts {
		if second.ExpiryAlerts[i].MedicineID == med.ID {
			target = &second.ExpiryAlerts[i]
		}
	}
	if target == nil {
		t.Fatal("expected expiry alert for batch expiring in 10 days")
	}
	if target.Severity != domain.ExpirySeverityCritical {
		t.Fatalf("severity = %s", target.Severity)
	}

	resolved, err := svc.ResolveExpiryAlert(pharmacistCtx(), target.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	again, err := svc.ResolveExpiryAlert(pharmacistCtx(), target.ID)
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if !resolved.ResolvedAt.Equal(*again.ResolvedAt) {
		t.Fatal("resolving twice must not move the resolution time")
	}
}

func TestPurchaseReceiveCreatesBatches(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Purchase Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	supplier, err := svc.CreateSupplier(adminCtx(), domain.SupplierCreateRequest{Name: "Acme Pharma"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	purchase, err := svc.CreatePurchase(pharmacistCtx(), domain.PurchaseCreateRequest{
		SupplierID: supplier.ID,
		Items: []domain.PurchaseItem{
			{MedicineID: med.ID, Qty: 30, UnitCostCents: 55, BatchNumber: "PO-B1", ExpiryDate: futureDate(t, 365)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if purchase.TotalCents != 1650 {
		t.Fatalf("purchase total = %d", purchase.TotalCents)
	}

	received, err := svc.ReceivePurchase(pharmacistCtx(), purchase.ID)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.Status != domain.PurchaseStatusReceived {
		t.Fatalf("status = %s", received.Status)
	}

	batches, err := svc.ListBatches(context.Background(), med.ID, false, 0)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 || batches[0].QtyAvailable != 30 || batches[0].SourceType != domain.BatchSourcePurchase {
		t.Fatalf("expected purchase batch, got %+v", batches)
	}

	// Receiving twice must fail.
	if _, err := svc.ReceivePurchase(pharmacistCtx(), purchase.ID); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("double receive should fail, got %v", err)
	}
}

func TestReorderSuggestions(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Reorder Tablet", Classification: "otc", UnitPriceCents: 100, PurchasePriceCents: 40, ReorderLevel: 10,
	})
	mustReceiveBatch(t, svc, med.ID, "RO-01", futureDate(t, 100), 4)

	resp, err := svc.ReorderSuggestions(adminCtx())
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	var found *domain.ReorderSuggestion
	for i := range resp.Suggestions {
		if resp.Suggestions[i].MedicineID == med.ID {
			found = &resp.Suggestions[i]
		}
	}
	if found == nil {
		t.Fatal("expected suggestion for medicine below reorder level")
	}
	if found.RecommendedQty != 16 {
		t.Fatalf("recommended = %d, want 2*10-4", found.RecommendedQty)
	}

	// A configured reorder qty overrides the derived top-up.
	fixed := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Fixed Reorder Tablet", Classification: "otc", UnitPriceCents: 100, ReorderLevel: 10, ReorderQty: 50,
	})
	mustReceiveBatch(t, svc, fixed.ID, "RO-02", futureDate(t, 100), 4)

	resp, err = svc.ReorderSuggestions(adminCtx())
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	found = nil
	for i := range resp.Suggestions {
		if resp.Suggestions[i].MedicineID == fixed.ID {
			found = &resp.Suggestions[i]
		}
	}
	if found == nil || found.RecommendedQty != 50 {
		t.Fatalf("expected configured qty 50, got %+v", found)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	svc := newTestService()

	if _, err := svc.UpdateSettings(cashierCtx(), domain.SettingsUpdateRequest{}); err == nil {
		t.Fatal("cashier must not update settings")
	}

	bad := "sideways"
	if _, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{FEFOMode: &bad}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("bad fefo mode should fail, got %v", err)
	}

	warning := 10
	critical := 30
	if _, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{ExpiryWarningDays: &warning, ExpiryCriticalDays: &critical}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("critical window larger than warning should fail, got %v", err)
	}

	notice := 60
	warning = 90
	if _, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{ExpiryNoticeDays: &notice, ExpiryWarningDays: &warning}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("warning window larger than notice should fail, got %v", err)
	}

	notice, warning, critical = 180, 60, 14
	updated, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{
		ExpiryNoticeDays: &notice, ExpiryWarningDays: &warning, ExpiryCriticalDays: &critical,
	})
	if err != nil {
		t.Fatalf("valid windows should save: %v", err)
	}
	if updated.ExpiryNoticeDays != 180 || updated.ExpiryWarningDays != 60 || updated.ExpiryCriticalDays != 14 {
		t.Fatalf("unexpected settings: %+v", updated)
	}
}

func TestMedicinePriceCappedByMRP(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateMedicine(adminCtx(), domain.MedicineCreateRequest{
		Name: "Overpriced Tablet", Classification: "otc", UnitPriceCents: 200, MRPCents: 150,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("price above MRP should fail, got %v", err)
	}

	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Fair Tablet", Classification: "otc", UnitPriceCents: 150, MRPCents: 150,
	})
	price := int64(151)
	if _, err := svc.UpdateMedicine(adminCtx(), med.ID, domain.MedicineUpdateRequest{UnitPriceCents: &price}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("update above MRP should fail, got %v", err)
	}
}

func TestSearchMedicinesMatchesBarcode(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Scanned Tablet", Classification: "otc", UnitPriceCents: 100, Barcode: "8901234567890",
	})

	for _, query := range []string{"8901234567890", "123456"} {
		results, err := svc.SearchMedicines(context.Background(), query, 0)
		if err != nil {
			t.Fatalf("search %q: %v", query, err)
		}
		found := false
		for _, item := range results {
			if item.ID == med.ID {
				found = true
			}
		}
		if !found {
			t.Fatalf("search %q should match barcode", query)
		}
	}
}

func TestScanAlertsNoticeWindow(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Notice Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	mustReceiveBatch(t, svc, med.ID, "NT-01", futureDate(t, 110), 20)

	resp, err := svc.ScanAlerts(adminCtx())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var target *domain.ExpiryAlert
	for i := range resp.ExpiryAlerts {
		if resp.ExpiryAlerts[i].MedicineID == med.ID {
			target = &resp.ExpiryAlerts[i]
		}
	}
	if target == nil {
		t.Fatal("batch 110 days out should raise an alert with default windows")
	}
	if target.Severity != domain.ExpirySeverityNotice {
		t.Fatalf("severity = %s, want notice", target.Severity)
	}
}

func TestGetBatchIncludesActiveExpiryAlert(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Detail Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	batch := mustReceiveBatch(t, svc, med.ID, "DB-01", futureDate(t, 5), 12)

	detail, err := svc.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if detail.Batch.ID != batch.ID || detail.ExpiryAlert != nil {
		t.Fatalf("expected batch without alert before scan, got %+v", detail)
	}

	if _, err := svc.ScanAlerts(adminCtx()); err != nil {
		t.Fatalf("scan: %v", err)
	}

	detail, err = svc.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("get batch after scan: %v", err)
	}
	if detail.ExpiryAlert == nil || detail.ExpiryAlert.Severity != domain.ExpirySeverityCritical {
		t.Fatalf("expected critical alert on batch detail, got %+v", detail.ExpiryAlert)
	}

	if _, err := svc.GetBatch(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown batch should be not found, got %v", err)
	}
}

func TestReceiveBatchResolvesLowStockAlert(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Restock Tablet", Classification: "otc", UnitPriceCents: 100, ReorderLevel: 10,
	})
	mustReceiveBatch(t, svc, med.ID, "RS-01", futureDate(t, 300), 4)

	if _, err := svc.ScanAlerts(adminCtx()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	active, err := svc.ListLowStockAlerts(context.Background(), "active", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, alert := range active {
		if alert.MedicineID == med.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected low stock alert before restock")
	}

	mustReceiveBatch(t, svc, med.ID, "RS-02", futureDate(t, 300), 50)

	active, err = svc.ListLowStockAlerts(context.Background(), "active", 0)
	if err != nil {
		t.Fatalf("list after restock: %v", err)
	}
	for _, alert := range active {
		if alert.MedicineID == med.ID {
			t.Fatalf("restock above reorder level should resolve alert, got %+v", alert)
		}
	}
}

func TestExpiryRiskReportGroupsByLevel(t *testing.T) {
	svc := newTestService()
	med := mustCreateMedicine(t, svc, domain.MedicineCreateRequest{
		Name: "Risk Tablet", Classification: "otc", UnitPriceCents: 100,
	})
	mustReceiveBatch(t, svc, med.ID, "RK-CRIT", futureDate(t, 10), 5)
	mustReceiveBatch(t, svc, med.ID, "RK-WARN", futureDate(t, 60), 5)
	mustReceiveBatch(t, svc, med.ID, "RK-NOTE", futureDate(t, 110), 5)
	mustReceiveBatch(t, svc, med.ID, "RK-SAFE", futureDate(t, 300), 5)

	if _, err := svc.ExpiryRiskReport(cashierCtx()); err == nil {
		t.Fatal("cashier must not pull the expiry risk report")
	}

	report, err := svc.ExpiryRiskReport(pharmacistCtx())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	batchesIn := func(rows []domain.ExpiryRiskRow, number string) bool {
		for _, row := range rows {
			if row.BatchNumber == number {
				return true
			}
		}
		return false
	}
	if !batchesIn(report.Critical, "RK-CRIT") || !batchesIn(report.Warning, "RK-WARN") || !batchesIn(report.Notice, "RK-NOTE") {
		t.Fatalf("rows landed in wrong groups: %+v", report)
	}
	for _, group := range [][]domain.ExpiryRiskRow{report.Expired, report.Critical, report.Warning, report.Notice} {
		if batchesIn(group, "RK-SAFE") {
			t.Fatal("batch outside the notice window must not appear")
		}
	}
	if report.GeneratedAt == "" {
		t.Fatal("generated_at must be set")
	}
}

func strPtr(s string) *string {
	return &s
}
