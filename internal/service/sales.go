package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/fefo"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// lineCharges applies the pricing rules of the register: tax is charged
// on the gross line total before discount, not on the discounted amount.
func lineCharges(grossCents int64, discountPercent float64, taxRatePercent float64) (discountCents int64, taxCents int64) {
	discountCents = int64(math.Round(float64(grossCents) * discountPercent / 100))
	taxCents = int64(math.Round(float64(grossCents) * taxRatePercent / 100))
	return discountCents, taxCents
}

type saleLine struct {
	medicineID      string
	batchID         string
	qty             int
	discountPercent float64
	taxRatePercent  float64
}

func normalizeSaleLines(items []domain.SaleLineRequest) []saleLine {
	type key struct {
		medicineID      string
		batchID         string
		discountPercent float64
		taxRatePercent  float64
	}
	agg := make(map[key]int, len(items))
	order := make([]key, 0, len(items))
	for _, item := range items {
		if item.MedicineID == "" || item.Qty < 1 {
			continue
		}
		k := key{
			medicineID:      item.MedicineID,
			batchID:         strings.TrimSpace(item.BatchID),
			discountPercent: item.DiscountPercent,
			taxRatePercent:  item.TaxRatePercent,
		}
		if _, seen := agg[k]; !seen {
			order = append(order, k)
		}
		agg[k] += item.Qty
	}

	lines := make([]saleLine, 0, len(agg))
	for _, k := range order {
		lines = append(lines, saleLine{
			medicineID:      k.medicineID,
			batchID:         k.batchID,
			qty:             agg[k],
			discountPercent: k.discountPercent,
			taxRatePercent:  k.taxRatePercent,
		})
	}
	return lines
}

// FEFOPlan previews which batches a dispense of qty would draw from.
func (s *Service) FEFOPlan(ctx context.Context, medicineID string, qty int) (domain.FEFOPlanResponse, error) {
	medicineID = strings.TrimSpace(medicineID)
	if medicineID == "" || qty < 1 {
		return domain.FEFOPlanResponse{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetMedicineByID(ctx, medicineID); err != nil {
		return domain.FEFOPlanResponse{}, err
	}

	now := time.Now().UTC()
	batches, err := s.repo.ListLiveBatches(ctx, medicineID, now)
	if err != nil {
		return domain.FEFOPlanResponse{}, err
	}
	allocations, err := fefo.Plan(batches, qty, now)
	if err != nil {
		return domain.FEFOPlanResponse{}, err
	}
	return domain.FEFOPlanResponse{MedicineID: medicineID, Qty: qty, Allocations: allocations}, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResponse{}, fmt.Errorf("authentication required")
	}

	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey != "" {
		if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
			return domain.SaleResponse{Sale: *existing, Duplicate: true}, nil
		}
	}

	lines := normalizeSaleLines(req.Items)
	if len(lines) == 0 {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}
	for i := range lines {
		// Lines without their own rate inherit the request-level one.
		if lines[i].discountPercent == 0 {
			lines[i].discountPercent = req.DiscountPercent
		}
		if lines[i].taxRatePercent == 0 {
			lines[i].taxRatePercent = req.TaxRatePercent
		}
		if lines[i].discountPercent < 0 || lines[i].discountPercent > 100 {
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
		if lines[i].taxRatePercent < 0 || lines[i].taxRatePercent > 100 {
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
	}
	paymentMethod := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if paymentMethod == "" {
		paymentMethod = "cash"
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomerByID(ctx, req.CustomerID); err != nil {
			return domain.SaleResponse{}, err
		}
	}

	now := time.Now().UTC()
	fefoOverride := false
	pinChecked := false

	items := make([]domain.SaleItem, 0, len(lines))
	var subtotal int64
	var discount int64
	var tax int64
	var profit int64
	for _, line := range lines {
		medicine, err := s.repo.GetMedicineByID(ctx, line.medicineID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if !medicine.Active {
			return domain.SaleResponse{}, store.ErrNotFound
		}

		batches, err := s.repo.ListLiveBatches(ctx, line.medicineID, now)
		if err != nil {
			return domain.SaleResponse{}, err
		}

		var allocations []domain.BatchAllocation
		lineOverride := false
		if line.batchID == "" {
			allocations, err = fefo.Plan(batches, line.qty, now)
			if err != nil {
				return domain.SaleResponse{}, err
			}
		} else {
			allocations, err = s.allocateManualPick(batches, line, settings.FEFOMode, req.PharmacistPIN, &pinChecked, now)
			if err != nil {
				return domain.SaleResponse{}, err
			}
			if !fefo.ValidatePick(batches, line.batchID, now) {
				lineOverride = true
				fefoOverride = true
			}
		}

		gross := medicine.UnitPriceCents * int64(line.qty)
		lineDiscount, lineTax := lineCharges(gross, line.discountPercent, line.taxRatePercent)
		subtotal += gross
		discount += lineDiscount
		tax += lineTax
		profit += (medicine.UnitPriceCents - medicine.PurchasePriceCents) * int64(line.qty)
		items = append(items, domain.SaleItem{
			MedicineID:         medicine.ID,
			MedicineName:       medicine.Name,
			Qty:                line.qty,
			UnitPriceCents:     medicine.UnitPriceCents,
			PurchasePriceCents: medicine.PurchasePriceCents,
			GrossCents:         gross,
			DiscountPercent:    line.discountPercent,
			DiscountCents:      lineDiscount,
			TaxRatePercent:     line.taxRatePercent,
			TaxCents:           lineTax,
			FEFOOverride:       lineOverride,
			Allocations:        allocations,
		})
	}

	total := subtotal - discount + tax

	change := int64(0)
	if paymentMethod == "cash" {
		if req.CashReceivedCents < total {
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
		change = req.CashReceivedCents - total
	}

	invoiceNumber, err := s.repo.NextInvoiceNumber(ctx, now)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	sale := domain.Sale{
		ID:                xid.New("sal"),
		InvoiceNumber:     invoiceNumber,
		CustomerID:        strings.TrimSpace(req.CustomerID),
		CashierUsername:   actor.Username,
		IdempotencyKey:    req.IdempotencyKey,
		PaymentMethod:     paymentMethod,
		PaymentReference:  strings.TrimSpace(req.PaymentReference),
		SubtotalCents:     subtotal,
		DiscountPercent:   req.DiscountPercent,
		DiscountCents:     discount,
		TaxRatePercent:    req.TaxRatePercent,
		TaxCents:          tax,
		TotalCents:        total,
		ProfitCents:       profit,
		CashReceivedCents: req.CashReceivedCents,
		ChangeCents:       change,
		Status:            domain.SaleStatusCompleted,
		FEFOOverride:      fefoOverride,
		CreatedAt:         now,
		Items:             items,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		// A concurrent request with the same key may have won the race.
		if req.IdempotencyKey != "" && errors.Is(err, store.ErrInvalidInput) {
			if existing, findErr := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); findErr == nil {
				return domain.SaleResponse{Sale: *existing, Duplicate: true}, nil
			}
		}
		return domain.SaleResponse{}, err
	}

	s.invalidateAlertSummary(ctx)
	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf(
		"invoice=%s,total=%d,payment=%s,fefo_override=%t",
		created.InvoiceNumber, created.TotalCents, created.PaymentMethod, created.FEFOOverride,
	))
	return domain.SaleResponse{Sale: *created}, nil
}

// allocateManualPick serves a cashier-chosen batch. Strict mode rejects
// out-of-order picks outright; suggest mode lets a pharmacist PIN
// approve them.
func (s *Service) allocateManualPick(batches []domain.Batch, line saleLine, fefoMode string, pin string, pinChecked *bool, now time.Time) ([]domain.BatchAllocation, error) {
	var picked *domain.Batch
	for i := range batches {
		if batches[i].ID == line.batchID {
			picked = &batches[i]
			break
		}
	}
	if picked == nil {
		return nil, store.ErrNotFound
	}
	if picked.QtyAvailable < line.qty {
		return nil, store.ErrInsufficientStock
	}

	if !fefo.ValidatePick(batches, line.batchID, now) {
		if fefoMode == domain.FEFOModeStrict {
			return nil, store.ErrFEFOViolation
		}
		if !*pinChecked {
			if s.pinValidator == nil || !s.pinValidator.ValidatePharmacistPIN(pin) {
				return nil, store.ErrFEFOViolation
			}
			*pinChecked = true
		}
	}

	return []domain.BatchAllocation{{
		BatchID:     picked.ID,
		BatchNumber: picked.BatchNumber,
		Qty:         line.qty,
		ExpiryDate:  picked.ExpiryDate,
	}}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

func (s *Service) VoidSale(ctx context.Context, req domain.SaleVoidRequest) (domain.SaleVoidResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePharmacist) {
		return domain.SaleVoidResponse{}, fmt.Errorf("admin or pharmacist role required")
	}

	req.SaleID = strings.TrimSpace(req.SaleID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.SaleID == "" || req.Reason == "" {
		return domain.SaleVoidResponse{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	voided, err := s.repo.VoidSale(ctx, req.SaleID, req.Reason, now)
	if err != nil {
		return domain.SaleVoidResponse{}, err
	}

	s.invalidateAlertSummary(ctx)
	s.logAudit(ctx, "sale_void", "sale", voided.ID, fmt.Sprintf("reason=%s", req.Reason))
	return domain.SaleVoidResponse{
		SaleID:   voided.ID,
		Status:   voided.Status,
		VoidedAt: voided.VoidedAt.Format(time.RFC3339),
	}, nil
}
