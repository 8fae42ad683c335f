package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmapos/backend/internal/alert"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Supplier{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Customer{}, fmt.Errorf("authentication required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cus"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePharmacist) {
		return domain.Purchase{}, fmt.Errorf("admin or pharmacist role required")
	}

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.Purchase{}, store.ErrInvalidInput
	}
	for i := range req.Items {
		req.Items[i].MedicineID = strings.TrimSpace(req.Items[i].MedicineID)
		req.Items[i].BatchNumber = strings.TrimSpace(req.Items[i].BatchNumber)
		item := req.Items[i]
		if item.MedicineID == "" || item.BatchNumber == "" || item.Qty < 1 || item.UnitCostCents < 0 {
			return domain.Purchase{}, store.ErrInvalidInput
		}
		if item.ExpiryDate != "" {
			if _, err := time.Parse("2006-01-02", item.ExpiryDate); err != nil {
				return domain.Purchase{}, store.ErrInvalidInput
			}
		}
	}

	created, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		ID:         xid.New("pur"),
		SupplierID: req.SupplierID,
		Status:     domain.PurchaseStatusOrdered,
		CreatedAt:  time.Now().UTC(),
		Items:      req.Items,
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.logAudit(ctx, "purchase_create", "purchase", created.ID, fmt.Sprintf("supplier=%s,items=%d,total=%d", created.SupplierID, len(created.Items), created.TotalCents))
	return *created, nil
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchaseByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListPurchases(ctx, strings.ToLower(strings.TrimSpace(status)), limit)
}

// ReceivePurchase books the goods receipt: the purchase flips to
// received and every line lands as a new batch.
func (s *Service) ReceivePurchase(ctx context.Context, id string) (domain.Purchase, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePharmacist) {
		return domain.Purchase{}, fmt.Errorf("admin or pharmacist role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Purchase{}, store.ErrInvalidInput
	}

	received, err := s.repo.ReceivePurchase(ctx, id, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.Purchase{}, err
	}

	seen := map[string]bool{}
	for _, item := range received.Items {
		if seen[item.MedicineID] {
			continue
		}
		seen[item.MedicineID] = true
		s.resolveRecoveredLowStock(ctx, item.MedicineID)
	}
	s.invalidateAlertSummary(ctx)
	s.logAudit(ctx, "purchase_receive", "purchase", received.ID, fmt.Sprintf("items=%d", len(received.Items)))
	return *received, nil
}

// ReorderSuggestions lists medicines at or below their reorder level.
// The recommended quantity is the medicine's configured reorder qty,
// falling back to a top-up to twice the level.
func (s *Service) ReorderSuggestions(ctx context.Context) (domain.ReorderSuggestionResponse, error) {
	medicines, err := s.repo.ListMedicines(ctx, false)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}

	now := time.Now().UTC()
	medicineIDs := make([]string, 0, len(medicines))
	for _, med := range medicines {
		medicineIDs = append(medicineIDs, med.ID)
	}
	stockMap, err := s.repo.GetStockMap(ctx, medicineIDs, now)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}

	resp := domain.ReorderSuggestionResponse{GeneratedAt: now.Format(time.RFC3339)}
	for _, med := range medicines {
		stock := stockMap[med.ID]
		if med.ReorderLevel < 1 || stock > med.ReorderLevel {
			continue
		}
		recommended := alert.ReorderQty(med, stock)
		lastCost := med.PurchasePriceCents
		if batches, err := s.repo.ListBatches(ctx, med.ID, true, 0); err == nil && len(batches) > 0 {
			latest := batches[0]
			for _, batch := range batches {
				if batch.ReceivedAt.After(latest.ReceivedAt) {
					latest = batch
				}
			}
			if latest.PurchasePriceCents > 0 {
				lastCost = latest.PurchasePriceCents
			}
		}
		resp.Suggestions = append(resp.Suggestions, domain.ReorderSuggestion{
			MedicineID:             med.ID,
			Name:                   med.Name,
			CurrentStock:           stock,
			ReorderLevel:           med.ReorderLevel,
			RecommendedQty:         recommended,
			LastCostCents:          lastCost,
			EstimatedPurchaseCents: lastCost * int64(recommended),
		})
	}
	return resp, nil
}
