package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/fefo"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// ErrWebStoreDisabled maps to a plain 404 at the edge so a disabled
// storefront is indistinguishable from a missing one.
var ErrWebStoreDisabled = store.ErrNotFound

func (s *Service) webStoreSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if !settings.WebStoreEnabled {
		return domain.Settings{}, ErrWebStoreDisabled
	}
	return settings, nil
}

// StorefrontCatalog lists web-live medicines for the public shop.
func (s *Service) StorefrontCatalog(ctx context.Context, query string, limit int) ([]domain.Medicine, error) {
	if _, err := s.webStoreSettings(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.SearchMedicines(ctx, query, true, limit)
}

// QuoteCart prices a public cart: line totals, stock availability and
// the delivery fee. Delivery is free at or above the threshold.
func (s *Service) QuoteCart(ctx context.Context, req domain.CartQuoteRequest) (domain.CartQuoteResponse, error) {
	settings, err := s.webStoreSettings(ctx)
	if err != nil {
		return domain.CartQuoteResponse{}, err
	}

	items := normalizeCart(req.Items)
	if len(items) == 0 {
		return domain.CartQuoteResponse{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	medicineIDs := make([]string, 0, len(items))
	for _, item := range items {
		medicineIDs = append(medicineIDs, item.MedicineID)
	}
	medicines, err := s.repo.GetMedicinesByIDs(ctx, medicineIDs)
	if err != nil {
		return domain.CartQuoteResponse{}, err
	}
	stockMap, err := s.repo.GetStockMap(ctx, medicineIDs, now)
	if err != nil {
		return domain.CartQuoteResponse{}, err
	}

	resp := domain.CartQuoteResponse{Lines: make([]domain.CartQuoteLine, 0, len(items))}
	for _, item := range items {
		medicine, exists := medicines[item.MedicineID]
		if !exists || !medicine.Active || !medicine.WebLive {
			return domain.CartQuoteResponse{}, store.ErrNotFound
		}
		available := stockMap[item.MedicineID]
		line := domain.CartQuoteLine{
			MedicineID:     medicine.ID,
			Name:           medicine.Name,
			Qty:            item.Qty,
			UnitPriceCents: medicine.UnitPriceCents,
			LineTotalCents: medicine.UnitPriceCents * int64(item.Qty),
			AvailableQty:   available,
			InStock:        available >= item.Qty,
		}
		resp.Lines = append(resp.Lines, line)
		resp.SubtotalCents += line.LineTotalCents
	}

	resp.DeliveryFeeCents = settings.DeliveryFeeCents
	if resp.SubtotalCents >= settings.FreeDeliveryThresholdCents {
		resp.DeliveryFeeCents = 0
		resp.FreeDelivery = true
	}
	resp.TotalCents = resp.SubtotalCents + resp.DeliveryFeeCents
	return resp, nil
}

// PlaceWebOrder creates a pending order with price snapshots. Stock is
// only reserved when staff confirms the order.
func (s *Service) PlaceWebOrder(ctx context.Context, req domain.WebOrderCreateRequest) (domain.WebOrder, error) {
	quote, err := s.QuoteCart(ctx, domain.CartQuoteRequest{Items: req.Items})
	if err != nil {
		return domain.WebOrder{}, err
	}
	for _, line := range quote.Lines {
		if !line.InStock {
			return domain.WebOrder{}, store.ErrInsufficientStock
		}
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	if req.CustomerName == "" || req.CustomerPhone == "" || req.DeliveryAddress == "" {
		return domain.WebOrder{}, store.ErrInvalidInput
	}

	orderItems := make([]domain.WebOrderItem, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		orderItems = append(orderItems, domain.WebOrderItem{
			MedicineID:     line.MedicineID,
			MedicineName:   line.Name,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: line.LineTotalCents,
		})
	}

	created, err := s.repo.CreateWebOrder(ctx, domain.WebOrder{
		ID:               xid.New("wor"),
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		DeliveryAddress:  req.DeliveryAddress,
		Note:             strings.TrimSpace(req.Note),
		SubtotalCents:    quote.SubtotalCents,
		DeliveryFeeCents: quote.DeliveryFeeCents,
		TotalCents:       quote.TotalCents,
		Status:           domain.WebOrderStatusPending,
		Items:            orderItems,
	})
	if err != nil {
		return domain.WebOrder{}, err
	}
	return *created, nil
}

// TrackWebOrder is the public lookup by order number.
func (s *Service) TrackWebOrder(ctx context.Context, orderNumber string) (domain.WebOrder, error) {
	if _, err := s.webStoreSettings(ctx); err != nil {
		return domain.WebOrder{}, err
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.WebOrder{}, store.ErrInvalidInput
	}
	order, err := s.repo.GetWebOrderByNumber(ctx, orderNumber)
	if err != nil {
		return domain.WebOrder{}, err
	}
	return *order, nil
}

func (s *Service) ListWebOrders(ctx context.Context, status string, limit int) ([]domain.WebOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role == "" {
		return nil, fmt.Errorf("authentication required")
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListWebOrders(ctx, normalizeWebOrderStatus(status), limit)
}

func (s *Service) GetWebOrder(ctx context.Context, id string) (domain.WebOrder, error) {
	order, err := s.repo.GetWebOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.WebOrder{}, err
	}
	return *order, nil
}

// UpdateWebOrderStatus drives the order life cycle. Confirming
// allocates stock FEFO and books the backing sale; cancelling a
// confirmed order voids that sale so the stock returns.
func (s *Service) UpdateWebOrderStatus(ctx context.Context, id string, req domain.WebOrderStatusRequest) (domain.WebOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePharmacist) {
		return domain.WebOrder{}, fmt.Errorf("admin or pharmacist role required")
	}

	id = strings.TrimSpace(id)
	target := normalizeWebOrderStatus(req.Status)
	if id == "" || target == "" {
		return domain.WebOrder{}, store.ErrInvalidInput
	}

	order, err := s.repo.GetWebOrderByID(ctx, id)
	if err != nil {
		return domain.WebOrder{}, err
	}
	if !webOrderTransitionAllowed(order.Status, target) {
		return domain.WebOrder{}, store.ErrInvalidInput
	}
	if target == domain.WebOrderStatusCancelled && strings.TrimSpace(req.CancelReason) == "" {
		return domain.WebOrder{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	saleID := ""

	switch target {
	case domain.WebOrderStatusConfirmed:
		sale, err := s.bookWebOrderSale(ctx, order, now)
		if err != nil {
			return domain.WebOrder{}, err
		}
		saleID = sale.ID
	case domain.WebOrderStatusCancelled:
		if order.SaleID != "" {
			if _, err := s.repo.VoidSale(ctx, order.SaleID, "web order cancelled", now); err != nil {
				return domain.WebOrder{}, err
			}
		}
	}

	updated, err := s.repo.UpdateWebOrderStatus(ctx, id, target, strings.TrimSpace(req.CancelReason), saleID, now)
	if err != nil {
		return domain.WebOrder{}, err
	}

	s.invalidateAlertSummary(ctx)
	s.logAudit(ctx, "web_order_status", "web_order", updated.ID, fmt.Sprintf("status=%s", target))
	return *updated, nil
}

// bookWebOrderSale creates the POS sale backing a confirmed web order,
// using the order's price snapshots and FEFO allocation.
func (s *Service) bookWebOrderSale(ctx context.Context, order *domain.WebOrder, now time.Time) (*domain.Sale, error) {
	items := make([]domain.SaleItem, 0, len(order.Items))
	var subtotal int64
	var profit int64
	for _, orderItem := range order.Items {
		medicine, err := s.repo.GetMedicineByID(ctx, orderItem.MedicineID)
		if err != nil {
			return nil, err
		}
		batches, err := s.repo.ListLiveBatches(ctx, orderItem.MedicineID, now)
		if err != nil {
			return nil, err
		}
		allocations, err := fefo.Plan(batches, orderItem.Qty, now)
		if err != nil {
			return nil, err
		}
		subtotal += orderItem.LineTotalCents
		profit += (orderItem.UnitPriceCents - medicine.PurchasePriceCents) * int64(orderItem.Qty)
		items = append(items, domain.SaleItem{
			MedicineID:         orderItem.MedicineID,
			MedicineName:       orderItem.MedicineName,
			Qty:                orderItem.Qty,
			UnitPriceCents:     orderItem.UnitPriceCents,
			PurchasePriceCents: medicine.PurchasePriceCents,
			GrossCents:         orderItem.LineTotalCents,
			Allocations:        allocations,
		})
	}

	invoiceNumber, err := s.repo.NextInvoiceNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	actor, _ := ActorFromContext(ctx)
	return s.repo.CreateSale(ctx, domain.Sale{
		ID:              xid.New("sal"),
		InvoiceNumber:   invoiceNumber,
		CashierUsername: actor.Username,
		PaymentMethod:   "web",
		SubtotalCents:   subtotal,
		TotalCents:      subtotal + order.DeliveryFeeCents,
		ProfitCents:     profit,
		Status:          domain.SaleStatusCompleted,
		CreatedAt:       now,
		Items:           items,
	})
}

func webOrderTransitionAllowed(current string, target string) bool {
	switch current {
	case domain.WebOrderStatusPending:
		return target == domain.WebOrderStatusConfirmed || target == domain.WebOrderStatusCancelled
	case domain.WebOrderStatusConfirmed:
		return target == domain.WebOrderStatusDelivered || target == domain.WebOrderStatusCancelled
	default:
		return false
	}
}

func normalizeWebOrderStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case domain.WebOrderStatusPending:
		return domain.WebOrderStatusPending
	case domain.WebOrderStatusConfirmed:
		return domain.WebOrderStatusConfirmed
	case domain.WebOrderStatusDelivered:
		return domain.WebOrderStatusDelivered
	case domain.WebOrderStatusCancelled:
		return domain.WebOrderStatusCancelled
	default:
		return ""
	}
}
