package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// PINValidator checks the pharmacist override PIN. The auth layer
// provides the implementation.
type PINValidator interface {
	ValidatePharmacistPIN(pin string) bool
}

type Service struct {
	repo         store.Repository
	alertCache   cache.AlertSummaryCache
	pinValidator PINValidator
	cacheTTL     time.Duration
}

func New(repo store.Repository, alertCache cache.AlertSummaryCache, pinValidator PINValidator, cacheTTL time.Duration) *Service {
	if alertCache == nil {
		alertCache = cache.NoopAlertSummaryCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:         repo,
		alertCache:   alertCache,
		pinValidator: pinValidator,
		cacheTTL:     cacheTTL,
	}
}

func (s *Service) ListMedicines(ctx context.Context, includeInactive bool) ([]domain.Medicine, error) {
	if includeInactive {
		actor, ok := ActorFromContext(ctx)
		if !ok || actor.Role != domain.RoleAdmin {
			includeInactive = false
		}
	}
	return s.repo.ListMedicines(ctx, includeInactive)
}

func (s *Service) SearchMedicines(ctx context.Context, query string, limit int) ([]domain.Medicine, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.SearchMedicines(ctx, query, false, limit)
}

func (s *Service) GetMedicine(ctx context.Context, id string) (domain.Medicine, error) {
	medicine, err := s.repo.GetMedicineByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Medicine{}, err
	}
	return *medicine, nil
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.MedicineCreateRequest) (domain.Medicine, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Medicine{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.GenericName = strings.TrimSpace(req.GenericName)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Manufacturer = strings.TrimSpace(req.Manufacturer)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" {
		return domain.Medicine{}, store.ErrInvalidInput
	}
	if req.UnitPriceCents < 1 || req.PurchasePriceCents < 0 || req.MRPCents < 0 || req.ReorderLevel < 0 || req.ReorderQty < 0 {
		return domain.Medicine{}, store.ErrInvalidInput
	}
	// Selling above the printed maximum retail price is not allowed.
	if req.MRPCents > 0 && req.UnitPriceCents > req.MRPCents {
		return domain.Medicine{}, store.ErrInvalidInput
	}
	classification := normalizeClassification(req.Classification)
	if classification == "" {
		return domain.Medicine{}, store.ErrInvalidInput
	}
	// Prescription and controlled items never go on the web storefront.
	if classification != domain.ClassificationOTC {
		req.WebLive = false
	}

	medicine := domain.Medicine{
		ID:                 xid.New("med"),
		Name:               req.Name,
		GenericName:        req.GenericName,
		Barcode:            req.Barcode,
		Manufacturer:       req.Manufacturer,
		Category:           req.Category,
		Classification:     classification,
		UnitPriceCents:     req.UnitPriceCents,
		PurchasePriceCents: req.PurchasePriceCents,
		MRPCents:           req.MRPCents,
		ReorderLevel:       req.ReorderLevel,
		ReorderQty:         req.ReorderQty,
		Unit:               strings.TrimSpace(req.Unit),
		RackLocation:       strings.TrimSpace(req.RackLocation),
		WebLive:            req.WebLive,
		Active:             true,
	}

	created, err := s.repo.CreateMedicine(ctx, medicine)
	if err != nil {
		return domain.Medicine{}, err
	}

	s.logAudit(ctx, "medicine_create", "medicine", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.UnitPriceCents))
	return *created, nil
}

func (s *Service) UpdateMedicine(ctx context.Context, id string, req domain.MedicineUpdateRequest) (domain.Medicine, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Medicine{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Medicine{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetMedicineByID(ctx, id)
	if err != nil {
		return domain.Medicine{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Medicine{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.GenericName != nil {
		updated.GenericName = strings.TrimSpace(*req.GenericName)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Manufacturer != nil {
		updated.Manufacturer = strings.TrimSpace(*req.Manufacturer)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Classification != nil {
		classification := normalizeClassification(*req.Classification)
		if classification == "" {
			return domain.Medicine{}, store.ErrInvalidInput
		}
		updated.Classification = classification
	}
	if req.UnitPriceCents != nil {
		if *req.UnitPriceCents < 1 {
			return domain.Medicine{}, store.ErrInvalidInput
		}
		updated.UnitPriceCents = *req.UnitPriceCents
	}
	if req.PurchasePriceCents != nil {
		if *req.PurchasePriceCents < 0 {
			return domain.Medicine{}, store.ErrInvalidInput
		}
		updated.PurchasePriceCents = *req.PurchasePriceCents
	}
	if req.MRPCents != nil {
		if *req.MRPCents < 0 {
			return domain.Medicine{}, store.ErrInvalidInput
		}
		updated.MRPCents = *req.MRPCents
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return domain.Medicine{}, store.ErrInvalidInput
		}
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.ReorderQty != nil {
		if *req.ReorderQty < 0 {
			return domain.Medicine{}, store.ErrInvalidInput
		}
		updated.ReorderQty = *req.ReorderQty
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.RackLocation != nil {
		updated.RackLocation = strings.TrimSpace(*req.RackLocation)
	}
	if req.WebLive != nil {
		updated.WebLive = *req.WebLive
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if updated.MRPCents > 0 && updated.UnitPriceCents > updated.MRPCents {
		return domain.Medicine{}, store.ErrInvalidInput
	}
	if updated.Classification != domain.ClassificationOTC {
		updated.WebLive = false
	}

	saved, err := s.repo.UpdateMedicine(ctx, updated)
	if err != nil {
		return domain.Medicine{}, err
	}

	s.logAudit(ctx, "medicine_update", "medicine", saved.ID, fmt.Sprintf("active=%t,price=%d,web_live=%t", saved.Active, saved.UnitPriceCents, saved.WebLive))
	return *saved, nil
}

// ReceiveBatch registers a manually received batch outside the purchase
// flow, e.g. opening stock or a correction.
func (s *Service) ReceiveBatch(ctx context.Context, req domain.BatchReceiveRequest) (domain.Batch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePharmacist) {
		return domain.Batch{}, fmt.Errorf("admin or pharmacist role required")
	}

	req.MedicineID = strings.TrimSpace(req.MedicineID)
	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	if req.MedicineID == "" || req.BatchNumber == "" || req.Qty < 1 || req.PurchasePriceCents < 0 {
		return domain.Batch{}, store.ErrInvalidInput
	}

	var expiry *time.Time
	if req.ExpiryDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			return domain.Batch{}, store.ErrInvalidInput
		}
		normalized := parsed.UTC()
		expiry = &normalized
	}

	created, err := s.repo.CreateBatch(ctx, domain.Batch{
		MedicineID:         req.MedicineID,
		BatchNumber:        req.BatchNumber,
		ExpiryDate:         expiry,
		QtyReceived:        req.Qty,
		QtyAvailable:       req.Qty,
		PurchasePriceCents: req.PurchasePriceCents,
		SourceType:         domain.BatchSourceManual,
		ReceivedAt:         time.Now().UTC(),
	})
	if err != nil {
		return domain.Batch{}, err
	}

	s.resolveRecoveredLowStock(ctx, created.MedicineID)
	s.invalidateAlertSummary(ctx)
	s.logAudit(ctx, "batch_receive", "batch", created.ID, fmt.Sprintf("medicine=%s,qty=%d", created.MedicineID, created.QtyReceived))
	return *created, nil
}

func (s *Service) ListBatches(ctx context.Context, medicineID string, includeDepleted bool, limit int) ([]domain.Batch, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListBatches(ctx, strings.TrimSpace(medicineID), includeDepleted, limit)
}

// GetBatch returns a single batch together with its active expiry
// alert, if one exists.
func (s *Service) GetBatch(ctx context.Context, id string) (domain.BatchDetailResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.BatchDetailResponse{}, store.ErrInvalidInput
	}
	batch, err := s.repo.GetBatchByID(ctx, id)
	if err != nil {
		return domain.BatchDetailResponse{}, err
	}

	detail := domain.BatchDetailResponse{Batch: *batch}
	active, err := s.repo.GetActiveExpiryAlertByBatch(ctx, id)
	switch {
	case err == nil:
		detail.ExpiryAlert = active
	case errors.Is(err, store.ErrNotFound):
	default:
		return domain.BatchDetailResponse{}, err
	}
	return detail, nil
}

// StockOverview aggregates live batch quantities per medicine.
func (s *Service) StockOverview(ctx context.Context) ([]domain.MedicineStock, error) {
	medicines, err := s.repo.ListMedicines(ctx, false)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	items := make([]domain.MedicineStock, 0, len(medicines))
	for _, med := range medicines {
		batches, err := s.repo.ListLiveBatches(ctx, med.ID, now)
		if err != nil {
			return nil, err
		}
		entry := domain.MedicineStock{Medicine: med, BatchCount: len(batches)}
		for _, batch := range batches {
			entry.TotalQty += batch.QtyAvailable
			if batch.ExpiryDate != nil && (entry.EarliestExpiry == nil || batch.ExpiryDate.Before(*entry.EarliestExpiry)) {
				expiry := *batch.ExpiryDate
				entry.EarliestExpiry = &expiry
			}
		}
		items = append(items, entry)
	}
	return items, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Settings{}, fmt.Errorf("admin role required")
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	if req.StoreName != nil {
		name := strings.TrimSpace(*req.StoreName)
		if name == "" {
			return domain.Settings{}, store.ErrInvalidInput
		}
		settings.StoreName = name
	}
	if req.FEFOMode != nil {
		mode := strings.ToLower(strings.TrimSpace(*req.FEFOMode))
		if mode != domain.FEFOModeStrict && mode != domain.FEFOModeSuggest {
			return domain.Settings{}, store.ErrInvalidInput
		}
		settings.FEFOMode = mode
	}
	if req.ExpiryNoticeDays != nil {
		if *req.ExpiryNoticeDays < 1 {
			return domain.Settings{}, store.ErrInvalidInput
		}
		settings.ExpiryNoticeDays = *req.ExpiryNoticeDays
	}
	if req.ExpiryWarningDays != nil {
		if *req.ExpiryWarningDays < 1 {
			return domain.Settings{}, store.ErrInvalidInput
		}
		settings.ExpiryWarningDays = *req.ExpiryWarningDays
	}
	if req.ExpiryCriticalDays != nil {
		if *req.ExpiryCriticalDays < 1 {
			return domain.Settings{}, store.ErrInvalidInput
		}
		settings.ExpiryCriticalDays = *req.ExpiryCriticalDays
	}
	if req.DefaultTaxRatePercent != nil {
		if *req.DefaultTaxRatePercent < 0 || *req.DefaultTaxRatePercent > 100 {
			return domain.Settings{}, store.ErrInvalidInput
		}
		settings.DefaultTaxRatePercent = *req.DefaultTaxRatePercent
	}
	if req.WebStoreEnabled != nil {
		settings.WebStoreEnabled = *req.WebStoreEnabled
	}
	if req.DeliveryFeeCents != nil {
		if *req.DeliveryFeeCents < 0 {
			return domain.Settings{}, store.ErrInvalidInput
		}
		settings.DeliveryFeeCents = *req.DeliveryFeeCents
	}
	if req.FreeDeliveryThresholdCents != nil {
		if *req.FreeDeliveryThresholdCents < 0 {
			return domain.Settings{}, store.ErrInvalidInput
		}
		settings.FreeDeliveryThresholdCents = *req.FreeDeliveryThresholdCents
	}
	if settings.ExpiryCriticalDays > settings.ExpiryWarningDays || settings.ExpiryWarningDays > settings.ExpiryNoticeDays {
		return domain.Settings{}, store.ErrInvalidInput
	}

	saved, err := s.repo.UpdateSettings(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}

	s.logAudit(ctx, "settings_update", "settings", "global", fmt.Sprintf("fefo=%s,web_store=%t", saved.FEFOMode, saved.WebStoreEnabled))
	return *saved, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func normalizeClassification(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", domain.ClassificationOTC:
		return domain.ClassificationOTC
	case domain.ClassificationPrescription:
		return domain.ClassificationPrescription
	case domain.ClassificationControlled:
		return domain.ClassificationControlled
	default:
		return ""
	}
}

func normalizeCart(items []domain.CartItem) []domain.CartItem {
	agg := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.MedicineID == "" || item.Qty < 1 {
			continue
		}
		if _, seen := agg[item.MedicineID]; !seen {
			order = append(order, item.MedicineID)
		}
		agg[item.MedicineID] += item.Qty
	}

	normalized := make([]domain.CartItem, 0, len(agg))
	for _, medicineID := range order {
		normalized = append(normalized, domain.CartItem{MedicineID: medicineID, Qty: agg[medicineID]})
	}
	return normalized
}
