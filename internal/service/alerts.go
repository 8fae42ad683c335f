package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pharmapos/backend/internal/alert"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const alertSummaryCacheKey = "pharmapos:alerts:summary"

// ScanAlerts runs one derivation pass over all batches and medicines
// and persists the resulting alert writes. Safe to call repeatedly.
func (s *Service) ScanAlerts(ctx context.Context) (domain.AlertScanResponse, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.AlertScanResponse{}, err
	}
	engine := alert.NewEngine(settings.ExpiryNoticeDays, settings.ExpiryWarningDays, settings.ExpiryCriticalDays)
	now := time.Now().UTC()

	batches, err := s.repo.ListBatches(ctx, "", true, 0)
	if err != nil {
		return domain.AlertScanResponse{}, err
	}
	medicines, err := s.repo.ListMedicines(ctx, true)
	if err != nil {
		return domain.AlertScanResponse{}, err
	}
	medicineMap := make(map[string]domain.Medicine, len(medicines))
	medicineIDs := make([]string, 0, len(medicines))
	for _, med := range medicines {
		medicineMap[med.ID] = med
		medicineIDs = append(medicineIDs, med.ID)
	}
	stockMap, err := s.repo.GetStockMap(ctx, medicineIDs, now)
	if err != nil {
		return domain.AlertScanResponse{}, err
	}

	activeExpiry, err := s.repo.ListExpiryAlerts(ctx, domain.AlertStatusActive, 0)
	if err != nil {
		return domain.AlertScanResponse{}, err
	}
	expiryByBatch := make(map[string]domain.ExpiryAlert, len(activeExpiry))
	for _, a := range activeExpiry {
		expiryByBatch[a.BatchID] = a
	}

	activeLowStock, err := s.repo.ListLowStockAlerts(ctx, domain.AlertStatusActive, 0)
	if err != nil {
		return domain.AlertScanResponse{}, err
	}
	lowStockByMedicine := make(map[string]domain.LowStockAlert, len(activeLowStock))
	for _, a := range activeLowStock {
		lowStockByMedicine[a.MedicineID] = a
	}

	expiryResult := engine.ScanExpiry(batches, medicineMap, expiryByBatch, now)
	for _, upsert := range expiryResult.Upserts {
		if _, err := s.repo.UpsertExpiryAlert(ctx, upsert); err != nil {
			return domain.AlertScanResponse{}, err
		}
	}
	for _, alertID := range expiryResult.ResolveIDs {
		if _, err := s.repo.ResolveExpiryAlert(ctx, alertID, now); err != nil {
			return domain.AlertScanResponse{}, err
		}
	}

	lowStockResult := engine.ScanLowStock(medicines, stockMap, lowStockByMedicine, now)
	for _, upsert := range lowStockResult.Upserts {
		if _, err := s.repo.UpsertLowStockAlert(ctx, upsert); err != nil {
			return domain.AlertScanResponse{}, err
		}
	}
	for _, alertID := range lowStockResult.ResolveIDs {
		if _, err := s.repo.ResolveLowStockAlert(ctx, alertID, now); err != nil {
			return domain.AlertScanResponse{}, err
		}
	}

	s.invalidateAlertSummary(ctx)

	expiryAlerts, err := s.repo.ListExpiryAlerts(ctx, domain.AlertStatusActive, 0)
	if err != nil {
		return domain.AlertScanResponse{}, err
	}
	lowStockAlerts, err := s.repo.ListLowStockAlerts(ctx, domain.AlertStatusActive, 0)
	if err != nil {
		return domain.AlertScanResponse{}, err
	}

	return domain.AlertScanResponse{
		ExpiryAlerts:   expiryAlerts,
		LowStockAlerts: lowStockAlerts,
		ScannedAt:      now.Format(time.RFC3339),
	}, nil
}

func (s *Service) ListExpiryAlerts(ctx context.Context, status string, limit int) ([]domain.ExpiryAlert, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListExpiryAlerts(ctx, normalizeAlertStatus(status), limit)
}

func (s *Service) ListLowStockAlerts(ctx context.Context, status string, limit int) ([]domain.LowStockAlert, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListLowStockAlerts(ctx, normalizeAlertStatus(status), limit)
}

// ResolveExpiryAlert acknowledges an alert. Resolving twice is a no-op.
func (s *Service) ResolveExpiryAlert(ctx context.Context, alertID string) (domain.ExpiryAlert, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role == "" {
		return domain.ExpiryAlert{}, fmt.Errorf("authentication required")
	}
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return domain.ExpiryAlert{}, store.ErrInvalidInput
	}

	resolved, err := s.repo.ResolveExpiryAlert(ctx, alertID, time.Now().UTC())
	if err != nil {
		return domain.ExpiryAlert{}, err
	}
	s.invalidateAlertSummary(ctx)
	s.logAudit(ctx, "alert_resolve", "expiry_alert", resolved.ID, fmt.Sprintf("batch=%s", resolved.BatchID))
	return *resolved, nil
}

func (s *Service) ResolveLowStockAlert(ctx context.Context, alertID string) (domain.LowStockAlert, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role == "" {
		return domain.LowStockAlert{}, fmt.Errorf("authentication required")
	}
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return domain.LowStockAlert{}, store.ErrInvalidInput
	}

	resolved, err := s.repo.ResolveLowStockAlert(ctx, alertID, time.Now().UTC())
	if err != nil {
		return domain.LowStockAlert{}, err
	}
	s.invalidateAlertSummary(ctx)
	s.logAudit(ctx, "alert_resolve", "low_stock_alert", resolved.ID, fmt.Sprintf("medicine=%s", resolved.MedicineID))
	return *resolved, nil
}

// AlertSummary returns active alert counts, served from cache when warm.
func (s *Service) AlertSummary(ctx context.Context) (domain.AlertSummary, error) {
	if cached, ok, err := s.alertCache.Get(ctx, alertSummaryCacheKey); err == nil && ok {
		return *cached, nil
	}

	expiryAlerts, err := s.repo.ListExpiryAlerts(ctx, domain.AlertStatusActive, 0)
	if err != nil {
		return domain.AlertSummary{}, err
	}
	lowStockAlerts, err := s.repo.ListLowStockAlerts(ctx, domain.AlertStatusActive, 0)
	if err != nil {
		return domain.AlertSummary{}, err
	}

	summary := alert.Summarize(expiryAlerts, lowStockAlerts)
	if err := s.alertCache.Set(ctx, alertSummaryCacheKey, &summary, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: failed to cache alert summary: %v", err)
	}
	return summary, nil
}

// resolveRecoveredLowStock closes the medicine's active low-stock alert
// when incoming stock lifts it above the reorder level. Failures are
// logged, not returned; the next scan would close it anyway.
func (s *Service) resolveRecoveredLowStock(ctx context.Context, medicineID string) {
	active, err := s.repo.GetActiveLowStockAlertByMedicine(ctx, medicineID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: low stock alert lookup for %s: %v", medicineID, err)
		}
		return
	}

	med, err := s.repo.GetMedicineByID(ctx, medicineID)
	if err != nil {
		log.Printf("[service] WARN: medicine lookup for %s: %v", medicineID, err)
		return
	}
	stockMap, err := s.repo.GetStockMap(ctx, []string{medicineID}, time.Now().UTC())
	if err != nil {
		log.Printf("[service] WARN: stock lookup for %s: %v", medicineID, err)
		return
	}
	if stockMap[medicineID] <= med.ReorderLevel {
		return
	}

	if _, err := s.repo.ResolveLowStockAlert(ctx, active.ID, time.Now().UTC()); err != nil {
		log.Printf("[service] WARN: resolve low stock alert %s: %v", active.ID, err)
		return
	}
	s.invalidateAlertSummary(ctx)
}

func (s *Service) invalidateAlertSummary(ctx context.Context) {
	if err := s.alertCache.Invalidate(ctx, alertSummaryCacheKey); err != nil {
		log.Printf("[service] WARN: failed to invalidate alert summary cache: %v", err)
	}
}

func normalizeAlertStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case domain.AlertStatusActive:
		return domain.AlertStatusActive
	case domain.AlertStatusResolved:
		return domain.AlertStatusResolved
	default:
		return ""
	}
}
