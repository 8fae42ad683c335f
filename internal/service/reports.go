package service

import (
	"context"
	"fmt"
	"time"

	"pharmapos/backend/internal/alert"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// SalesReportForDate aggregates one calendar day (UTC).
func (s *Service) SalesReportForDate(ctx context.Context, date string) (domain.SalesReport, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePharmacist) {
		return domain.SalesReport{}, fmt.Errorf("admin or pharmacist role required")
	}

	day, err := parseReportDate(date)
	if err != nil {
		return domain.SalesReport{}, err
	}
	return s.repo.GetSalesReport(ctx, day, day.AddDate(0, 0, 1))
}

// ExpiryRiskReport groups stock on hand by how close each batch is to
// expiry, using the configured alert thresholds.
func (s *Service) ExpiryRiskReport(ctx context.Context) (domain.ExpiryRiskReport, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePharmacist) {
		return domain.ExpiryRiskReport{}, fmt.Errorf("admin or pharmacist role required")
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.ExpiryRiskReport{}, err
	}
	engine := alert.NewEngine(settings.ExpiryNoticeDays, settings.ExpiryWarningDays, settings.ExpiryCriticalDays)
	now := time.Now().UTC()

	batches, err := s.repo.ListBatches(ctx, "", false, 0)
	if err != nil {
		return domain.ExpiryRiskReport{}, err
	}
	medicineIDs := make([]string, 0, len(batches))
	for _, batch := range batches {
		medicineIDs = append(medicineIDs, batch.MedicineID)
	}
	medicines, err := s.repo.GetMedicinesByIDs(ctx, medicineIDs)
	if err != nil {
		return domain.ExpiryRiskReport{}, err
	}

	report := domain.ExpiryRiskReport{GeneratedAt: now.Format(time.RFC3339)}
	for _, batch := range batches {
		if batch.ExpiryDate == nil || batch.QtyAvailable < 1 {
			continue
		}
		severity, days, ok := engine.ExpirySeverity(*batch.ExpiryDate, now)
		if !ok {
			continue
		}
		name := batch.MedicineID
		if med, found := medicines[batch.MedicineID]; found {
			name = med.Name
		}
		row := domain.ExpiryRiskRow{
			BatchID:      batch.ID,
			BatchNumber:  batch.BatchNumber,
			MedicineID:   batch.MedicineID,
			MedicineName: name,
			ExpiryDate:   batch.ExpiryDate.Format("2006-01-02"),
			DaysToExpiry: days,
			QtyAvailable: batch.QtyAvailable,
			ValueCents:   batch.PurchasePriceCents * int64(batch.QtyAvailable),
		}
		switch severity {
		case domain.ExpirySeverityExpired:
			report.Expired = append(report.Expired, row)
		case domain.ExpirySeverityCritical:
			report.Critical = append(report.Critical, row)
		case domain.ExpirySeverityWarning:
			report.Warning = append(report.Warning, row)
		case domain.ExpirySeverityNotice:
			report.Notice = append(report.Notice, row)
		}
	}
	return report, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.DashboardResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role == "" {
		return domain.DashboardResponse{}, fmt.Errorf("authentication required")
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	report, err := s.repo.GetSalesReport(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	pending, err := s.repo.ListWebOrders(ctx, domain.WebOrderStatusPending, 0)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	summary, err := s.AlertSummary(ctx)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	return domain.DashboardResponse{
		TodaySalesCents:  report.NetSalesCents,
		TodaySalesCount:  report.Sales,
		TodayProfitCents: report.ProfitCents,
		PendingWebOrders: len(pending),
		AlertSummary:     summary,
		GeneratedAt:      now.Format(time.RFC3339),
	}, nil
}

func parseReportDate(date string) (time.Time, error) {
	if date == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, store.ErrInvalidInput
	}
	return parsed.UTC(), nil
}
