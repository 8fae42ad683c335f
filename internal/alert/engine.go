// Package alert derives expiry and low-stock alerts from batch state.
//
// Derivation is idempotent: one active alert per batch (expiry) or per
// medicine (low stock), severity escalates in place and never regresses,
// resolved alerts stay resolved.
package alert

import (
	"fmt"
	"time"

	"pharmapos/backend/internal/domain"
)

type Engine struct {
	noticeDays   int
	warningDays  int
	criticalDays int
}

func NewEngine(noticeDays int, warningDays int, criticalDays int) *Engine {
	if noticeDays <= 0 {
		noticeDays = 120
	}
	if warningDays <= 0 {
		warningDays = 90
	}
	if criticalDays <= 0 {
		criticalDays = 30
	}
	if warningDays > noticeDays {
		warningDays = noticeDays
	}
	if criticalDays > warningDays {
		criticalDays = warningDays
	}
	return &Engine{noticeDays: noticeDays, warningDays: warningDays, criticalDays: criticalDays}
}

// ExpirySeverity classifies a batch expiry date against the scan day.
// Only the most severe applicable level is returned; ok is false when
// the batch is outside the notice window.
func (e *Engine) ExpirySeverity(expiry time.Time, asOf time.Time) (severity string, daysToExpiry int, ok bool) {
	today := dateUTC(asOf)
	expiryDay := dateUTC(expiry)
	days := int(expiryDay.Sub(today).Hours() / 24)

	switch {
	case days < 0:
		return domain.ExpirySeverityExpired, days, true
	case days <= e.criticalDays:
		return domain.ExpirySeverityCritical, days, true
	case days <= e.warningDays:
		return domain.ExpirySeverityWarning, days, true
	case days <= e.noticeDays:
		return domain.ExpirySeverityNotice, days, true
	default:
		return "", days, false
	}
}

type ExpiryScanResult struct {
	Upserts    []domain.ExpiryAlert
	ResolveIDs []string
}

// ScanExpiry walks live batches and computes the alert writes a scan
// implies. existing maps batch ID to its active alert. Depleted batches
// get their alert resolved; severity only ever moves up.
func (e *Engine) ScanExpiry(
	batches []domain.Batch,
	medicines map[string]domain.Medicine,
	existing map[string]domain.ExpiryAlert,
	asOf time.Time,
) ExpiryScanResult {
	var result ExpiryScanResult

	for _, batch := range batches {
		current, hasAlert := existing[batch.ID]

		if batch.QtyAvailable < 1 {
			if hasAlert {
				result.ResolveIDs = append(result.ResolveIDs, current.ID)
			}
			continue
		}
		if batch.ExpiryDate == nil {
			continue
		}

		severity, days, ok := e.ExpirySeverity(*batch.ExpiryDate, asOf)
		if !ok {
			continue
		}

		name := batch.MedicineID
		if med, found := medicines[batch.MedicineID]; found {
			name = med.Name
		}

		if hasAlert {
			if severityRank(severity) <= severityRank(current.Severity) && current.DaysToExpiry == days {
				continue
			}
			if severityRank(severity) < severityRank(current.Severity) {
				severity = current.Severity
			}
			current.Severity = severity
			current.DaysToExpiry = days
			current.Message = expiryMessage(name, batch.BatchNumber, severity, days)
			current.UpdatedAt = asOf.UTC()
			result.Upserts = append(result.Upserts, current)
			continue
		}

		result.Upserts = append(result.Upserts, domain.ExpiryAlert{
			BatchID:      batch.ID,
			MedicineID:   batch.MedicineID,
			MedicineName: name,
			BatchNumber:  batch.BatchNumber,
			Severity:     severity,
			Status:       domain.AlertStatusActive,
			DaysToExpiry: days,
			Message:      expiryMessage(name, batch.BatchNumber, severity, days),
			CreatedAt:    asOf.UTC(),
			UpdatedAt:    asOf.UTC(),
		})
	}

	return result
}

type LowStockScanResult struct {
	Upserts    []domain.LowStockAlert
	ResolveIDs []string
}

// ScanLowStock compares aggregated stock per medicine against its
// reorder level. Stock recovering above the level resolves the alert.
func (e *Engine) ScanLowStock(
	medicines []domain.Medicine,
	stockMap map[string]int,
	existing map[string]domain.LowStockAlert,
	asOf time.Time,
) LowStockScanResult {
	var result LowStockScanResult

	for _, med := range medicines {
		if !med.Active {
			continue
		}
		stock := stockMap[med.ID]
		current, hasAlert := existing[med.ID]

		if stock > med.ReorderLevel {
			if hasAlert {
				result.ResolveIDs = append(result.ResolveIDs, current.ID)
			}
			continue
		}

		severity := domain.LowStockSeverityLow
		if stock == 0 {
			severity = domain.LowStockSeverityOutOfStock
		}

		if hasAlert {
			if severityRank(severity) <= severityRank(current.Severity) && current.StockQty == stock {
				continue
			}
			if severityRank(severity) < severityRank(current.Severity) {
				severity = current.Severity
			}
			current.Severity = severity
			current.StockQty = stock
			current.ReorderLevel = med.ReorderLevel
			current.ReorderQty = ReorderQty(med, stock)
			current.Message = lowStockMessage(med.Name, severity, stock, med.ReorderLevel)
			current.UpdatedAt = asOf.UTC()
			result.Upserts = append(result.Upserts, current)
			continue
		}

		result.Upserts = append(result.Upserts, domain.LowStockAlert{
			MedicineID:   med.ID,
			MedicineName: med.Name,
			Severity:     severity,
			Status:       domain.AlertStatusActive,
			StockQty:     stock,
			ReorderLevel: med.ReorderLevel,
			ReorderQty:   ReorderQty(med, stock),
			Message:      lowStockMessage(med.Name, severity, stock, med.ReorderLevel),
			CreatedAt:    asOf.UTC(),
			UpdatedAt:    asOf.UTC(),
		})
	}

	return result
}

// Summarize counts active alerts by class.
func Summarize(expiry []domain.ExpiryAlert, lowStock []domain.LowStockAlert) domain.AlertSummary {
	var summary domain.AlertSummary
	for _, alert := range expiry {
		if alert.Status != domain.AlertStatusActive {
			continue
		}
		switch alert.Severity {
		case domain.ExpirySeverityExpired:
			summary.ExpiredBatches++
		case domain.ExpirySeverityCritical:
			summary.CriticalExpiry++
		case domain.ExpirySeverityWarning:
			summary.WarningExpiry++
		case domain.ExpirySeverityNotice:
			summary.NoticeExpiry++
		}
		summary.ActiveAlerts++
	}
	for _, alert := range lowStock {
		if alert.Status != domain.AlertStatusActive {
			continue
		}
		switch alert.Severity {
		case domain.LowStockSeverityOutOfStock:
			summary.OutOfStock++
		case domain.LowStockSeverityLow:
			summary.LowStock++
		}
		summary.ActiveAlerts++
	}
	return summary
}

func severityRank(severity string) int {
	switch severity {
	case domain.ExpirySeverityExpired, domain.LowStockSeverityOutOfStock:
		return 4
	case domain.ExpirySeverityCritical:
		return 3
	case domain.ExpirySeverityWarning, domain.LowStockSeverityLow:
		return 2
	case domain.ExpirySeverityNotice:
		return 1
	default:
		return 0
	}
}

func expiryMessage(name string, batchNumber string, severity string, days int) string {
	switch severity {
	case domain.ExpirySeverityExpired:
		return fmt.Sprintf("%s batch %s expired %d day(s) ago", name, batchNumber, -days)
	case domain.ExpirySeverityCritical:
		return fmt.Sprintf("%s batch %s expires in %d day(s)", name, batchNumber, days)
	default:
		return fmt.Sprintf("%s batch %s expires in %d day(s)", name, batchNumber, days)
	}
}

// ReorderQty is the suggested replenishment for a medicine at the given
// stock. A configured reorder quantity wins; otherwise top up to twice
// the reorder level.
func ReorderQty(med domain.Medicine, stock int) int {
	if med.ReorderQty > 0 {
		return med.ReorderQty
	}
	qty := med.ReorderLevel*2 - stock
	if qty < 1 {
		qty = 1
	}
	return qty
}

func lowStockMessage(name string, severity string, stock int, reorderLevel int) string {
	if severity == domain.LowStockSeverityOutOfStock {
		return fmt.Sprintf("%s is out of stock", name)
	}
	return fmt.Sprintf("%s stock %d at or below reorder level %d", name, stock, reorderLevel)
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}
