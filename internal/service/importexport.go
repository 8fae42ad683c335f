package service

import (
	"context"
	"fmt"
	"io"

	"pharmapos/backend/internal/csvio"
	"pharmapos/backend/internal/domain"
)

// ImportMedicines loads a catalog CSV. Rows that fail validation or
// creation are reported back with their line numbers; good rows land
// regardless.
func (s *Service) ImportMedicines(ctx context.Context, r io.Reader) (domain.ImportResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.ImportResult{}, fmt.Errorf("admin role required")
	}

	requests, rowErrors, err := csvio.ParseMedicines(r)
	if err != nil {
		return domain.ImportResult{}, err
	}

	result := domain.ImportResult{RowErrors: rowErrors, Skipped: len(rowErrors)}
	// Parse errors keep their line numbers; creation failures report by name.
	for _, req := range requests {
		if _, err := s.CreateMedicine(ctx, req); err != nil {
			result.Skipped++
			result.RowErrors = append(result.RowErrors, domain.ImportRowError{
				Message: fmt.Sprintf("%s: %v", req.Name, err),
			})
			continue
		}
		result.Imported++
	}

	s.logAudit(ctx, "medicine_import", "medicine", "csv", fmt.Sprintf("imported=%d,skipped=%d", result.Imported, result.Skipped))
	return result, nil
}

// WriteMedicineTemplate emits an empty import template.
func (s *Service) WriteMedicineTemplate(w io.Writer) error {
	return csvio.WriteMedicineTemplate(w)
}

// ExportMedicines writes the full catalog, inactive items included.
func (s *Service) ExportMedicines(ctx context.Context, w io.Writer) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}

	medicines, err := s.repo.ListMedicines(ctx, true)
	if err != nil {
		return err
	}
	return csvio.ExportMedicines(w, medicines)
}

// ExportBatches writes the current batch inventory.
func (s *Service) ExportBatches(ctx context.Context, w io.Writer, includeDepleted bool) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePharmacist) {
		return fmt.Errorf("admin or pharmacist role required")
	}

	batches, err := s.repo.ListBatches(ctx, "", includeDepleted, 0)
	if err != nil {
		return err
	}
	medicineIDs := make([]string, 0, len(batches))
	for _, batch := range batches {
		medicineIDs = append(medicineIDs, batch.MedicineID)
	}
	medicines, err := s.repo.GetMedicinesByIDs(ctx, medicineIDs)
	if err != nil {
		return err
	}
	return csvio.ExportBatches(w, batches, medicines)
}
