package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/fefo"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

type Store struct {
	mu                sync.RWMutex
	medicinesByID     map[string]domain.Medicine
	batchesByID       map[string]*domain.Batch
	batchesByMedicine map[string][]string
	expiryAlertsByID  map[string]*domain.ExpiryAlert
	lowStockByID      map[string]*domain.LowStockAlert
	salesByID         map[string]*domain.Sale
	salesByIdem       map[string]*domain.Sale
	invoiceSeqByDay   map[string]int
	webOrdersByID     map[string]*domain.WebOrder
	webOrdersByNumber map[string]string
	webOrderSeqByDay  map[string]int
	suppliersByID     map[string]domain.Supplier
	customersByID     map[string]domain.Customer
	purchasesByID     map[string]*domain.Purchase
	settings          domain.Settings
	auditLogs         []domain.AuditLog
	usersByUsername   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD, SEED_PHARMACIST_PASSWORD and
// SEED_CASHIER_PASSWORD. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	pharmacistPwd := envOr("SEED_PHARMACIST_PASSWORD", "pharma123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_PHARMACIST_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_PHARMACIST_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"pharmacist", pharmacistPwd, domain.RolePharmacist},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		medicinesByID:     make(map[string]domain.Medicine),
		batchesByID:       make(map[string]*domain.Batch),
		batchesByMedicine: make(map[string][]string),
		expiryAlertsByID:  make(map[string]*domain.ExpiryAlert),
		lowStockByID:      make(map[string]*domain.LowStockAlert),
		salesByID:         make(map[string]*domain.Sale),
		salesByIdem:       make(map[string]*domain.Sale),
		invoiceSeqByDay:   make(map[string]int),
		webOrdersByID:     make(map[string]*domain.WebOrder),
		webOrdersByNumber: make(map[string]string),
		webOrderSeqByDay:  make(map[string]int),
		suppliersByID:     make(map[string]domain.Supplier),
		customersByID:     make(map[string]domain.Customer),
		purchasesByID:     make(map[string]*domain.Purchase),
		settings:          defaultSettings(),
		auditLogs:         make([]domain.AuditLog, 0, 128),
		usersByUsername:   seedUsers(),
	}
}

func defaultSettings() domain.Settings {
	return domain.Settings{
		StoreName:                  "PharmaPOS Demo Pharmacy",
		FEFOMode:                   domain.FEFOModeStrict,
		ExpiryNoticeDays:           120,
		ExpiryWarningDays:          90,
		ExpiryCriticalDays:         30,
		DefaultTaxRatePercent:      0,
		WebStoreEnabled:            true,
		DeliveryFeeCents:           5000,
		FreeDeliveryThresholdCents: 500000,
		UpdatedAt:                  time.Now().UTC(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	medicines := []domain.Medicine{
		{ID: "med-paracetamol", Name: "Paracetamol 500mg", GenericName: "Paracetamol", Manufacturer: "Square", Category: "analgesic", Classification: domain.ClassificationOTC, UnitPriceCents: 120, PurchasePriceCents: 80, MRPCents: 150, ReorderLevel: 100, Unit: "tablet", RackLocation: "A1", WebLive: true, Active: true},
		{ID: "med-amoxicillin", Name: "Amoxicillin 250mg", GenericName: "Amoxicillin", Manufacturer: "Beximco", Category: "antibiotic", Classification: domain.ClassificationPrescription, UnitPriceCents: 650, PurchasePriceCents: 450, MRPCents: 700, ReorderLevel: 60, Unit: "capsule", RackLocation: "B2", WebLive: false, Active: true},
		{ID: "med-cetirizine", Name: "Cetirizine 10mg", GenericName: "Cetirizine", Manufacturer: "Incepta", Category: "antihistamine", Classification: domain.ClassificationOTC, UnitPriceCents: 300, PurchasePriceCents: 180, MRPCents: 350, ReorderLevel: 50, Unit: "tablet", RackLocation: "A3", WebLive: true, Active: true},
		{ID: "med-omeprazole", Name: "Omeprazole 20mg", GenericName: "Omeprazole", Manufacturer: "Renata", Category: "antacid", Classification: domain.ClassificationOTC, UnitPriceCents: 500, PurchasePriceCents: 320, MRPCents: 600, ReorderLevel: 80, Unit: "capsule", RackLocation: "C1", WebLive: true, Active: true},
		{ID: "med-metformin", Name: "Metformin 500mg", GenericName: "Metformin HCl", Manufacturer: "Square", Category: "antidiabetic", Classification: domain.ClassificationPrescription, UnitPriceCents: 250, PurchasePriceCents: 160, MRPCents: 300, ReorderLevel: 120, Unit: "tablet", RackLocation: "B1", WebLive: false, Active: true},
		{ID: "med-orsaline", Name: "Orsaline-N", GenericName: "Oral Rehydration Salts", Manufacturer: "SMC", Category: "rehydration", Classification: domain.ClassificationOTC, UnitPriceCents: 600, PurchasePriceCents: 480, MRPCents: 650, ReorderLevel: 40, Unit: "sachet", RackLocation: "D2", WebLive: true, Active: true},
	}
	for _, med := range medicines {
		med.CreatedAt = now
		med.UpdatedAt = now
		s.medicinesByID[med.ID] = med
	}

	seedBatches := []struct {
		medicineID  string
		batchNumber string
		expiryDays  int
		qty         int
		cost        int64
	}{
		{"med-paracetamol", "PCM-2603", 45, 300, 80},
		{"med-paracetamol", "PCM-2611", 220, 500, 78},
		{"med-amoxicillin", "AMX-2605", 80, 150, 450},
		{"med-cetirizine", "CTZ-2604", 25, 90, 180},
		{"med-omeprazole", "OMP-2608", 160, 200, 320},
		{"med-metformin", "MET-2607", 130, 400, 160},
		{"med-orsaline", "ORS-2609", 300, 120, 480},
	}
	for i, sb := range seedBatches {
		expiry := dateUTC(now).AddDate(0, 0, sb.expiryDays)
		batch := &domain.Batch{
			ID:                 fmt.Sprintf("bat-seed-%02d", i+1),
			MedicineID:         sb.medicineID,
			BatchNumber:        sb.batchNumber,
			ExpiryDate:         &expiry,
			QtyReceived:        sb.qty,
			QtyAvailable:       sb.qty,
			PurchasePriceCents: sb.cost,
			SourceType:         domain.BatchSourceManual,
			ReceivedAt:         now.AddDate(0, 0, -i*7),
		}
		s.batchesByID[batch.ID] = batch
		s.batchesByMedicine[batch.MedicineID] = append(s.batchesByMedicine[batch.MedicineID], batch.ID)
	}

	supplier := domain.Supplier{ID: "sup-seed-01", Name: "City Pharma Distributors", Phone: "+8801711000000", CreatedAt: now}
	s.suppliersByID[supplier.ID] = supplier

	return s
}

func (s *Store) ListMedicines(_ context.Context, includeInactive bool) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	medicines := make([]domain.Medicine, 0, len(s.medicinesByID))
	for _, med := range s.medicinesByID {
		if !med.Active && !includeInactive {
			continue
		}
		medicines = append(medicines, med)
	}

	slices.SortFunc(medicines, func(a, b domain.Medicine) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return medicines, nil
}

func (s *Store) CreateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if medicine.Name == "" || medicine.UnitPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if medicine.ID == "" {
		medicine.ID = xid.New("med")
	}
	if _, exists := s.medicinesByID[medicine.ID]; exists {
		return nil, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	medicine.Active = true
	medicine.CreatedAt = now
	medicine.UpdatedAt = now
	s.medicinesByID[medicine.ID] = medicine
	created := medicine
	return &created, nil
}

func (s *Store) GetMedicineByID(_ context.Context, id string) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	medicine, exists := s.medicinesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyMedicine := medicine
	return &copyMedicine, nil
}

func (s *Store) UpdateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if medicine.ID == "" || medicine.Name == "" || medicine.UnitPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	existing, exists := s.medicinesByID[medicine.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	medicine.CreatedAt = existing.CreatedAt
	medicine.UpdatedAt = time.Now().UTC()
	s.medicinesByID[medicine.ID] = medicine
	updated := medicine
	return &updated, nil
}

func (s *Store) GetMedicinesByIDs(_ context.Context, ids []string) (map[string]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Medicine, len(ids))
	for _, id := range ids {
		if med, exists := s.medicinesByID[id]; exists {
			result[id] = med
		}
	}
	return result, nil
}

func (s *Store) SearchMedicines(_ context.Context, query string, webOnly bool, limit int) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	medicines := make([]domain.Medicine, 0, 16)
	for _, med := range s.medicinesByID {
		if !med.Active {
			continue
		}
		if webOnly && !med.WebLive {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(med.Name), needle) &&
			!strings.Contains(strings.ToLower(med.GenericName), needle) &&
			!strings.Contains(strings.ToLower(med.Barcode), needle) &&
			!strings.Contains(strings.ToLower(med.Manufacturer), needle) {
			continue
		}
		medicines = append(medicines, med)
	}

	slices.SortFunc(medicines, func(a, b domain.Medicine) int {
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(medicines) > limit {
		medicines = medicines[:limit]
	}
	return medicines, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createBatchLocked(batch)
}

func (s *Store) createBatchLocked(batch domain.Batch) (*domain.Batch, error) {
	if batch.MedicineID == "" || batch.QtyReceived < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.medicinesByID[batch.MedicineID]; !exists {
		return nil, store.ErrNotFound
	}
	if batch.ID == "" {
		batch.ID = xid.New("bat")
	}
	if _, exists := s.batchesByID[batch.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if batch.QtyAvailable == 0 {
		batch.QtyAvailable = batch.QtyReceived
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}
	if batch.ExpiryDate != nil {
		normalized := dateUTC(*batch.ExpiryDate)
		batch.ExpiryDate = &normalized
	}

	stored := batch
	s.batchesByID[stored.ID] = &stored
	s.batchesByMedicine[stored.MedicineID] = append(s.batchesByMedicine[stored.MedicineID], stored.ID)
	created := stored
	return &created, nil
}

func (s *Store) GetBatchByID(_ context.Context, id string) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, exists := s.batchesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBatch := *batch
	return &copyBatch, nil
}

func (s *Store) ListBatches(_ context.Context, medicineID string, includeDepleted bool, limit int) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Batch, 0, 16)
	appendBatch := func(batch *domain.Batch) {
		if batch.QtyAvailable < 1 && !includeDepleted {
			return
		}
		result = append(result, *batch)
	}

	if medicineID != "" {
		for _, batchID := range s.batchesByMedicine[medicineID] {
			appendBatch(s.batchesByID[batchID])
		}
	} else {
		for _, batch := range s.batchesByID {
			appendBatch(batch)
		}
	}

	fefo.Sort(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListLiveBatches(_ context.Context, medicineID string, asOf time.Time) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.liveBatchesLocked(medicineID, asOf), nil
}

func (s *Store) liveBatchesLocked(medicineID string, asOf time.Time) []domain.Batch {
	result := make([]domain.Batch, 0, 8)
	for _, batchID := range s.batchesByMedicine[medicineID] {
		batch := s.batchesByID[batchID]
		if !fefo.Usable(*batch, asOf) {
			continue
		}
		result = append(result, *batch)
	}
	fefo.Sort(result)
	return result
}

func (s *Store) GetStockMap(_ context.Context, medicineIDs []string, asOf time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := medicineIDs
	if len(ids) == 0 {
		ids = make([]string, 0, len(s.medicinesByID))
		for id := range s.medicinesByID {
			ids = append(ids, id)
		}
	}

	stock := make(map[string]int, len(ids))
	for _, id := range ids {
		total := 0
		for _, batch := range s.liveBatchesLocked(id, asOf) {
			total += batch.QtyAvailable
		}
		stock[id] = total
	}
	return stock, nil
}

func (s *Store) UpsertExpiryAlert(_ context.Context, alert domain.ExpiryAlert) (*domain.ExpiryAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.BatchID == "" {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if alert.ID == "" {
		alert.ID = xid.New("xal")
		if alert.CreatedAt.IsZero() {
			alert.CreatedAt = now
		}
	}
	if alert.Status == "" {
		alert.Status = domain.AlertStatusActive
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = now
	}
	if existing, exists := s.expiryAlertsByID[alert.ID]; exists {
		alert.CreatedAt = existing.CreatedAt
	}

	stored := alert
	s.expiryAlertsByID[stored.ID] = &stored
	saved := stored
	return &saved, nil
}

func (s *Store) UpsertLowStockAlert(_ context.Context, alert domain.LowStockAlert) (*domain.LowStockAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.MedicineID == "" {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if alert.ID == "" {
		alert.ID = xid.New("lal")
		if alert.CreatedAt.IsZero() {
			alert.CreatedAt = now
		}
	}
	if alert.Status == "" {
		alert.Status = domain.AlertStatusActive
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = now
	}
	if existing, exists := s.lowStockByID[alert.ID]; exists {
		alert.CreatedAt = existing.CreatedAt
	}

	stored := alert
	s.lowStockByID[stored.ID] = &stored
	saved := stored
	return &saved, nil
}

func (s *Store) GetActiveExpiryAlertByBatch(_ context.Context, batchID string) (*domain.ExpiryAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, alert := range s.expiryAlertsByID {
		if alert.BatchID == batchID && alert.Status == domain.AlertStatusActive {
			copyAlert := *alert
			return &copyAlert, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetActiveLowStockAlertByMedicine(_ context.Context, medicineID string) (*domain.LowStockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, alert := range s.lowStockByID {
		if alert.MedicineID == medicineID && alert.Status == domain.AlertStatusActive {
			copyAlert := *alert
			return &copyAlert, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListExpiryAlerts(_ context.Context, status string, limit int) ([]domain.ExpiryAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ExpiryAlert, 0, len(s.expiryAlertsByID))
	for _, alert := range s.expiryAlertsByID {
		if status != "" && alert.Status != status {
			continue
		}
		result = append(result, *alert)
	}

	slices.SortFunc(result, func(a, b domain.ExpiryAlert) int {
		if a.DaysToExpiry != b.DaysToExpiry {
			if a.DaysToExpiry < b.DaysToExpiry {
				return -1
			}
			return 1
		}
		return cmpString(a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListLowStockAlerts(_ context.Context, status string, limit int) ([]domain.LowStockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LowStockAlert, 0, len(s.lowStockByID))
	for _, alert := range s.lowStockByID {
		if status != "" && alert.Status != status {
			continue
		}
		result = append(result, *alert)
	}

	slices.SortFunc(result, func(a, b domain.LowStockAlert) int {
		if a.StockQty != b.StockQty {
			if a.StockQty < b.StockQty {
				return -1
			}
			return 1
		}
		return cmpString(a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ResolveExpiryAlert(_ context.Context, alertID string, at time.Time) (*domain.ExpiryAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.expiryAlertsByID[alertID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if alert.Status != domain.AlertStatusResolved {
		resolvedAt := at.UTC()
		alert.Status = domain.AlertStatusResolved
		alert.ResolvedAt = &resolvedAt
		alert.UpdatedAt = resolvedAt
	}
	copyAlert := *alert
	return &copyAlert, nil
}

func (s *Store) ResolveLowStockAlert(_ context.Context, alertID string, at time.Time) (*domain.LowStockAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.lowStockByID[alertID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if alert.Status != domain.AlertStatusResolved {
		resolvedAt := at.UTC()
		alert.Status = domain.AlertStatusResolved
		alert.ResolvedAt = &resolvedAt
		alert.UpdatedAt = resolvedAt
	}
	copyAlert := *alert
	return &copyAlert, nil
}

// CreateSale records the sale and consumes its batch allocations in one
// critical section. Availability is re-checked against every allocation
// before any batch is touched.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.IdempotencyKey != "" {
		if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
			return nil, store.ErrInvalidInput
		}
	}

	for _, item := range sale.Items {
		for _, allocation := range item.Allocations {
			batch, exists := s.batchesByID[allocation.BatchID]
			if !exists {
				return nil, store.ErrNotFound
			}
			if batch.QtyAvailable < allocation.Qty || allocation.Qty < 1 {
				return nil, store.ErrInsufficientStock
			}
		}
	}

	for _, item := range sale.Items {
		for _, allocation := range item.Allocations {
			s.batchesByID[allocation.BatchID].QtyAvailable -= allocation.Qty
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	stored := cloneSale(&sale)
	s.salesByID[stored.ID] = stored
	if stored.IdempotencyKey != "" {
		s.salesByIdem[stored.IdempotencyKey] = stored
	}
	return cloneSale(stored), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 32)
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}

	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// VoidSale marks the sale voided and restocks its allocations onto the
// original batches. Allocations whose batch no longer exists come back
// as a fresh sale_void batch so stock is never lost.
func (s *Store) VoidSale(_ context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusVoided {
		return nil, store.ErrInvalidInput
	}

	for _, item := range sale.Items {
		for _, allocation := range item.Allocations {
			if batch, ok := s.batchesByID[allocation.BatchID]; ok {
				batch.QtyAvailable += allocation.Qty
				continue
			}
			if _, err := s.createBatchLocked(domain.Batch{
				MedicineID:         item.MedicineID,
				BatchNumber:        allocation.BatchNumber,
				ExpiryDate:         allocation.ExpiryDate,
				QtyReceived:        allocation.Qty,
				QtyAvailable:       allocation.Qty,
				PurchasePriceCents: item.PurchasePriceCents,
				SourceType:         domain.BatchSourceSaleVoid,
				SourceID:           sale.ID,
				ReceivedAt:         at.UTC(),
			}); err != nil {
				return nil, err
			}
		}
	}

	voidedAt := at.UTC()
	sale.Status = domain.SaleStatusVoided
	sale.VoidReason = reason
	sale.VoidedAt = &voidedAt
	return cloneSale(sale), nil
}

func (s *Store) NextInvoiceNumber(_ context.Context, day time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dateUTC(day).Format("20060102")
	s.invoiceSeqByDay[key]++
	return fmt.Sprintf("INV-%s-%04d", key, s.invoiceSeqByDay[key]), nil
}

func (s *Store) CreateWebOrder(_ context.Context, order domain.WebOrder) (*domain.WebOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 || order.CustomerName == "" {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = xid.New("wor")
	}
	if order.OrderNumber == "" {
		key := dateUTC(now).Format("20060102")
		s.webOrderSeqByDay[key]++
		order.OrderNumber = fmt.Sprintf("WEB-%s-%04d", key, s.webOrderSeqByDay[key])
	}
	if order.Status == "" {
		order.Status = domain.WebOrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt

	stored := cloneWebOrder(&order)
	s.webOrdersByID[stored.ID] = stored
	s.webOrdersByNumber[stored.OrderNumber] = stored.ID
	return cloneWebOrder(stored), nil
}

func (s *Store) GetWebOrderByID(_ context.Context, id string) (*domain.WebOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.webOrdersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneWebOrder(order), nil
}

func (s *Store) GetWebOrderByNumber(_ context.Context, orderNumber string) (*domain.WebOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.webOrdersByNumber[orderNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneWebOrder(s.webOrdersByID[id]), nil
}

func (s *Store) ListWebOrders(_ context.Context, status string, limit int) ([]domain.WebOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.WebOrder, 0, 16)
	for _, order := range s.webOrdersByID {
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, *cloneWebOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.WebOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateWebOrderStatus(_ context.Context, id string, status string, cancelReason string, saleID string, at time.Time) (*domain.WebOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.webOrdersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	order.Status = status
	order.UpdatedAt = at.UTC()
	if cancelReason != "" {
		order.CancelReason = cancelReason
	}
	if saleID != "" {
		order.SaleID = saleID
	}
	return cloneWebOrder(order), nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSupplierByID(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		customers = append(customers, customer)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.SupplierID == "" || len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.suppliersByID[purchase.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, item := range purchase.Items {
		if item.Qty < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
		if _, exists := s.medicinesByID[item.MedicineID]; !exists {
			return nil, store.ErrNotFound
		}
	}

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.Status == "" {
		purchase.Status = domain.PurchaseStatusOrdered
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	total := int64(0)
	for _, item := range purchase.Items {
		total += item.UnitCostCents * int64(item.Qty)
	}
	purchase.TotalCents = total

	stored := clonePurchase(&purchase)
	s.purchasesByID[stored.ID] = stored
	return clonePurchase(stored), nil
}

func (s *Store) GetPurchaseByID(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, exists := s.purchasesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return clonePurchase(purchase), nil
}

func (s *Store) ListPurchases(_ context.Context, status string, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, 16)
	for _, purchase := range s.purchasesByID {
		if status != "" && purchase.Status != status {
			continue
		}
		result = append(result, *clonePurchase(purchase))
	}
	slices.SortFunc(result, func(a, b domain.Purchase) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ReceivePurchase flips the purchase to received and materializes one
// batch per line item.
func (s *Store) ReceivePurchase(_ context.Context, id string, receivedBy string, receivedAt time.Time) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, exists := s.purchasesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if purchase.Status != domain.PurchaseStatusOrdered {
		return nil, store.ErrInvalidInput
	}

	at := receivedAt.UTC()
	for _, item := range purchase.Items {
		var expiry *time.Time
		if item.ExpiryDate != "" {
			parsed, err := time.Parse("2006-01-02", item.ExpiryDate)
			if err != nil {
				return nil, store.ErrInvalidInput
			}
			normalized := dateUTC(parsed)
			expiry = &normalized
		}
		if _, err := s.createBatchLocked(domain.Batch{
			MedicineID:         item.MedicineID,
			BatchNumber:        item.BatchNumber,
			ExpiryDate:         expiry,
			QtyReceived:        item.Qty,
			QtyAvailable:       item.Qty,
			PurchasePriceCents: item.UnitCostCents,
			SourceType:         domain.BatchSourcePurchase,
			SourceID:           purchase.ID,
			ReceivedAt:         at,
		}); err != nil {
			return nil, err
		}
	}

	purchase.Status = domain.PurchaseStatusReceived
	purchase.ReceivedAt = &at
	purchase.ReceivedBy = receivedBy
	return clonePurchase(purchase), nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings, nil
}

func (s *Store) UpdateSettings(_ context.Context, settings domain.Settings) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	s.settings = settings
	updated := settings
	return &updated, nil
}

func (s *Store) GetSalesReport(_ context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{Date: dateUTC(from).Format("2006-01-02")}
	byPayment := map[string]*domain.SalesReportPayment{}
	type itemAgg struct {
		name  string
		qty   int
		cents int64
	}
	byMedicine := map[string]*itemAgg{}

	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.Sales++
		report.GrossSalesCents += sale.SubtotalCents
		report.DiscountCents += sale.DiscountCents
		report.TaxCents += sale.TaxCents
		report.NetSalesCents += sale.TotalCents
		report.ProfitCents += sale.ProfitCents

		payment, exists := byPayment[sale.PaymentMethod]
		if !exists {
			payment = &domain.SalesReportPayment{PaymentMethod: sale.PaymentMethod}
			byPayment[sale.PaymentMethod] = payment
		}
		payment.Sales++
		payment.TotalCents += sale.TotalCents

		for _, item := range sale.Items {
			agg, exists := byMedicine[item.MedicineID]
			if !exists {
				agg = &itemAgg{name: item.MedicineName}
				byMedicine[item.MedicineID] = agg
			}
			agg.qty += item.Qty
			agg.cents += item.GrossCents
		}
	}

	for _, order := range s.webOrdersByID {
		if order.Status == domain.WebOrderStatusCancelled {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		report.WebOrders++
		report.WebOrderCents += order.TotalCents
	}

	report.ByPayment = make([]domain.SalesReportPayment, 0, len(byPayment))
	for _, payment := range byPayment {
		report.ByPayment = append(report.ByPayment, *payment)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.SalesReportPayment) int {
		return cmpString(a.PaymentMethod, b.PaymentMethod)
	})

	report.TopItems = make([]domain.SalesReportTopItem, 0, len(byMedicine))
	for medicineID, agg := range byMedicine {
		report.TopItems = append(report.TopItems, domain.SalesReportTopItem{
			MedicineID: medicineID,
			Name:       agg.name,
			QtySold:    agg.qty,
			TotalCents: agg.cents,
		})
	}
	slices.SortFunc(report.TopItems, func(a, b domain.SalesReportTopItem) int {
		if a.QtySold != b.QtySold {
			if a.QtySold > b.QtySold {
				return -1
			}
			return 1
		}
		return cmpString(a.MedicineID, b.MedicineID)
	})
	if len(report.TopItems) > 10 {
		report.TopItems = report.TopItems[:10]
	}

	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}

	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	copySale := *src
	copySale.Items = make([]domain.SaleItem, len(src.Items))
	for i, item := range src.Items {
		copyItem := item
		copyItem.Allocations = slices.Clone(item.Allocations)
		copySale.Items[i] = copyItem
	}
	if src.VoidedAt != nil {
		voidedAt := *src.VoidedAt
		copySale.VoidedAt = &voidedAt
	}
	return &copySale
}

func cloneWebOrder(src *domain.WebOrder) *domain.WebOrder {
	if src == nil {
		return nil
	}
	copyOrder := *src
	copyOrder.Items = slices.Clone(src.Items)
	return &copyOrder
}

func clonePurchase(src *domain.Purchase) *domain.Purchase {
	if src == nil {
		return nil
	}
	copyPurchase := *src
	copyPurchase.Items = slices.Clone(src.Items)
	if src.ReceivedAt != nil {
		receivedAt := *src.ReceivedAt
		copyPurchase.ReceivedAt = &receivedAt
	}
	return &copyPurchase
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
