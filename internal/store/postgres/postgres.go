package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListMedicines(ctx context.Context, includeInactive bool) ([]domain.Medicine, error) {
	query := `
		SELECT id, name, generic_name, COALESCE(barcode,''), manufacturer, category, classification,
			unit_price_cents, purchase_price_cents, mrp_cents, reorder_level, reorder_qty,
			unit, COALESCE(rack_location,''), web_live, active, created_at, updated_at
		FROM medicines
	`
	if !includeInactive {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY category ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, 64)
	for rows.Next() {
		med, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, med)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (s *Store) CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	if medicine.Name == "" || medicine.UnitPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if medicine.ID == "" {
		medicine.ID = xid.New("med")
	}
	now := time.Now().UTC()
	medicine.Active = true
	medicine.CreatedAt = now
	medicine.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (
			id, name, generic_name, barcode, manufacturer, category, classification,
			unit_price_cents, purchase_price_cents, mrp_cents, reorder_level, reorder_qty,
			unit, rack_location, web_live, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, medicine.ID, medicine.Name, medicine.GenericName, nullIfEmpty(medicine.Barcode),
		medicine.Manufacturer, medicine.Category, medicine.Classification,
		medicine.UnitPriceCents, medicine.PurchasePriceCents, medicine.MRPCents,
		medicine.ReorderLevel, medicine.ReorderQty, medicine.Unit,
		nullIfEmpty(medicine.RackLocation), medicine.WebLive,
		medicine.Active, medicine.CreatedAt, medicine.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := medicine
	return &created, nil
}

func (s *Store) GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, generic_name, COALESCE(barcode,''), manufacturer, category, classification,
			unit_price_cents, purchase_price_cents, mrp_cents, reorder_level, reorder_qty,
			unit, COALESCE(rack_location,''), web_live, active, created_at, updated_at
		FROM medicines
		WHERE id = $1
	`, id)
	med, err := scanMedicine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &med, nil
}

func (s *Store) UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	if medicine.ID == "" || medicine.Name == "" || medicine.UnitPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	medicine.UpdatedAt = time.Now().UTC()

	err := s.db.QueryRowContext(ctx, `
		UPDATE medicines
		SET name = $2, generic_name = $3, barcode = $4, manufacturer = $5,
			category = $6, classification = $7, unit_price_cents = $8,
			purchase_price_cents = $9, mrp_cents = $10, reorder_level = $11,
			reorder_qty = $12, unit = $13, rack_location = $14,
			web_live = $15, active = $16, updated_at = $17
		WHERE id = $1
		RETURNING created_at
	`, medicine.ID, medicine.Name, medicine.GenericName, nullIfEmpty(medicine.Barcode),
		medicine.Manufacturer, medicine.Category, medicine.Classification,
		medicine.UnitPriceCents, medicine.PurchasePriceCents, medicine.MRPCents,
		medicine.ReorderLevel, medicine.ReorderQty, medicine.Unit,
		nullIfEmpty(medicine.RackLocation), medicine.WebLive,
		medicine.Active, medicine.UpdatedAt).Scan(&medicine.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	medicine.CreatedAt = medicine.CreatedAt.UTC()
	updated := medicine
	return &updated, nil
}

func (s *Store) GetMedicinesByIDs(ctx context.Context, ids []string) (map[string]domain.Medicine, error) {
	result := make(map[string]domain.Medicine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, generic_name, COALESCE(barcode,''), manufacturer, category, classification,
			unit_price_cents, purchase_price_cents, mrp_cents, reorder_level, reorder_qty,
			unit, COALESCE(rack_location,''), web_live, active, created_at, updated_at
		FROM medicines
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		med, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		result[med.ID] = med
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SearchMedicines(ctx context.Context, query string, webOnly bool, limit int) ([]domain.Medicine, error) {
	if limit < 1 {
		limit = 50
	}
	needle := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	sqlQuery := `
		SELECT id, name, generic_name, COALESCE(barcode,''), manufacturer, category, classification,
			unit_price_cents, purchase_price_cents, mrp_cents, reorder_level, reorder_qty,
			unit, COALESCE(rack_location,''), web_live, active, created_at, updated_at
		FROM medicines
		WHERE active = true
			AND (name ILIKE $1 OR generic_name ILIKE $1 OR barcode ILIKE $1 OR manufacturer ILIKE $1)
	`
	if webOnly {
		sqlQuery += ` AND web_live = true`
	}
	sqlQuery += ` ORDER BY name ASC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, sqlQuery, needle, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, limit)
	for rows.Next() {
		med, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, med)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.MedicineID == "" || batch.QtyReceived < 1 {
		return nil, store.ErrInvalidInput
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM medicines WHERE id = $1)
	`, batch.MedicineID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	if batch.ID == "" {
		batch.ID = xid.New("bat")
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (
			id, medicine_id, batch_number, expiry_date, qty_received, qty_available,
			purchase_price_cents, source_type, source_id, received_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, batch.ID, batch.MedicineID, batch.BatchNumber, nullDate(batch.ExpiryDate),
		batch.QtyReceived, batch.QtyAvailable, batch.PurchasePriceCents,
		batch.SourceType, nullIfEmpty(batch.SourceID), batch.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := batch
	return &created, nil
}

func (s *Store) GetBatchByID(ctx context.Context, id string) (*domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, medicine_id, batch_number, expiry_date, qty_received, qty_available,
			purchase_price_cents, source_type, COALESCE(source_id,''), received_at
		FROM batches
		WHERE id = $1
	`, id)
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) ListBatches(ctx context.Context, medicineID string, includeDepleted bool, limit int) ([]domain.Batch, error) {
	if limit < 1 {
		limit = 200
	}

	conditions := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if medicineID != "" {
		args = append(args, medicineID)
		conditions = append(conditions, fmt.Sprintf("medicine_id = $%d", len(args)))
	}
	if !includeDepleted {
		conditions = append(conditions, "qty_available > 0")
	}

	query := `
		SELECT id, medicine_id, batch_number, expiry_date, qty_received, qty_available,
			purchase_price_cents, source_type, COALESCE(source_id,''), received_at
		FROM batches
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY expiry_date ASC NULLS LAST, received_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, limit)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) ListLiveBatches(ctx context.Context, medicineID string, asOf time.Time) ([]domain.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, batch_number, expiry_date, qty_received, qty_available,
			purchase_price_cents, source_type, COALESCE(source_id,''), received_at
		FROM batches
		WHERE medicine_id = $1
			AND qty_available > 0
			AND (expiry_date IS NULL OR expiry_date >= $2)
		ORDER BY expiry_date ASC NULLS LAST, received_at ASC, id ASC
	`, medicineID, dateUTC(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 8)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) GetStockMap(ctx context.Context, medicineIDs []string, asOf time.Time) (map[string]int, error) {
	ids := medicineIDs
	if len(ids) == 0 {
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM medicines`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	stock := make(map[string]int, len(ids))
	for _, id := range ids {
		stock[id] = 0
	}
	if len(ids) == 0 {
		return stock, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT medicine_id, COALESCE(SUM(qty_available),0)::bigint
		FROM batches
		WHERE medicine_id = ANY($1)
			AND qty_available > 0
			AND (expiry_date IS NULL OR expiry_date >= $2)
		GROUP BY medicine_id
	`, ids, dateUTC(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var medicineID string
		var qty int
		if err := rows.Scan(&medicineID, &qty); err != nil {
			return nil, err
		}
		stock[medicineID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *Store) UpsertExpiryAlert(ctx context.Context, alert domain.ExpiryAlert) (*domain.ExpiryAlert, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expiry_alerts (
			id, batch_id, medicine_id, medicine_name, batch_number, severity,
			status, days_to_expiry, message, created_at, updated_at, resolved_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			status = EXCLUDED.status,
			days_to_expiry = EXCLUDED.days_to_expiry,
			message = EXCLUDED.message,
			updated_at = EXCLUDED.updated_at,
			resolved_at = EXCLUDED.resolved_at
	`, alert.ID, alert.BatchID, alert.MedicineID, alert.MedicineName, alert.BatchNumber,
		alert.Severity, alert.Status, alert.DaysToExpiry, alert.Message,
		alert.CreatedAt, alert.UpdatedAt, nullTime(alert.ResolvedAt))
	if err != nil {
		return nil, err
	}
	return s.getExpiryAlert(ctx, alert.ID)
}

func (s *Store) UpsertLowStockAlert(ctx context.Context, alert domain.LowStockAlert) (*domain.LowStockAlert, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO low_stock_alerts (
			id, medicine_id, medicine_name, severity, status, stock_qty,
			reorder_level, reorder_qty, message, created_at, updated_at, resolved_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			status = EXCLUDED.status,
			stock_qty = EXCLUDED.stock_qty,
			reorder_level = EXCLUDED.reorder_level,
			reorder_qty = EXCLUDED.reorder_qty,
			message = EXCLUDED.message,
			updated_at = EXCLUDED.updated_at,
			resolved_at = EXCLUDED.resolved_at
	`, alert.ID, alert.MedicineID, alert.MedicineName, alert.Severity, alert.Status,
		alert.StockQty, alert.ReorderLevel, alert.ReorderQty, alert.Message,
		alert.CreatedAt, alert.UpdatedAt, nullTime(alert.ResolvedAt))
	if err != nil {
		return nil, err
	}
	return s.getLowStockAlert(ctx, alert.ID)
}

func (s *Store) getExpiryAlert(ctx context.Context, id string) (*domain.ExpiryAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, medicine_id, medicine_name, batch_number, severity,
			status, days_to_expiry, message, created_at, updated_at, resolved_at
		FROM expiry_alerts
		WHERE id = $1
	`, id)
	alert, err := scanExpiryAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (s *Store) getLowStockAlert(ctx context.Context, id string) (*domain.LowStockAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, medicine_id, medicine_name, severity, status, stock_qty,
			reorder_level, reorder_qty, message, created_at, updated_at, resolved_at
		FROM low_stock_alerts
		WHERE id = $1
	`, id)
	alert, err := scanLowStockAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (s *Store) GetActiveExpiryAlertByBatch(ctx context.Context, batchID string) (*domain.ExpiryAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, medicine_id, medicine_name, batch_number, severity,
			status, days_to_expiry, message, created_at, updated_at, resolved_at
		FROM expiry_alerts
		WHERE batch_id = $1 AND status = $2
		LIMIT 1
	`, batchID, domain.AlertStatusActive)
	alert, err := scanExpiryAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (s *Store) GetActiveLowStockAlertByMedicine(ctx context.Context, medicineID string) (*domain.LowStockAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, medicine_id, medicine_name, severity, status, stock_qty,
			reorder_level, reorder_qty, message, created_at, updated_at, resolved_at
		FROM low_stock_alerts
		WHERE medicine_id = $1 AND status = $2
		LIMIT 1
	`, medicineID, domain.AlertStatusActive)
	alert, err := scanLowStockAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (s *Store) ListExpiryAlerts(ctx context.Context, status string, limit int) ([]domain.ExpiryAlert, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, batch_id, medicine_id, medicine_name, batch_number, severity,
			status, days_to_expiry, message, created_at, updated_at, resolved_at
		FROM expiry_alerts
	`
	args := make([]any, 0, 2)
	if status != "" {
		args = append(args, status)
		query += ` WHERE status = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY days_to_expiry ASC, id ASC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]domain.ExpiryAlert, 0, limit)
	for rows.Next() {
		alert, err := scanExpiryAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *Store) ListLowStockAlerts(ctx context.Context, status string, limit int) ([]domain.LowStockAlert, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, medicine_id, medicine_name, severity, status, stock_qty,
			reorder_level, reorder_qty, message, created_at, updated_at, resolved_at
		FROM low_stock_alerts
	`
	args := make([]any, 0, 2)
	if status != "" {
		args = append(args, status)
		query += ` WHERE status = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY stock_qty ASC, id ASC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]domain.LowStockAlert, 0, limit)
	for rows.Next() {
		alert, err := scanLowStockAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *Store) ResolveExpiryAlert(ctx context.Context, alertID string, at time.Time) (*domain.ExpiryAlert, error) {
	resolvedAt := at.UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE expiry_alerts
		SET status = $2, resolved_at = $3, updated_at = $3
		WHERE id = $1 AND status <> $2
	`, alertID, domain.AlertStatusResolved, resolvedAt)
	if err != nil {
		return nil, err
	}
	return s.getExpiryAlert(ctx, alertID)
}

func (s *Store) ResolveLowStockAlert(ctx context.Context, alertID string, at time.Time) (*domain.LowStockAlert, error) {
	resolvedAt := at.UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE low_stock_alerts
		SET status = $2, resolved_at = $3, updated_at = $3
		WHERE id = $1 AND status <> $2
	`, alertID, domain.AlertStatusResolved, resolvedAt)
	if err != nil {
		return nil, err
	}
	return s.getLowStockAlert(ctx, alertID)
}

// CreateSale persists the sale and consumes its batch allocations in one
// serializable transaction. Every allocation is locked and re-checked
// against current availability before any batch is decremented.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, customer_id, cashier_username, idempotency_key,
			payment_method, payment_reference, subtotal_cents, discount_percent,
			discount_cents, tax_rate_percent, tax_cents, total_cents, profit_cents,
			cash_received_cents, change_cents, status, fefo_override,
			void_reason, voided_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, sale.ID, sale.InvoiceNumber, nullIfEmpty(sale.CustomerID), sale.CashierUsername,
		nullIfEmpty(sale.IdempotencyKey), sale.PaymentMethod, nullIfEmpty(sale.PaymentReference),
		sale.SubtotalCents, sale.DiscountPercent, sale.DiscountCents, sale.TaxRatePercent,
		sale.TaxCents, sale.TotalCents, sale.ProfitCents, sale.CashReceivedCents,
		sale.ChangeCents, sale.Status, sale.FEFOOverride,
		nullIfEmpty(sale.VoidReason), nullTime(sale.VoidedAt), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	for _, item := range sale.Items {
		allocationsJSON, err := json.Marshal(item.Allocations)
		if err != nil {
			return nil, err
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id, medicine_id, medicine_name, qty, unit_price_cents,
				purchase_price_cents, gross_cents, discount_percent, discount_cents,
				tax_rate_percent, tax_cents, fefo_override, allocations
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, sale.ID, item.MedicineID, item.MedicineName, item.Qty,
			item.UnitPriceCents, item.PurchasePriceCents, item.GrossCents,
			item.DiscountPercent, item.DiscountCents, item.TaxRatePercent,
			item.TaxCents, item.FEFOOverride, allocationsJSON)
		if err != nil {
			return nil, err
		}

		for _, allocation := range item.Allocations {
			if allocation.Qty < 1 {
				return nil, store.ErrInsufficientStock
			}
			var available int
			err := pgTx.QueryRowContext(ctx, `
				SELECT qty_available
				FROM batches
				WHERE id = $1
				FOR UPDATE
			`, allocation.BatchID).Scan(&available)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, store.ErrNotFound
				}
				return nil, err
			}
			if available < allocation.Qty {
				return nil, store.ErrInsufficientStock
			}
			_, err = pgTx.ExecContext(ctx, `
				UPDATE batches
				SET qty_available = qty_available - $1, updated_at = now()
				WHERE id = $2
			`, allocation.Qty, allocation.BatchID)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`
		SELECT id, invoice_number, COALESCE(customer_id,''), cashier_username,
			COALESCE(idempotency_key,''), payment_method, COALESCE(payment_reference,''),
			subtotal_cents, discount_percent, discount_cents, tax_rate_percent,
			tax_cents, total_cents, profit_cents, cash_received_cents, change_cents,
			status, fefo_override, void_reason, voided_at, created_at
		FROM sales
		WHERE %s = $1
	`, column)

	sale, err := scanSale(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT medicine_id, medicine_name, qty, unit_price_cents,
			purchase_price_cents, gross_cents, discount_percent, discount_cents,
			tax_rate_percent, tax_cents, fefo_override, allocations
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		var allocationsRaw []byte
		if err := rows.Scan(&item.MedicineID, &item.MedicineName, &item.Qty,
			&item.UnitPriceCents, &item.PurchasePriceCents, &item.GrossCents,
			&item.DiscountPercent, &item.DiscountCents, &item.TaxRatePercent,
			&item.TaxCents, &item.FEFOOverride, &allocationsRaw); err != nil {
			return nil, err
		}
		if len(allocationsRaw) > 0 {
			if err := json.Unmarshal(allocationsRaw, &item.Allocations); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_number, COALESCE(customer_id,''), cashier_username,
			COALESCE(idempotency_key,''), payment_method, COALESCE(payment_reference,''),
			subtotal_cents, discount_percent, discount_cents, tax_rate_percent,
			tax_cents, total_cents, profit_cents, cash_received_cents, change_cents,
			status, fefo_override, void_reason, voided_at, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.loadSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}
	return sales, nil
}

// VoidSale marks the sale voided and restocks its allocations onto the
// original batches. Allocations whose batch row is gone come back as a
// fresh sale_void batch so stock is never lost.
func (s *Store) VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.SaleStatusVoided {
		return nil, store.ErrInvalidInput
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT medicine_id, purchase_price_cents, allocations
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	type voidItem struct {
		medicineID         string
		purchasePriceCents int64
		allocations        []domain.BatchAllocation
	}
	items := make([]voidItem, 0, 8)
	for itemRows.Next() {
		var item voidItem
		var allocationsRaw []byte
		if err := itemRows.Scan(&item.medicineID, &item.purchasePriceCents, &allocationsRaw); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		if len(allocationsRaw) > 0 {
			if err := json.Unmarshal(allocationsRaw, &item.allocations); err != nil {
				_ = itemRows.Close()
				return nil, err
			}
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	voidedAt := at.UTC()
	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, void_reason = $3, voided_at = $4
		WHERE id = $1
	`, id, domain.SaleStatusVoided, reason, voidedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		for _, allocation := range item.allocations {
			res, err := pgTx.ExecContext(ctx, `
				UPDATE batches
				SET qty_available = qty_available + $1, updated_at = now()
				WHERE id = $2
			`, allocation.Qty, allocation.BatchID)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if affected > 0 {
				continue
			}
			_, err = pgTx.ExecContext(ctx, `
				INSERT INTO batches (
					id, medicine_id, batch_number, expiry_date, qty_received, qty_available,
					purchase_price_cents, source_type, source_id, received_at, updated_at
				)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
			`, xid.New("bat"), item.medicineID, allocation.BatchNumber, nullDate(allocation.ExpiryDate),
				allocation.Qty, allocation.Qty, item.purchasePriceCents,
				domain.BatchSourceSaleVoid, id, voidedAt)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSaleByID(ctx, id)
}

func (s *Store) NextInvoiceNumber(ctx context.Context, day time.Time) (string, error) {
	key := dateUTC(day)
	var seq int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (day, seq)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = invoice_counters.seq + 1
		RETURNING seq
	`, key).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%04d", key.Format("20060102"), seq), nil
}

func (s *Store) CreateWebOrder(ctx context.Context, order domain.WebOrder) (*domain.WebOrder, error) {
	if len(order.Items) == 0 || order.CustomerName == "" {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = xid.New("wor")
	}
	if order.Status == "" {
		order.Status = domain.WebOrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if order.OrderNumber == "" {
		key := dateUTC(now)
		var seq int
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO web_order_counters (day, seq)
			VALUES ($1, 1)
			ON CONFLICT (day) DO UPDATE SET seq = web_order_counters.seq + 1
			RETURNING seq
		`, key).Scan(&seq)
		if err != nil {
			return nil, err
		}
		order.OrderNumber = fmt.Sprintf("WEB-%s-%04d", key.Format("20060102"), seq)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO web_orders (
			id, order_number, customer_name, customer_phone, delivery_address,
			note, subtotal_cents, delivery_fee_cents, total_cents, status,
			sale_id, cancel_reason, items, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, order.ID, order.OrderNumber, order.CustomerName, order.CustomerPhone,
		order.DeliveryAddress, nullIfEmpty(order.Note), order.SubtotalCents,
		order.DeliveryFeeCents, order.TotalCents, order.Status,
		nullIfEmpty(order.SaleID), nullIfEmpty(order.CancelReason), itemsJSON,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) GetWebOrderByID(ctx context.Context, id string) (*domain.WebOrder, error) {
	return s.findWebOrder(ctx, "id", id)
}

func (s *Store) GetWebOrderByNumber(ctx context.Context, orderNumber string) (*domain.WebOrder, error) {
	return s.findWebOrder(ctx, "order_number", orderNumber)
}

func (s *Store) findWebOrder(ctx context.Context, column string, value string) (*domain.WebOrder, error) {
	if column != "id" && column != "order_number" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`
		SELECT id, order_number, customer_name, customer_phone, delivery_address,
			COALESCE(note,''), subtotal_cents, delivery_fee_cents, total_cents,
			status, COALESCE(sale_id,''), COALESCE(cancel_reason,''), items,
			created_at, updated_at
		FROM web_orders
		WHERE %s = $1
	`, column)

	order, err := scanWebOrder(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListWebOrders(ctx context.Context, status string, limit int) ([]domain.WebOrder, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, order_number, customer_name, customer_phone, delivery_address,
			COALESCE(note,''), subtotal_cents, delivery_fee_cents, total_cents,
			status, COALESCE(sale_id,''), COALESCE(cancel_reason,''), items,
			created_at, updated_at
		FROM web_orders
	`
	args := make([]any, 0, 2)
	if status != "" {
		args = append(args, status)
		query += ` WHERE status = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.WebOrder, 0, limit)
	for rows.Next() {
		order, err := scanWebOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) UpdateWebOrderStatus(ctx context.Context, id string, status string, cancelReason string, saleID string, at time.Time) (*domain.WebOrder, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE web_orders
		SET status = $2,
			cancel_reason = COALESCE($3, cancel_reason),
			sale_id = COALESCE($4, sale_id),
			updated_at = $5
		WHERE id = $1
	`, id, status, nullIfEmpty(cancelReason), nullIfEmpty(saleID), at.UTC())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetWebOrderByID(ctx, id)
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, supplier.ID, supplier.Name, supplier.Phone, nullIfEmpty(supplier.Email),
		nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, COALESCE(email,''), COALESCE(address,''), created_at
		FROM suppliers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Phone,
			&supplier.Email, &supplier.Address, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, COALESCE(email,''), COALESCE(address,''), created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.Phone,
		&supplier.Email, &supplier.Address, &supplier.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	supplier.CreatedAt = supplier.CreatedAt.UTC()
	return &supplier, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Address), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, COALESCE(address,''), created_at
		FROM customers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 16)
	for rows.Next() {
		var customer domain.Customer
		if err := rows.Scan(&customer.ID, &customer.Name, &customer.Phone,
			&customer.Address, &customer.CreatedAt); err != nil {
			return nil, err
		}
		customer.CreatedAt = customer.CreatedAt.UTC()
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, COALESCE(address,''), created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone,
		&customer.Address, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.SupplierID == "" || len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, item := range purchase.Items {
		if item.Qty < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	if _, err := s.GetSupplierByID(ctx, purchase.SupplierID); err != nil {
		return nil, err
	}

	medicineIDs := make([]string, 0, len(purchase.Items))
	for _, item := range purchase.Items {
		medicineIDs = append(medicineIDs, item.MedicineID)
	}
	medicines, err := s.GetMedicinesByIDs(ctx, medicineIDs)
	if err != nil {
		return nil, err
	}
	for _, item := range purchase.Items {
		if _, exists := medicines[item.MedicineID]; !exists {
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO purchases (id, supplier_id, status, total_cents, created_at, received_at, received_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, purchase.ID, purchase.SupplierID, purchase.Status, purchase.TotalCents,
		purchase.CreatedAt, nullTime(purchase.ReceivedAt), nullIfEmpty(purchase.ReceivedBy))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	for _, item := range purchase.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO purchase_items (purchase_id, medicine_id, qty, unit_cost_cents, batch_number, expiry_date)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, purchase.ID, item.MedicineID, item.Qty, item.UnitCostCents,
			item.BatchNumber, nullIfEmpty(item.ExpiryDate))
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := purchase
	return &created, nil
}

func (s *Store) GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error) {
	purchase, err := scanPurchase(s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, status, total_cents, created_at, received_at, COALESCE(received_by,'')
		FROM purchases
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadPurchaseItems(ctx, purchase.ID)
	if err != nil {
		return nil, err
	}
	purchase.Items = items
	return &purchase, nil
}

func (s *Store) loadPurchaseItems(ctx context.Context, purchaseID string) ([]domain.PurchaseItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT medicine_id, qty, unit_cost_cents, batch_number, COALESCE(expiry_date,'')
		FROM purchase_items
		WHERE purchase_id = $1
		ORDER BY id ASC
	`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseItem
		if err := rows.Scan(&item.MedicineID, &item.Qty, &item.UnitCostCents,
			&item.BatchNumber, &item.ExpiryDate); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, supplier_id, status, total_cents, created_at, received_at, COALESCE(received_by,'')
		FROM purchases
	`
	args := make([]any, 0, 2)
	if status != "" {
		args = append(args, status)
		query += ` WHERE status = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, limit)
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range purchases {
		items, err := s.loadPurchaseItems(ctx, purchases[i].ID)
		if err != nil {
			return nil, err
		}
		purchases[i].Items = items
	}
	return purchases, nil
}

// ReceivePurchase flips the purchase to received and materializes one
// batch per line item inside a single transaction.
func (s *Store) ReceivePurchase(ctx context.Context, id string, receivedBy string, receivedAt time.Time) (*domain.Purchase, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM purchases
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.PurchaseStatusOrdered {
		return nil, store.ErrInvalidInput
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT medicine_id, qty, unit_cost_cents, batch_number, COALESCE(expiry_date,'')
		FROM purchase_items
		WHERE purchase_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	items := make([]domain.PurchaseItem, 0, 8)
	for itemRows.Next() {
		var item domain.PurchaseItem
		if err := itemRows.Scan(&item.MedicineID, &item.Qty, &item.UnitCostCents,
			&item.BatchNumber, &item.ExpiryDate); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	at := receivedAt.UTC()
	for _, item := range items {
		var expiry *time.Time
		if item.ExpiryDate != "" {
			parsed, err := time.Parse("2006-01-02", item.ExpiryDate)
			if err != nil {
				return nil, store.ErrInvalidInput
			}
			normalized := dateUTC(parsed)
			expiry = &normalized
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO batches (
				id, medicine_id, batch_number, expiry_date, qty_received, qty_available,
				purchase_price_cents, source_type, source_id, received_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		`, xid.New("bat"), item.MedicineID, item.BatchNumber, nullDate(expiry),
			item.Qty, item.Qty, item.UnitCostCents, domain.BatchSourcePurchase, id, at)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE purchases
		SET status = $2, received_at = $3, received_by = $4
		WHERE id = $1
	`, id, domain.PurchaseStatusReceived, at, receivedBy)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetPurchaseByID(ctx, id)
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT store_name, fefo_mode, expiry_notice_days, expiry_warning_days, expiry_critical_days,
			default_tax_rate_percent, web_store_enabled, delivery_fee_cents,
			free_delivery_threshold_cents, updated_at
		FROM app_settings
		WHERE id = 1
	`).Scan(
		&settings.StoreName,
		&settings.FEFOMode,
		&settings.ExpiryNoticeDays,
		&settings.ExpiryWarningDays,
		&settings.ExpiryCriticalDays,
		&settings.DefaultTaxRatePercent,
		&settings.WebStoreEnabled,
		&settings.DeliveryFeeCents,
		&settings.FreeDeliveryThresholdCents,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultSettings(), nil
		}
		return domain.Settings{}, err
	}
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return settings, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	settings.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (
			id, store_name, fefo_mode, expiry_notice_days, expiry_warning_days,
			expiry_critical_days, default_tax_rate_percent, web_store_enabled,
			delivery_fee_cents, free_delivery_threshold_cents, updated_at
		)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			store_name = EXCLUDED.store_name,
			fefo_mode = EXCLUDED.fefo_mode,
			expiry_notice_days = EXCLUDED.expiry_notice_days,
			expiry_warning_days = EXCLUDED.expiry_warning_days,
			expiry_critical_days = EXCLUDED.expiry_critical_days,
			default_tax_rate_percent = EXCLUDED.default_tax_rate_percent,
			web_store_enabled = EXCLUDED.web_store_enabled,
			delivery_fee_cents = EXCLUDED.delivery_fee_cents,
			free_delivery_threshold_cents = EXCLUDED.free_delivery_threshold_cents,
			updated_at = EXCLUDED.updated_at
	`, settings.StoreName, settings.FEFOMode, settings.ExpiryNoticeDays,
		settings.ExpiryWarningDays, settings.ExpiryCriticalDays, settings.DefaultTaxRatePercent,
		settings.WebStoreEnabled, settings.DeliveryFeeCents,
		settings.FreeDeliveryThresholdCents, settings.UpdatedAt)
	if err != nil {
		return nil, err
	}
	updated := settings
	return &updated, nil
}

func (s *Store) GetSalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	report := domain.SalesReport{
		Date:      dateUTC(from).Format("2006-01-02"),
		ByPayment: make([]domain.SalesReportPayment, 0, 4),
		TopItems:  make([]domain.SalesReportTopItem, 0, 10),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(subtotal_cents),0)::bigint,
			COALESCE(SUM(discount_cents),0)::bigint,
			COALESCE(SUM(tax_cents),0)::bigint,
			COALESCE(SUM(total_cents),0)::bigint,
			COALESCE(SUM(profit_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1
			AND created_at < $2
			AND status = $3
	`, from, to, domain.SaleStatusCompleted).Scan(
		&report.Sales,
		&report.GrossSalesCents,
		&report.DiscountCents,
		&report.TaxCents,
		&report.NetSalesCents,
		&report.ProfitCents,
	)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM web_orders
		WHERE created_at >= $1
			AND created_at < $2
			AND status <> $3
	`, from, to, domain.WebOrderStatusCancelled).Scan(&report.WebOrders, &report.WebOrderCents)
	if err != nil {
		return report, err
	}

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1
			AND created_at < $2
			AND status = $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to, domain.SaleStatusCompleted)
	if err != nil {
		return report, err
	}
	for paymentRows.Next() {
		var row domain.SalesReportPayment
		if err := paymentRows.Scan(&row.PaymentMethod, &row.Sales, &row.TotalCents); err != nil {
			_ = paymentRows.Close()
			return report, err
		}
		report.ByPayment = append(report.ByPayment, row)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return report, err
	}
	_ = paymentRows.Close()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT si.medicine_id, MAX(si.medicine_name),
			SUM(si.qty)::bigint, COALESCE(SUM(si.gross_cents),0)::bigint
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1
			AND s.created_at < $2
			AND s.status = $3
		GROUP BY si.medicine_id
		ORDER BY SUM(si.qty) DESC, si.medicine_id ASC
		LIMIT 10
	`, from, to, domain.SaleStatusCompleted)
	if err != nil {
		return report, err
	}
	for itemRows.Next() {
		var row domain.SalesReportTopItem
		if err := itemRows.Scan(&row.MedicineID, &row.Name, &row.QtySold, &row.TotalCents); err != nil {
			_ = itemRows.Close()
			return report, err
		}
		report.TopItems = append(report.TopItems, row)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return report, err
	}
	_ = itemRows.Close()

	return report, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(row rowScanner) (domain.Medicine, error) {
	var med domain.Medicine
	err := row.Scan(
		&med.ID,
		&med.Name,
		&med.GenericName,
		&med.Barcode,
		&med.Manufacturer,
		&med.Category,
		&med.Classification,
		&med.UnitPriceCents,
		&med.PurchasePriceCents,
		&med.MRPCents,
		&med.ReorderLevel,
		&med.ReorderQty,
		&med.Unit,
		&med.RackLocation,
		&med.WebLive,
		&med.Active,
		&med.CreatedAt,
		&med.UpdatedAt,
	)
	if err != nil {
		return domain.Medicine{}, err
	}
	med.CreatedAt = med.CreatedAt.UTC()
	med.UpdatedAt = med.UpdatedAt.UTC()
	return med, nil
}

func scanBatch(row rowScanner) (domain.Batch, error) {
	var batch domain.Batch
	var expiry sql.NullTime
	err := row.Scan(
		&batch.ID,
		&batch.MedicineID,
		&batch.BatchNumber,
		&expiry,
		&batch.QtyReceived,
		&batch.QtyAvailable,
		&batch.PurchasePriceCents,
		&batch.SourceType,
		&batch.SourceID,
		&batch.ReceivedAt,
	)
	if err != nil {
		return domain.Batch{}, err
	}
	if expiry.Valid {
		e := dateUTC(expiry.Time)
		batch.ExpiryDate = &e
	}
	batch.ReceivedAt = batch.ReceivedAt.UTC()
	return batch, nil
}

func scanExpiryAlert(row rowScanner) (domain.ExpiryAlert, error) {
	var alert domain.ExpiryAlert
	var resolvedAt sql.NullTime
	err := row.Scan(
		&alert.ID,
		&alert.BatchID,
		&alert.MedicineID,
		&alert.MedicineName,
		&alert.BatchNumber,
		&alert.Severity,
		&alert.Status,
		&alert.DaysToExpiry,
		&alert.Message,
		&alert.CreatedAt,
		&alert.UpdatedAt,
		&resolvedAt,
	)
	if err != nil {
		return domain.ExpiryAlert{}, err
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time.UTC()
		alert.ResolvedAt = &at
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()
	return alert, nil
}

func scanLowStockAlert(row rowScanner) (domain.LowStockAlert, error) {
	var alert domain.LowStockAlert
	var resolvedAt sql.NullTime
	err := row.Scan(
		&alert.ID,
		&alert.MedicineID,
		&alert.MedicineName,
		&alert.Severity,
		&alert.Status,
		&alert.StockQty,
		&alert.ReorderLevel,
		&alert.ReorderQty,
		&alert.Message,
		&alert.CreatedAt,
		&alert.UpdatedAt,
		&resolvedAt,
	)
	if err != nil {
		return domain.LowStockAlert{}, err
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time.UTC()
		alert.ResolvedAt = &at
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()
	return alert, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var voidReason sql.NullString
	var voidedAt sql.NullTime
	err := row.Scan(
		&sale.ID,
		&sale.InvoiceNumber,
		&sale.CustomerID,
		&sale.CashierUsername,
		&sale.IdempotencyKey,
		&sale.PaymentMethod,
		&sale.PaymentReference,
		&sale.SubtotalCents,
		&sale.DiscountPercent,
		&sale.DiscountCents,
		&sale.TaxRatePercent,
		&sale.TaxCents,
		&sale.TotalCents,
		&sale.ProfitCents,
		&sale.CashReceivedCents,
		&sale.ChangeCents,
		&sale.Status,
		&sale.FEFOOverride,
		&voidReason,
		&voidedAt,
		&sale.CreatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	if voidReason.Valid {
		sale.VoidReason = voidReason.String
	}
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		sale.VoidedAt = &at
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func scanWebOrder(row rowScanner) (domain.WebOrder, error) {
	var order domain.WebOrder
	var itemsRaw []byte
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerName,
		&order.CustomerPhone,
		&order.DeliveryAddress,
		&order.Note,
		&order.SubtotalCents,
		&order.DeliveryFeeCents,
		&order.TotalCents,
		&order.Status,
		&order.SaleID,
		&order.CancelReason,
		&itemsRaw,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return domain.WebOrder{}, err
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &order.Items); err != nil {
			return domain.WebOrder{}, err
		}
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func scanPurchase(row rowScanner) (domain.Purchase, error) {
	var purchase domain.Purchase
	var receivedAt sql.NullTime
	err := row.Scan(
		&purchase.ID,
		&purchase.SupplierID,
		&purchase.Status,
		&purchase.TotalCents,
		&purchase.CreatedAt,
		&receivedAt,
		&purchase.ReceivedBy,
	)
	if err != nil {
		return domain.Purchase{}, err
	}
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		purchase.ReceivedAt = &at
	}
	purchase.CreatedAt = purchase.CreatedAt.UTC()
	return purchase, nil
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return dateUTC(*val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
