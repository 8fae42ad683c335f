package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestVoidSaleRestocksBatches(t *testing.T) {
	databaseURL := os.Getenv("PHARMAPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PHARMAPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	medicineID := fmt.Sprintf("med-void-it-%d", stamp)
	batchID := fmt.Sprintf("bat-void-it-%d", stamp)
	saleID := fmt.Sprintf("sal-void-it-%d", stamp)
	idempotencyKey := fmt.Sprintf("idem-void-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM batches WHERE medicine_id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, medicineID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (
			id, name, generic_name, manufacturer, category, classification,
			unit_price_cents, purchase_price_cents, mrp_cents, reorder_level,
			reorder_qty, unit, web_live, active, created_at, updated_at
		)
		VALUES ($1, 'Void IT Paracetamol', 'Paracetamol', 'Square', 'analgesic', 'otc',
			120, 80, 150, 10, 0, 'tablet', false, true, now(), now())
	`, medicineID); err != nil {
		t.Fatalf("insert medicine: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (
			id, medicine_id, batch_number, expiry_date, qty_received, qty_available,
			purchase_price_cents, source_type, received_at, updated_at
		)
		VALUES ($1, $2, 'B-VOID-IT', now() + interval '180 days', 10, 8, 80, 'purchase', now(), now())
	`, batchID, medicineID); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, cashier_username, idempotency_key, payment_method,
			subtotal_cents, discount_percent, discount_cents, tax_rate_percent,
			tax_cents, total_cents, profit_cents, cash_received_cents, change_cents,
			status, fefo_override, created_at
		)
		VALUES ($1, 'INV-VOID-IT', 'cashier', $2, 'cash',
			240, 0, 0, 0, 0, 240, 80, 500, 260, 'completed', false, now())
	`, saleID, idempotencyKey); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	allocations := fmt.Sprintf(`[{"batch_id":%q,"batch_number":"B-VOID-IT","qty":2}]`, batchID)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_items (
			sale_id, medicine_id, medicine_name, qty, unit_price_cents,
			purchase_price_cents, gross_cents, discount_percent, discount_cents,
			tax_rate_percent, tax_cents, fefo_override, allocations
		)
		VALUES ($1, $2, 'Void IT Paracetamol', 2, 120, 80, 240, 0, 0, 0, 0, false, $3)
	`, saleID, medicineID, allocations); err != nil {
		t.Fatalf("insert sale item: %v", err)
	}

	at := time.Now().UTC()
	voided, err := s.VoidSale(ctx, saleID, "integration test void", at)
	if err != nil {
		t.Fatalf("void sale: %v", err)
	}
	if voided.Status != "voided" {
		t.Fatalf("expected sale status voided, got %s", voided.Status)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT qty_available
		FROM batches
		WHERE id = $1
	`, batchID).Scan(&qty); err != nil {
		t.Fatalf("query batch: %v", err)
	}
	if qty != 10 {
		t.Fatalf("expected batch qty 10 after void restock, got %d", qty)
	}
}
