package csvio

import (
	"bytes"
	"strings"
	"testing"

	"pharmapos/backend/internal/domain"
)

func TestExportMedicinesCarriesBOM(t *testing.T) {
	var buf bytes.Buffer
	err := ExportMedicines(&buf, []domain.Medicine{
		{Name: "Paracetamol 500mg", GenericName: "Paracetamol", Classification: "otc", UnitPriceCents: 120, PurchasePriceCents: 80, MRPCents: 150, ReorderLevel: 100, Unit: "tablet", WebLive: true},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	raw := buf.Bytes()
	if len(raw) < 3 || raw[0] != 0xEF || raw[1] != 0xBB || raw[2] != 0xBF {
		t.Fatal("export must start with a UTF-8 BOM")
	}

	body := string(raw[3:])
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "name,generic_name") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "Paracetamol 500mg") || !strings.Contains(lines[1], "120") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}

func TestWriteMedicineTemplateHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMedicineTemplate(&buf); err != nil {
		t.Fatalf("template: %v", err)
	}
	body := strings.TrimPrefix(buf.String(), "\xEF\xBB\xBF")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 1 {
		t.Fatalf("template must be header only, got %d lines", len(lines))
	}
}

func TestParseMedicinesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	source := []domain.Medicine{
		{Name: "Paracetamol 500mg", GenericName: "Paracetamol", Barcode: "8901234567890", Classification: "otc", UnitPriceCents: 120, PurchasePriceCents: 80, MRPCents: 150, ReorderLevel: 100, ReorderQty: 200, Unit: "tablet", WebLive: true},
		{Name: "Amoxicillin 250mg", Classification: "prescription", UnitPriceCents: 650, ReorderLevel: 60},
	}
	if err := ExportMedicines(&buf, source); err != nil {
		t.Fatalf("export: %v", err)
	}

	requests, rowErrors, err := ParseMedicines(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rowErrors) != 0 {
		t.Fatalf("unexpected row errors: %+v", rowErrors)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(requests))
	}
	if requests[0].Name != "Paracetamol 500mg" || requests[0].UnitPriceCents != 120 || !requests[0].WebLive {
		t.Fatalf("row 1 mismatch: %+v", requests[0])
	}
	if requests[0].Barcode != "8901234567890" || requests[0].ReorderQty != 200 {
		t.Fatalf("row 1 barcode/reorder qty mismatch: %+v", requests[0])
	}
	if requests[1].Classification != "prescription" || requests[1].ReorderLevel != 60 {
		t.Fatalf("row 2 mismatch: %+v", requests[1])
	}
}

func TestParseMedicinesHeaderDriven(t *testing.T) {
	// Columns out of order, extras ignored, no BOM.
	input := "unit_price_cents,name,notes\n300,Cetirizine 10mg,whatever\n"
	requests, rowErrors, err := ParseMedicines(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rowErrors) != 0 || len(requests) != 1 {
		t.Fatalf("got %d rows %d errors", len(requests), len(rowErrors))
	}
	if requests[0].Name != "Cetirizine 10mg" || requests[0].UnitPriceCents != 300 {
		t.Fatalf("mismatch: %+v", requests[0])
	}
}

func TestParseMedicinesCollectsRowErrors(t *testing.T) {
	input := strings.Join([]string{
		"name,unit_price_cents,reorder_level",
		"Good Med,100,10",
		",200,5",
		"Bad Price,abc,5",
		"Bad Level,100,-3",
		"Another Good,50,0",
	}, "\n")

	requests, rowErrors, err := ParseMedicines(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 good rows, got %d", len(requests))
	}
	if len(rowErrors) != 3 {
		t.Fatalf("expected 3 row errors, got %+v", rowErrors)
	}
	if rowErrors[0].Line != 3 || rowErrors[1].Line != 4 || rowErrors[2].Line != 5 {
		t.Fatalf("line numbers wrong: %+v", rowErrors)
	}
}

func TestParseMedicinesMissingRequiredColumn(t *testing.T) {
	if _, _, err := ParseMedicines(strings.NewReader("foo,bar\n1,2\n")); err == nil {
		t.Fatal("expected error for missing name column")
	}
}
