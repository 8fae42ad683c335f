// Package csvio reads and writes the catalog exchange files. Exports
// carry a UTF-8 BOM so spreadsheet tools pick the right encoding, and
// imports tolerate one.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pharmapos/backend/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// MedicineHeader is the canonical column order for medicine files.
var MedicineHeader = []string{
	"name",
	"generic_name",
	"barcode",
	"manufacturer",
	"category",
	"classification",
	"unit_price_cents",
	"purchase_price_cents",
	"mrp_cents",
	"reorder_level",
	"reorder_qty",
	"unit",
	"rack_location",
	"web_live",
}

func writeBOM(w io.Writer) error {
	_, err := w.Write(utf8BOM)
	return err
}

// WriteMedicineTemplate emits a header-only file for download.
func WriteMedicineTemplate(w io.Writer) error {
	if err := writeBOM(w); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(MedicineHeader); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func ExportMedicines(w io.Writer, medicines []domain.Medicine) error {
	if err := writeBOM(w); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(MedicineHeader); err != nil {
		return err
	}
	for _, med := range medicines {
		record := []string{
			med.Name,
			med.GenericName,
			med.Barcode,
			med.Manufacturer,
			med.Category,
			med.Classification,
			strconv.FormatInt(med.UnitPriceCents, 10),
			strconv.FormatInt(med.PurchasePriceCents, 10),
			strconv.FormatInt(med.MRPCents, 10),
			strconv.Itoa(med.ReorderLevel),
			strconv.Itoa(med.ReorderQty),
			med.Unit,
			med.RackLocation,
			strconv.FormatBool(med.WebLive),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ExportBatches(w io.Writer, batches []domain.Batch, medicines map[string]domain.Medicine) error {
	if err := writeBOM(w); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	header := []string{"medicine", "batch_number", "expiry_date", "qty_available", "qty_received", "purchase_price_cents", "source", "received_at"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, batch := range batches {
		name := batch.MedicineID
		if med, ok := medicines[batch.MedicineID]; ok {
			name = med.Name
		}
		expiry := ""
		if batch.ExpiryDate != nil {
			expiry = batch.ExpiryDate.Format("2006-01-02")
		}
		record := []string{
			name,
			batch.BatchNumber,
			expiry,
			strconv.Itoa(batch.QtyAvailable),
			strconv.Itoa(batch.QtyReceived),
			strconv.FormatInt(batch.PurchasePriceCents, 10),
			batch.SourceType,
			batch.ReceivedAt.Format("2006-01-02"),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ParseMedicines reads an import file. The header row decides column
// positions, so reordered or partial files still load. Bad rows are
// collected rather than aborting the import.
func ParseMedicines(r io.Reader) ([]domain.MedicineCreateRequest, []domain.ImportRowError, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["name"]; !ok {
		return nil, nil, fmt.Errorf("missing required column %q", "name")
	}
	if _, ok := columns["unit_price_cents"]; !ok {
		return nil, nil, fmt.Errorf("missing required column %q", "unit_price_cents")
	}

	var requests []domain.MedicineCreateRequest
	var rowErrors []domain.ImportRowError
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrors = append(rowErrors, domain.ImportRowError{Line: line, Message: err.Error()})
			continue
		}

		field := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		req := domain.MedicineCreateRequest{
			Name:           field("name"),
			GenericName:    field("generic_name"),
			Barcode:        field("barcode"),
			Manufacturer:   field("manufacturer"),
			Category:       field("category"),
			Classification: field("classification"),
			Unit:           field("unit"),
			RackLocation:   field("rack_location"),
		}
		if req.Name == "" {
			rowErrors = append(rowErrors, domain.ImportRowError{Line: line, Message: "name is required"})
			continue
		}

		var rowErr string
		req.UnitPriceCents, rowErr = parseCents(field("unit_price_cents"), true)
		if rowErr != "" {
			rowErrors = append(rowErrors, domain.ImportRowError{Line: line, Message: "unit_price_cents: " + rowErr})
			continue
		}
		req.PurchasePriceCents, rowErr = parseCents(field("purchase_price_cents"), false)
		if rowErr != "" {
			rowErrors = append(rowErrors, domain.ImportRowError{Line: line, Message: "purchase_price_cents: " + rowErr})
			continue
		}
		req.MRPCents, rowErr = parseCents(field("mrp_cents"), false)
		if rowErr != "" {
			rowErrors = append(rowErrors, domain.ImportRowError{Line: line, Message: "mrp_cents: " + rowErr})
			continue
		}

		if raw := field("reorder_level"); raw != "" {
			level, err := strconv.Atoi(raw)
			if err != nil || level < 0 {
				rowErrors = append(rowErrors, domain.ImportRowError{Line: line, Message: "reorder_level must be a non-negative integer"})
				continue
			}
			req.ReorderLevel = level
		}
		if raw := field("reorder_qty"); raw != "" {
			qty, err := strconv.Atoi(raw)
			if err != nil || qty < 0 {
				rowErrors = append(rowErrors, domain.ImportRowError{Line: line, Message: "reorder_qty must be a non-negative integer"})
				continue
			}
			req.ReorderQty = qty
		}
		if raw := field("web_live"); raw != "" {
			live, err := strconv.ParseBool(raw)
			if err != nil {
				rowErrors = append(rowErrors, domain.ImportRowError{Line: line, Message: "web_live must be true or false"})
				continue
			}
			req.WebLive = live
		}

		requests = append(requests, req)
	}

	return requests, rowErrors, nil
}

func parseCents(raw string, required bool) (int64, string) {
	if raw == "" {
		if required {
			return 0, "value is required"
		}
		return 0, ""
	}
	cents, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cents < 0 {
		return 0, "must be a non-negative integer"
	}
	return cents, ""
}

// stripBOM drops a leading UTF-8 byte order mark if present.
func stripBOM(r io.Reader) io.Reader {
	buffered := make([]byte, 3)
	n, err := io.ReadFull(r, buffered)
	if err != nil {
		return io.MultiReader(strings.NewReader(string(buffered[:n])), r)
	}
	if buffered[0] == utf8BOM[0] && buffered[1] == utf8BOM[1] && buffered[2] == utf8BOM[2] {
		return r
	}
	return io.MultiReader(strings.NewReader(string(buffered)), r)
}
