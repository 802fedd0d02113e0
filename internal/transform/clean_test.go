package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// rowsStream feeds fixed raw rows, mimicking a parser.
func rowsStream(rows [][]any) StreamFn {
	return func(ctx context.Context, path string, out chan<- *Row, onErr func(line int, err error)) error {
		for i, vals := range rows {
			r := GetRow(len(Columns))
			r.Line = i + 2 // header is line 1
			copy(r.V, vals)
			select {
			case out <- r:
			case <-ctx.Done():
				r.Drop()
				return ctx.Err()
			}
		}
		return nil
	}
}

func raw(invoice, stock, desc, qty, date, price, customer, country any) []any {
	return []any{invoice, stock, desc, qty, date, price, customer, country}
}

func TestCleanQuantityPriceFilter(t *testing.T) {
	// One kept row, one negative quantity (a return), one zero price.
	c := &Cleaner{Stream: rowsStream([][]any{
		raw("536365", "85123A", "WHITE HANGING HEART", "6", "12/1/2010 8:26", "2.55", "17850", "United Kingdom"),
		raw("C536379", "D", "Discount", "-1", "12/1/2010 9:41", "27.50", "14527", "United Kingdom"),
		raw("536414", "22139", "RETROSPOT TEA SET", "56", "12/1/2010 11:52", "0", "17850", "United Kingdom"),
	})}

	art, err := c.Clean(context.Background(), "dec_2010.csv")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	if len(art.Rows) != 1 {
		t.Fatalf("kept %d rows, want 1", len(art.Rows))
	}
	if art.Dropped.NonPositive != 2 {
		t.Errorf("NonPositive = %d, want 2", art.Dropped.NonPositive)
	}

	row := art.Rows[0]
	if row[ColQuantity] != int64(6) {
		t.Errorf("quantity = %v (%T), want int64 6", row[ColQuantity], row[ColQuantity])
	}
	if row[ColUnitPrice] != 2.55 {
		t.Errorf("unit_price = %v, want 2.55", row[ColUnitPrice])
	}
	if row[ColCustomerID] != int64(17850) {
		t.Errorf("customer_id = %v, want 17850", row[ColCustomerID])
	}
	if row[ColInvoiceDate] != "01/12/2010 08:26:00 AM" {
		t.Errorf("invoice_date = %v, want canonical form", row[ColInvoiceDate])
	}
	if art.Lines[0] != 2 {
		t.Errorf("source line = %d, want 2", art.Lines[0])
	}
}

func TestCleanDropsMissingFields(t *testing.T) {
	c := &Cleaner{Stream: rowsStream([][]any{
		raw("536365", "85123A", "OK ROW", "6", "12/1/2010 8:26", "2.55", "17850", "United Kingdom"),
		raw("536366", "85123B", nil, "6", "12/1/2010 8:26", "2.55", "17850", "United Kingdom"),     // no description
		raw("536367", "85123C", "NO CUSTOMER", "6", "12/1/2010 8:26", "2.55", nil, "France"),       // anonymous sale
		raw("536368", "85123D", "BAD DATE", "6", "yesterday-ish", "2.55", "17850", "United Kingdom"), // malformed date
	})}

	art, err := c.Clean(context.Background(), "batch.csv")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(art.Rows) != 1 {
		t.Fatalf("kept %d rows, want 1", len(art.Rows))
	}
	if art.Dropped.Missing != 3 {
		t.Errorf("Missing = %d, want 3", art.Dropped.Missing)
	}
}

// A malformed date must be coerced to a missing value and fall out in the
// null filter, never survive as text.
func TestCleanCoercesDateBeforeFiltering(t *testing.T) {
	c := &Cleaner{Stream: rowsStream([][]any{
		raw("1", "A", "X", "1", "13/13/2010 99:99", "1.0", "1", "UK"),
	})}

	art, err := c.Clean(context.Background(), "b.csv")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(art.Rows) != 0 {
		t.Fatalf("kept %d rows, want 0", len(art.Rows))
	}
	if art.Dropped.Missing != 1 {
		t.Errorf("Missing = %d, want 1 (date coerced to null)", art.Dropped.Missing)
	}
}

func TestCleanEscapesQuotes(t *testing.T) {
	c := &Cleaner{Stream: rowsStream([][]any{
		raw("1", "A", "IT'S A BARGAIN", "1", "12/1/2010 8:26", "1.0", "1", "UK"),
	})}

	art, err := c.Clean(context.Background(), "b.csv")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got := art.Rows[0][ColDescription]; got != "IT''S A BARGAIN" {
		t.Errorf("description = %q, want doubled quote", got)
	}
}

func TestCleanAcceptsFloatSpelledIDs(t *testing.T) {
	// XLSX exports spell integer ids as "17850.0".
	c := &Cleaner{Stream: rowsStream([][]any{
		raw("1", "A", "X", "2.0", "12/1/2010 8:26", "1.0", "17850.0", "UK"),
	})}

	art, err := c.Clean(context.Background(), "b.csv")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(art.Rows) != 1 {
		t.Fatalf("kept %d rows, want 1", len(art.Rows))
	}
	if art.Rows[0][ColCustomerID] != int64(17850) {
		t.Errorf("customer_id = %v, want 17850", art.Rows[0][ColCustomerID])
	}
	if art.Rows[0][ColQuantity] != int64(2) {
		t.Errorf("quantity = %v, want 2", art.Rows[0][ColQuantity])
	}
}

func TestCleanStreamFailureIsFileError(t *testing.T) {
	c := &Cleaner{Stream: func(ctx context.Context, path string, out chan<- *Row, onErr func(int, error)) error {
		return os.ErrNotExist
	}}

	_, err := c.Clean(context.Background(), "missing.csv")
	if err == nil {
		t.Fatal("want error")
	}
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *transform.Error", err)
	}
	if te.Path != "missing.csv" {
		t.Errorf("Path = %q", te.Path)
	}
}

func TestCleanWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	c := &Cleaner{
		Stream: rowsStream([][]any{
			raw("536365", "85123A", "WHITE HANGING HEART", "6", "12/1/2010 8:26", "2.55", "17850", "United Kingdom"),
		}),
		OutDir: dir,
	}

	art, err := c.Clean(context.Background(), filepath.Join("in", "dec_2010.csv"))
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	if art.CSVPath != filepath.Join(dir, "dec_2010_cleaned.csv") {
		t.Errorf("CSVPath = %q", art.CSVPath)
	}
	if art.XLSXPath != filepath.Join(dir, "dec_2010_cleaned.xlsx") {
		t.Errorf("XLSXPath = %q", art.XLSXPath)
	}

	f, err := os.Open(art.CSVPath)
	if err != nil {
		t.Fatalf("open cleaned csv: %v", err)
	}
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read cleaned csv: %v", err)
	}
	if len(recs) != 2 { // header + one row
		t.Fatalf("cleaned csv has %d records, want 2", len(recs))
	}
	if recs[0][0] != "invoice_no" {
		t.Errorf("header = %v", recs[0])
	}
	if recs[1][ColInvoiceDate] != "01/12/2010 08:26:00 AM" {
		t.Errorf("csv date = %q", recs[1][ColInvoiceDate])
	}

	if _, err := os.Stat(art.XLSXPath); err != nil {
		t.Errorf("xlsx artifact: %v", err)
	}
}
