package transform

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Logger is the minimal logging interface used by the cleaner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// StreamFn feeds raw rows for one source file into out, aligned to Columns.
// The pipeline wires this to the CSV or XLSX parser by file extension; tests
// inject deterministic rows. Implementations must not close out.
type StreamFn func(ctx context.Context, path string, out chan<- *Row, onErr func(line int, err error)) error

// Error reports a source file that could not be cleaned at all. Per-row
// issues never produce an Error; they only drop the offending row.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("transform %s: %v", e.Path, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// DropStats counts rows removed during cleaning, by reason.
type DropStats struct {
	Missing     int // a required field was absent after coercion
	NonPositive int // quantity or unit price <= 0
	ParseErrors int // source records the parser could not read
}

func (d DropStats) Total() int { return d.Missing + d.NonPositive + d.ParseErrors }

// Artifact is the cleaned row set for one ingestion batch, plus the paths of
// its persisted CSV/XLSX forms.
type Artifact struct {
	Source  string // raw input path
	Batch   string // file base name, used for staging table naming
	Columns []string

	// Rows hold typed values aligned to Columns: quantity int64, unit_price
	// float64, customer_id int64, invoice_date in CanonicalDateLayout,
	// everything else string.
	Rows  [][]any
	Lines []int // source line per row, parallel to Rows

	CSVPath  string
	XLSXPath string
	Dropped  DropStats
}

// Cleaner turns one raw spreadsheet into a staging-ready Artifact.
type Cleaner struct {
	Stream StreamFn
	Logger Logger

	// OutDir receives the cleaned CSV and XLSX artifacts. Empty disables
	// artifact writing (unit tests).
	OutDir string
}

// Clean runs the cleaning steps over every row of the file at path.
//
// Order matters: the invoice date is coerced (invalid formats become a
// missing value) before null filtering, so a malformed date can never
// survive as non-null garbage text. After filtering, quantity and unit
// price must both be positive; returns, cancellations and zero-priced
// lines fall out here.
func (c *Cleaner) Clean(ctx context.Context, path string) (*Artifact, error) {
	if c.Stream == nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("cleaner: Stream is required")}
	}
	logf := c.logf()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	art := &Artifact{
		Source:  path,
		Batch:   base,
		Columns: append([]string(nil), Columns...),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh := make(chan *Row, 256)

	var mu sync.Mutex
	onErr := func(line int, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		art.Dropped.ParseErrors++
		mu.Unlock()
		logf("stage=clean file=%s line=%d parse_error=%v", path, line, err)
	}

	var wg sync.WaitGroup
	var streamErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(rowCh)
		streamErr = c.Stream(ctx, path, rowCh, onErr)
	}()

	for r := range rowCh {
		select {
		case <-ctx.Done():
			r.Drop()
			continue
		default:
		}
		if r == nil || len(r.V) != len(Columns) {
			if r != nil {
				r.Free()
			}
			continue
		}
		if vals, ok := cleanRow(r, &art.Dropped); ok {
			art.Rows = append(art.Rows, vals)
			art.Lines = append(art.Lines, r.Line)
		}
		r.Free()
	}
	wg.Wait()

	if streamErr != nil && streamErr != context.Canceled {
		return nil, &Error{Path: path, Err: streamErr}
	}
	if err := ctx.Err(); err != nil && err != context.Canceled {
		return nil, &Error{Path: path, Err: err}
	}

	if c.OutDir != "" {
		if err := c.writeArtifacts(art); err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	}

	logf("stage=clean file=%s kept=%d dropped_missing=%d dropped_nonpositive=%d parse_errors=%d",
		path, len(art.Rows), art.Dropped.Missing, art.Dropped.NonPositive, art.Dropped.ParseErrors)
	return art, nil
}

// cleanRow applies the per-row cleaning steps and returns the detached,
// typed value slice when the row survives.
func cleanRow(r *Row, drops *DropStats) ([]any, bool) {
	// Date coercion first: a bad format becomes nil and is caught by the
	// null filter below, never passed through as text.
	var canonicalDate any
	if t, ok := ParseInvoiceDate(asText(r.V[ColInvoiceDate])); ok {
		canonicalDate = CanonicalInvoiceDate(t)
	}

	qty, qtyOK := parseInt(r.V[ColQuantity])
	price, priceOK := parseFloat(r.V[ColUnitPrice])
	customer, customerOK := parseInt(r.V[ColCustomerID])

	vals := []any{
		nilIfEmpty(asText(r.V[ColInvoiceNo])),
		nilIfEmpty(asText(r.V[ColStockCode])),
		nilIfEmpty(escapeQuotes(asText(r.V[ColDescription]))),
		nil, // quantity, set below
		canonicalDate,
		nil, // unit_price, set below
		nil, // customer_id, set below
		nilIfEmpty(asText(r.V[ColCountry])),
	}
	if qtyOK {
		vals[ColQuantity] = qty
	}
	if priceOK {
		vals[ColUnitPrice] = price
	}
	if customerOK {
		vals[ColCustomerID] = customer
	}

	for _, v := range vals {
		if v == nil {
			drops.Missing++
			return nil, false
		}
	}
	if qty <= 0 || price <= 0 {
		drops.NonPositive++
		return nil, false
	}
	return vals, true
}

// escapeQuotes doubles embedded single quotes in free text so descriptions
// survive any downstream raw SQL interpolation. The loader itself binds all
// values, so this is belt-and-braces for ad hoc consumers of the artifact.
func escapeQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	return strings.ReplaceAll(s, "'", "''")
}

func (c *Cleaner) logf() func(format string, v ...any) {
	if c.Logger == nil {
		return func(string, ...any) {}
	}
	return c.Logger.Printf
}

func asText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if HasEdgeSpace(t) {
			return strings.TrimSpace(t)
		}
		return t
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// parseInt accepts integer text plus the "17850.0" float spelling XLSX
// exports produce for identifier columns.
func parseInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if t == math.Trunc(t) {
			return int64(t), true
		}
		return 0, false
	}
	s := asText(v)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
		return int64(f), true
	}
	return 0, false
}

func parseFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	s := asText(v)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
