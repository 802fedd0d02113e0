// Package load moves one cleaned batch into the star schema: stage the rows
// wholesale, populate the dimensions insert-or-ignore, then populate the
// fact table with resolved dimension keys. All three steps of a batch run
// inside a single warehouse transaction, so a failure rolls back cleanly
// and leaves no partial state.
package load

import (
	"context"
	"fmt"

	"retailwh/internal/transform"
	"retailwh/internal/warehouse"
)

type Logger interface {
	Printf(format string, v ...any)
}

// Result summarizes one committed batch load.
type Result struct {
	Batch     string
	Staging   string // staging table name
	Staged    int64
	Customers int64 // new dimension rows (already-known keys not counted)
	Products  int64
	Dates     int64
	Facts     int64 // fact rows inserted (line_hash duplicates not counted)
	Unmatched int64 // staged rows whose dimension keys did not resolve
}

// BatchError carries the batch name so the orchestrator can log and skip
// the batch while the rest of the run continues.
type BatchError struct {
	Batch string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("load batch %s: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Loader loads cleaned batches through a warehouse repository.
type Loader struct {
	Repo   warehouse.Repository
	Logger Logger
}

// stagingColumns is the canonical spreadsheet column order plus the source
// line number, which preserves insertion order and feeds the fact line
// hash.
var stagingColumns = append(append([]string{}, transform.Columns...), "line_no")

// Load runs the full stage -> dimensions -> facts sequence for one cleaned
// batch and commits. Any failure rolls the whole batch back and returns a
// *BatchError.
func (l *Loader) Load(ctx context.Context, batch string, art *transform.Artifact) (*Result, error) {
	table, err := warehouse.StagingTable(batch)
	if err != nil {
		return nil, &BatchError{Batch: batch, Err: err}
	}
	res := &Result{Batch: batch, Staging: table}

	tx, err := l.Repo.Begin(ctx)
	if err != nil {
		return nil, &BatchError{Batch: batch, Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.run(ctx, tx, table, art, res); err != nil {
		return nil, &BatchError{Batch: batch, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &BatchError{Batch: batch, Err: fmt.Errorf("commit: %w", err)}
	}

	l.logf("stage=load batch=%s staged=%d customers=%d products=%d dates=%d facts=%d unmatched=%d",
		batch, res.Staged, res.Customers, res.Products, res.Dates, res.Facts, res.Unmatched)
	return res, nil
}

func (l *Loader) run(ctx context.Context, tx warehouse.Batch, table string, art *transform.Artifact, res *Result) error {
	rows := make([][]any, len(art.Rows))
	for i, r := range art.Rows {
		rows[i] = append(append(make([]any, 0, len(r)+1), r...), int64(art.Lines[i]))
	}

	staged, err := tx.ReplaceStaging(ctx, warehouse.StagingSpec(table), stagingColumns, rows)
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	res.Staged = staged

	// Dimensions and facts read the staged data back rather than reusing
	// the in-memory rows: the staging table is the contract, and the
	// read-back keeps dimension population correct even if staging ever
	// gains its own filtering.
	stagedRows, err := tx.SelectStagingRows(ctx, table, stagingColumns)
	if err != nil {
		return fmt.Errorf("read staging: %w", err)
	}

	if err := l.populateDimensions(ctx, tx, stagedRows, res); err != nil {
		return err
	}
	if err := l.populateFacts(ctx, tx, stagedRows, res); err != nil {
		return err
	}

	if err := tx.DropStaging(ctx, table); err != nil {
		return fmt.Errorf("drop staging: %w", err)
	}
	return nil
}

// populateDimensions upserts the customer, product and calendar dimensions
// from staged rows. Inserts are insert-or-ignore on the natural key, so
// keys already present from earlier batches stay untouched.
func (l *Loader) populateDimensions(ctx context.Context, tx warehouse.Batch, staged [][]any, res *Result) error {
	var (
		customers [][]any
		products  [][]any
		dates     [][]any

		seenCustomer = map[int64]bool{}
		seenProduct  = map[string]bool{}
		seenDate     = map[string]bool{}
	)

	for _, row := range staged {
		customerID, ok := asInt64(row[transform.ColCustomerID])
		if ok && !seenCustomer[customerID] {
			seenCustomer[customerID] = true
			customers = append(customers, []any{customerID, asString(row[transform.ColCountry])})
		}

		productID := asString(row[transform.ColStockCode])
		if productID != "" && !seenProduct[productID] {
			seenProduct[productID] = true
			price, _ := asFloat64(row[transform.ColUnitPrice])
			products = append(products, []any{productID, asString(row[transform.ColDescription]), price})
		}

		t, ok := transform.ParseInvoiceDate(asString(row[transform.ColInvoiceDate]))
		if !ok {
			continue
		}
		cal := transform.CalendarFor(t)
		if !seenDate[cal.Date] {
			seenDate[cal.Date] = true
			dates = append(dates, []any{cal.Date, cal.DayOfWeek, cal.Month, cal.Year, cal.Quarter})
		}
	}

	n, err := tx.UpsertDimensionRows(ctx, warehouse.TableCustomers,
		[]string{"customer_id", "country"}, customers, []string{"customer_id"})
	if err != nil {
		return fmt.Errorf("dim customers: %w", err)
	}
	res.Customers = n

	n, err = tx.UpsertDimensionRows(ctx, warehouse.TableProducts,
		[]string{"product_id", "product_description", "unit_price"}, products, []string{"product_id"})
	if err != nil {
		return fmt.Errorf("dim products: %w", err)
	}
	res.Products = n

	n, err = tx.UpsertDimensionRows(ctx, warehouse.TableTime,
		[]string{"invoice_date", "day_of_week", "month", "year", "quarter"}, dates, []string{"invoice_date"})
	if err != nil {
		return fmt.Errorf("dim time: %w", err)
	}
	res.Dates = n

	return nil
}

// populateFacts resolves the calendar surrogate key per staged row,
// computes the total amount, and inserts fact rows deduped on line_hash.
// Rows whose dimension keys do not resolve are counted in res.Unmatched,
// never silently dropped.
func (l *Loader) populateFacts(ctx context.Context, tx warehouse.Batch, staged [][]any, res *Result) error {
	dateKeys := make([]any, 0, 32)
	seen := map[string]bool{}
	for _, row := range staged {
		if t, ok := transform.ParseInvoiceDate(asString(row[transform.ColInvoiceDate])); ok {
			key := t.Format(transform.DateKeyLayout)
			if !seen[key] {
				seen[key] = true
				dateKeys = append(dateKeys, key)
			}
		}
	}

	timeIDs, err := tx.SelectKeyValueByKeys(ctx, warehouse.TableTime, "invoice_date", "time_id", dateKeys)
	if err != nil {
		return fmt.Errorf("resolve time keys: %w", err)
	}

	facts := make([][]any, 0, len(staged))
	for _, row := range staged {
		customerID, okCustomer := asInt64(row[transform.ColCustomerID])
		productID := asString(row[transform.ColStockCode])
		t, okDate := transform.ParseInvoiceDate(asString(row[transform.ColInvoiceDate]))

		var timeID int64
		okTime := false
		if okDate {
			timeID, okTime = timeIDs[warehouse.NormalizeKey(t.Format(transform.DateKeyLayout))]
		}

		if !okCustomer || productID == "" || !okTime {
			res.Unmatched++
			continue
		}

		quantity, _ := asInt64(row[transform.ColQuantity])
		price, _ := asFloat64(row[transform.ColUnitPrice])
		line, _ := asInt64(row[len(transform.Columns)]) // trailing line_no

		hash := transform.LineHash(
			asString(row[transform.ColInvoiceNo]),
			productID,
			customerID,
			transform.CanonicalInvoiceDate(t),
			line,
		)

		facts = append(facts, []any{
			productID, customerID, timeID,
			quantity, price, float64(quantity) * price,
			hash,
		})
	}

	n, err := tx.InsertFactRows(ctx, warehouse.TableSales,
		[]string{"product_id", "customer_id", "time_id", "quantity", "unit_price", "total_amount", "line_hash"},
		facts, []string{"line_hash"})
	if err != nil {
		return fmt.Errorf("facts: %w", err)
	}
	res.Facts = n
	return nil
}

func (l *Loader) logf(format string, v ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, v...)
	}
}
