package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"retailwh/internal/warehouse"
)

// openTestRepo creates a repo on a throwaway database file. A file (not
// ":memory:") because database/sql pools connections and each in-memory
// connection would see its own empty database.
func openTestRepo(t *testing.T) warehouse.Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "warehouse.db")
	repo, err := New(context.Background(), warehouse.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite repo: %v", err)
	}
	t.Cleanup(repo.Close)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return repo
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	repo := openTestRepo(t)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}

	tables, err := repo.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	want := map[string]bool{
		warehouse.TableCustomers: false,
		warehouse.TableProducts:  false,
		warehouse.TableTime:      false,
		warehouse.TableSales:     false,
	}
	for _, tb := range tables {
		if _, ok := want[tb]; ok {
			want[tb] = true
		}
	}
	for tb, seen := range want {
		if !seen {
			t.Errorf("table %s missing from catalog", tb)
		}
	}
}

func TestColumnsOrder(t *testing.T) {
	repo := openTestRepo(t)
	cols, err := repo.Columns(context.Background(), warehouse.TableTime)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	want := []string{"time_id", "invoice_date", "day_of_week", "month", "year", "quarter"}
	if len(cols) != len(want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("columns[%d] = %s, want %s", i, cols[i], want[i])
		}
	}
}

// loadOneBatch pushes a minimal cleaned batch through the full Batch
// surface and commits.
func loadOneBatch(t *testing.T, repo warehouse.Repository) (facts int64) {
	t.Helper()
	ctx := context.Background()

	b, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer b.Rollback(ctx)

	staging, err := warehouse.StagingTable("dec_2010")
	if err != nil {
		t.Fatalf("StagingTable: %v", err)
	}
	stagingCols := []string{"invoice_no", "stock_code", "description", "quantity", "invoice_date", "unit_price", "customer_id", "country", "line_no"}
	staged, err := b.ReplaceStaging(ctx, warehouse.StagingSpec(staging), stagingCols, [][]any{
		{"536365", "85123A", "WHITE HANGING HEART", int64(6), "01/12/2010 08:26:00 AM", 2.55, int64(17850), "United Kingdom", int64(2)},
		{"536365", "71053", "WHITE METAL LANTERN", int64(6), "01/12/2010 08:26:00 AM", 3.39, int64(17850), "United Kingdom", int64(3)},
	})
	if err != nil {
		t.Fatalf("ReplaceStaging: %v", err)
	}
	if staged != 2 {
		t.Fatalf("staged = %d, want 2", staged)
	}

	back, err := b.SelectStagingRows(ctx, staging, stagingCols)
	if err != nil {
		t.Fatalf("SelectStagingRows: %v", err)
	}
	if len(back) != 2 {
		t.Fatalf("staging read-back = %d rows, want 2", len(back))
	}
	if warehouse.NormalizeKey(back[0][0]) != "536365" {
		t.Errorf("read-back invoice_no = %v", back[0][0])
	}

	if _, err := b.UpsertDimensionRows(ctx, warehouse.TableCustomers, []string{"customer_id", "country"}, [][]any{
		{int64(17850), "United Kingdom"},
	}, []string{"customer_id"}); err != nil {
		t.Fatalf("upsert customers: %v", err)
	}
	if _, err := b.UpsertDimensionRows(ctx, warehouse.TableProducts, []string{"product_id", "product_description", "unit_price"}, [][]any{
		{"85123A", "WHITE HANGING HEART", 2.55},
		{"71053", "WHITE METAL LANTERN", 3.39},
	}, []string{"product_id"}); err != nil {
		t.Fatalf("upsert products: %v", err)
	}
	if _, err := b.UpsertDimensionRows(ctx, warehouse.TableTime, []string{"invoice_date", "day_of_week", "month", "year", "quarter"}, [][]any{
		{"2010-12-01", "Wednesday", "December", int64(2010), "Q4"},
	}, []string{"invoice_date"}); err != nil {
		t.Fatalf("upsert time: %v", err)
	}

	timeIDs, err := b.SelectKeyValueByKeys(ctx, warehouse.TableTime, "invoice_date", "time_id", []any{"2010-12-01"})
	if err != nil {
		t.Fatalf("SelectKeyValueByKeys: %v", err)
	}
	timeID, ok := timeIDs["2010-12-01"]
	if !ok {
		t.Fatalf("time key lookup missed: %v", timeIDs)
	}

	factCols := []string{"product_id", "customer_id", "time_id", "quantity", "unit_price", "total_amount", "line_hash"}
	facts, err = b.InsertFactRows(ctx, warehouse.TableSales, factCols, [][]any{
		{"85123A", int64(17850), timeID, int64(6), 2.55, 15.30, "hash-a"},
		{"71053", int64(17850), timeID, int64(6), 3.39, 20.34, "hash-b"},
	}, []string{"line_hash"})
	if err != nil {
		t.Fatalf("InsertFactRows: %v", err)
	}

	if err := b.DropStaging(ctx, staging); err != nil {
		t.Fatalf("DropStaging: %v", err)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return facts
}

func TestBatchLoadAndDedupe(t *testing.T) {
	repo := openTestRepo(t)

	if n := loadOneBatch(t, repo); n != 2 {
		t.Fatalf("first load inserted %d facts, want 2", n)
	}
	// Reprocessing the identical batch must be a no-op on facts.
	if n := loadOneBatch(t, repo); n != 0 {
		t.Fatalf("second load inserted %d facts, want 0", n)
	}

	// The customer seen in both batches still has exactly one dimension row.
	aggs, err := repo.CustomerAggregates(context.Background())
	if err != nil {
		t.Fatalf("CustomerAggregates: %v", err)
	}
	if len(aggs) != 1 || aggs[0].CustomerID != 17850 {
		t.Errorf("aggregates = %v, want one row for customer 17850", aggs)
	}

	// Staging tables never outlive a batch, so the catalog stays clean.
	tables, err := repo.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	for _, tb := range tables {
		if tb == "stg_dec_2010" {
			t.Error("staging table leaked past commit")
		}
	}
}

func TestCountNulls(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := b.UpsertDimensionRows(ctx, warehouse.TableCustomers, []string{"customer_id", "country"}, [][]any{
		{int64(1), "France"},
		{int64(2), nil},
	}, []string{"customer_id"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	n, err := repo.CountNulls(ctx, warehouse.TableCustomers, "country")
	if err != nil {
		t.Fatalf("CountNulls: %v", err)
	}
	if n != 1 {
		t.Errorf("null countries = %d, want 1", n)
	}

	if _, err := repo.CountNulls(ctx, warehouse.TableCustomers, `country";--`); err == nil {
		t.Error("want identifier error for bad column name")
	}
}

func TestRollbackDiscardsBatch(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := b.UpsertDimensionRows(ctx, warehouse.TableCustomers, []string{"customer_id", "country"}, [][]any{
		{int64(99), "Spain"},
	}, []string{"customer_id"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := b.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	// The row must not have survived the rollback.
	ids, err := beginLookup(t, repo, warehouse.TableCustomers, "customer_id", "customer_id", []any{int64(99)})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("rolled-back row is visible: %v", ids)
	}
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := b.Rollback(ctx); err != nil {
		t.Errorf("Rollback after Commit = %v, want nil", err)
	}
}

func TestDropStagingRefusesWarehouseTables(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer b.Rollback(ctx)

	if err := b.DropStaging(ctx, warehouse.TableSales); err == nil {
		t.Error("DropStaging accepted a non-staging table")
	}
}

func TestReports(t *testing.T) {
	repo := openTestRepo(t)
	if n := loadOneBatch(t, repo); n != 2 {
		t.Fatalf("load: %d facts", n)
	}

	aggs, err := repo.CustomerAggregates(context.Background())
	if err != nil {
		t.Fatalf("CustomerAggregates: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("aggregates = %v, want one customer", aggs)
	}
	if aggs[0].CustomerID != 17850 || aggs[0].Purchases != 2 {
		t.Errorf("aggregate = %+v", aggs[0])
	}
	if diff := aggs[0].TotalSpent - 35.64; diff < -0.001 || diff > 0.001 {
		t.Errorf("total_spent = %f, want 35.64", aggs[0].TotalSpent)
	}

	months, err := repo.MonthlySales(context.Background())
	if err != nil {
		t.Fatalf("MonthlySales: %v", err)
	}
	if len(months) != 1 || months[0].Year != 2010 || months[0].Month != "December" {
		t.Fatalf("months = %v", months)
	}
}

// beginLookup runs SelectKeyValueByKeys in a short transaction.
func beginLookup(t *testing.T, repo warehouse.Repository, table, key, value string, keys []any) (map[string]int64, error) {
	t.Helper()
	ctx := context.Background()
	b, err := repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer b.Rollback(ctx)
	return b.SelectKeyValueByKeys(ctx, table, key, value, keys)
}
