package integrity

import (
	"context"
	"errors"
	"testing"
)

type fakeCatalog struct {
	tables  []string
	columns map[string][]string
	nulls   map[string]int64 // "table.column" -> count

	tablesErr  error
	columnsErr error
	countErr   error
}

func (c *fakeCatalog) Tables(context.Context) ([]string, error) {
	return c.tables, c.tablesErr
}

func (c *fakeCatalog) Columns(_ context.Context, table string) ([]string, error) {
	return c.columns[table], c.columnsErr
}

func (c *fakeCatalog) CountNulls(_ context.Context, table, column string) (int64, error) {
	if c.countErr != nil {
		return 0, c.countErr
	}
	return c.nulls[table+"."+column], nil
}

func starCatalog() *fakeCatalog {
	return &fakeCatalog{
		tables: []string{"dim_customers", "fact_sales"},
		columns: map[string][]string{
			"dim_customers": {"customer_id", "country"},
			"fact_sales":    {"sales_id", "customer_id", "total_amount"},
		},
		nulls: map[string]int64{
			"dim_customers.country":  3,
			"fact_sales.customer_id": 1,
		},
	}
}

func TestScanCoversEveryColumn(t *testing.T) {
	rep, err := Scan(context.Background(), starCatalog())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// Every column appears, including the clean ones: the report shows the
	// full surface, not only problems.
	if len(rep.Counts) != 5 {
		t.Fatalf("counts = %d, want 5", len(rep.Counts))
	}

	byKey := map[string]int64{}
	for _, c := range rep.Counts {
		byKey[c.Table+"."+c.Column] = c.Nulls
	}
	if byKey["dim_customers.country"] != 3 {
		t.Errorf("dim_customers.country = %d", byKey["dim_customers.country"])
	}
	if n, ok := byKey["fact_sales.total_amount"]; !ok || n != 0 {
		t.Errorf("clean column missing or nonzero: %d %v", n, ok)
	}
	if rep.Total() != 4 {
		t.Errorf("Total = %d, want 4", rep.Total())
	}
}

func TestScanOrderFollowsCatalog(t *testing.T) {
	rep, err := Scan(context.Background(), starCatalog())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if rep.Counts[0].Table != "dim_customers" || rep.Counts[0].Column != "customer_id" {
		t.Errorf("first count = %+v", rep.Counts[0])
	}
	last := rep.Counts[len(rep.Counts)-1]
	if last.Table != "fact_sales" || last.Column != "total_amount" {
		t.Errorf("last count = %+v", last)
	}
}

func TestScanWrapsCatalogFailures(t *testing.T) {
	sentinel := errors.New("db down")
	cases := map[string]*fakeCatalog{
		"tables":  {tablesErr: sentinel},
		"columns": func() *fakeCatalog { c := starCatalog(); c.columnsErr = sentinel; return c }(),
		"count":   func() *fakeCatalog { c := starCatalog(); c.countErr = sentinel; return c }(),
	}
	for name, cat := range cases {
		_, err := Scan(context.Background(), cat)
		var ce *CheckError
		if !errors.As(err, &ce) {
			t.Errorf("%s: err = %v, want *CheckError", name, err)
			continue
		}
		if !errors.Is(err, sentinel) {
			t.Errorf("%s: cause not preserved: %v", name, err)
		}
	}
}
