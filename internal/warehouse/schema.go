package warehouse

import (
	"fmt"
	"regexp"
	"strings"
)

// Warehouse table names. Dimensions load before facts so the FK references
// in StarSchema always resolve.
const (
	TableCustomers = "dim_customers"
	TableProducts  = "dim_products"
	TableTime      = "dim_time"
	TableSales     = "fact_sales"
)

// StagingPrefix marks transient per-batch staging tables; catalog scans
// exclude them.
const StagingPrefix = "stg_"

// StarSchema returns the warehouse tables in dependency order (dimensions
// first). Backends feed these specs to their DDL builders. Attribute columns
// stay nullable so the post-load integrity scan can observe gaps; only the
// keys and line_hash carry NOT NULL.
func StarSchema() []TableSpec {
	return []TableSpec{
		{
			Name: TableCustomers,
			Columns: []ColumnSpec{
				{Name: "customer_id", Type: "BIGINT", PrimaryKey: true},
				{Name: "country", Type: "TEXT", Nullable: true},
			},
		},
		{
			Name: TableProducts,
			Columns: []ColumnSpec{
				{Name: "product_id", Type: "TEXT", PrimaryKey: true},
				{Name: "product_description", Type: "TEXT", Nullable: true},
				{Name: "unit_price", Type: "DOUBLE PRECISION", Nullable: true},
			},
		},
		{
			Name:      TableTime,
			Surrogate: &SurrogateSpec{Name: "time_id"},
			Columns: []ColumnSpec{
				{Name: "invoice_date", Type: "DATE", Nullable: true},
				{Name: "day_of_week", Type: "TEXT", Nullable: true},
				{Name: "month", Type: "TEXT", Nullable: true},
				{Name: "year", Type: "BIGINT", Nullable: true},
				{Name: "quarter", Type: "TEXT", Nullable: true},
			},
			Constraints: []ConstraintSpec{
				{Kind: "unique", Columns: []string{"invoice_date"}},
			},
		},
		{
			Name:      TableSales,
			Surrogate: &SurrogateSpec{Name: "sales_id"},
			Columns: []ColumnSpec{
				{Name: "product_id", Type: "TEXT", Nullable: true, References: TableProducts + "(product_id)"},
				{Name: "customer_id", Type: "BIGINT", Nullable: true, References: TableCustomers + "(customer_id)"},
				{Name: "time_id", Type: "BIGINT", Nullable: true, References: TableTime + "(time_id)"},
				{Name: "quantity", Type: "INT", Nullable: true},
				{Name: "unit_price", Type: "DOUBLE PRECISION", Nullable: true},
				{Name: "total_amount", Type: "DOUBLE PRECISION", Nullable: true},
				{Name: "line_hash", Type: "TEXT"},
			},
			Constraints: []ConstraintSpec{
				{Kind: "unique", Columns: []string{"line_hash"}},
			},
		},
	}
}

// StagingSpec describes the transient staging table for one batch: the eight
// canonical spreadsheet columns as loose TEXT plus the source line number,
// no constraints. The loader replaces its contents wholesale.
func StagingSpec(table string) TableSpec {
	return TableSpec{
		Name: table,
		Columns: []ColumnSpec{
			{Name: "invoice_no", Type: "TEXT", Nullable: true},
			{Name: "stock_code", Type: "TEXT", Nullable: true},
			{Name: "description", Type: "TEXT", Nullable: true},
			{Name: "quantity", Type: "BIGINT", Nullable: true},
			{Name: "invoice_date", Type: "TEXT", Nullable: true},
			{Name: "unit_price", Type: "DOUBLE PRECISION", Nullable: true},
			{Name: "customer_id", Type: "BIGINT", Nullable: true},
			{Name: "country", Type: "TEXT", Nullable: true},
			{Name: "line_no", Type: "BIGINT", Nullable: true},
		},
	}
}

// identRe is the identifier allowlist: every table and column name that
// reaches a SQL builder must match it. Values never travel inside SQL text,
// only identifiers do, so this plus placeholders closes the injection
// surface.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// CheckIdent validates a single SQL identifier against the allowlist.
func CheckIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("warehouse: invalid identifier %q", name)
	}
	return nil
}

// StagingTable derives the staging table name for a batch, sanitizing the
// batch name down to the identifier allowlist. A batch name with no usable
// characters is an error.
func StagingTable(batch string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(batch) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_', r == '-', r == ' ', r == '.':
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "", fmt.Errorf("warehouse: batch name %q yields no staging identifier", batch)
	}
	table := StagingPrefix + name
	if err := CheckIdent(table); err != nil {
		return "", err
	}
	return table, nil
}
