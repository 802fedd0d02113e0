package mssql

import (
	"strings"
	"testing"

	"retailwh/internal/warehouse"
)

func TestMsType(t *testing.T) {
	cases := map[string]string{
		"TEXT":             "NVARCHAR(255)",
		"DOUBLE PRECISION": "FLOAT",
		"BIGINT":           "BIGINT",
		"DATE":             "DATE",
	}
	for in, want := range cases {
		if got := msType(in); got != want {
			t.Errorf("msType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildCreateSQLGuarded(t *testing.T) {
	spec := warehouse.TableSpec{
		Name:      "dim_time",
		Surrogate: &warehouse.SurrogateSpec{Name: "time_id"},
		Columns: []warehouse.ColumnSpec{
			{Name: "invoice_date", Type: "DATE"},
			{Name: "year", Type: "BIGINT"},
		},
		Constraints: []warehouse.ConstraintSpec{
			{Kind: "unique", Columns: []string{"invoice_date"}},
		},
	}
	sql, err := buildCreateSQL("dw_online_retail", spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, frag := range []string{
		"IF OBJECT_ID(N'dw_online_retail.dim_time', N'U') IS NULL",
		"CREATE TABLE [dw_online_retail].[dim_time]",
		"[time_id] BIGINT IDENTITY(1,1) PRIMARY KEY",
		"[invoice_date] DATE NOT NULL",
		"UNIQUE ([invoice_date])",
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("DDL missing %s:\n%s", frag, sql)
		}
	}
}

func TestBuildCreateSQLFactReferences(t *testing.T) {
	var fact warehouse.TableSpec
	for _, s := range warehouse.StarSchema() {
		if s.Name == warehouse.TableSales {
			fact = s
		}
	}
	sql, err := buildCreateSQL("dw_online_retail", fact)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(sql, "[product_id] NVARCHAR(255) REFERENCES [dw_online_retail].[dim_products]([product_id])") {
		t.Errorf("fact DDL missing product FK:\n%s", sql)
	}
	if strings.Contains(sql, "[quantity] INT NOT NULL") {
		t.Errorf("fact attribute columns must stay nullable:\n%s", sql)
	}
	if !strings.Contains(sql, "[line_hash] NVARCHAR(255) NOT NULL") {
		t.Errorf("fact DDL missing line_hash NOT NULL:\n%s", sql)
	}
	if !strings.Contains(sql, "UNIQUE ([line_hash])") {
		t.Errorf("fact DDL missing line_hash unique:\n%s", sql)
	}
}

func TestBuildBulkInsertSQLPlaceholders(t *testing.T) {
	sql, args, err := buildBulkInsertSQL(
		qualify("dw", "stg_dec_2010"),
		[]string{"invoice_no", "line_no"},
		[][]any{{"536365", int64(2)}, {"536366", int64(3)}},
	)
	if err != nil {
		t.Fatalf("buildBulkInsertSQL: %v", err)
	}
	want := "INSERT INTO [dw].[stg_dec_2010] ([invoice_no], [line_no]) VALUES (@p1, @p2), (@p3, @p4)"
	if sql != want {
		t.Errorf("sql = %s\nwant %s", sql, want)
	}
	if len(args) != 4 || args[3] != int64(3) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildInsertNotExistsSQL(t *testing.T) {
	sql, args, err := buildInsertNotExistsSQL(
		qualify("dw", "dim_customers"),
		[]string{"customer_id", "country"},
		[][]any{{int64(17850), "United Kingdom"}},
		[]string{"customer_id"},
	)
	if err != nil {
		t.Fatalf("buildInsertNotExistsSQL: %v", err)
	}
	for _, frag := range []string{
		"INSERT INTO [dw].[dim_customers] ([customer_id], [country])",
		"SELECT v.[customer_id], v.[country] FROM (VALUES (@p1, @p2)) AS v([customer_id], [country])",
		"WHERE NOT EXISTS (SELECT 1 FROM [dw].[dim_customers] t WHERE t.[customer_id] = v.[customer_id])",
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("sql missing %s:\n%s", frag, sql)
		}
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}

func TestBuildInsertNotExistsSQLValidatesDedupeColumns(t *testing.T) {
	_, _, err := buildInsertNotExistsSQL("[t]", []string{"a"}, [][]any{{1}}, []string{"missing"})
	if err == nil {
		t.Fatal("want error when dedupe column is absent from the insert columns")
	}
}

func TestSplitReference(t *testing.T) {
	table, col, err := splitReference("dim_time(time_id)")
	if err != nil || table != "dim_time" || col != "time_id" {
		t.Errorf("got %q %q %v", table, col, err)
	}
	for _, bad := range []string{"dim_time", "(x)", "t(x", "Bad-Table(x)"} {
		if _, _, err := splitReference(bad); err == nil {
			t.Errorf("splitReference(%q) = nil error", bad)
		}
	}
}

func TestBuildSelectKeyValueByKeysSQL(t *testing.T) {
	sql, args := buildSelectKeyValueByKeysSQL(qualify("dw", "dim_time"), "invoice_date", "time_id", []any{"2011-03-05", "2011-03-06"})
	want := "SELECT [invoice_date], [time_id] FROM [dw].[dim_time] WHERE [invoice_date] IN (@p1, @p2)"
	if sql != want {
		t.Errorf("sql = %s\nwant %s", sql, want)
	}
	if len(args) != 2 || args[1] != "2011-03-06" {
		t.Errorf("args = %v", args)
	}
}
