package mssql

import (
	"fmt"
	"strings"

	"retailwh/internal/warehouse"
)

func msIdent(name string) string { return "[" + name + "]" }

func qualify(schema, table string) string {
	if schema == "" {
		return msIdent(table)
	}
	return msIdent(schema) + "." + msIdent(table)
}

func checkIdents(names ...string) error {
	for _, n := range names {
		if err := warehouse.CheckIdent(n); err != nil {
			return err
		}
	}
	return nil
}

// msType maps the portable column types onto SQL Server types. TEXT becomes
// NVARCHAR(255) because SQL Server's TEXT type is deprecated and cannot
// carry UNIQUE constraints.
func msType(portable string) string {
	switch strings.ToUpper(strings.TrimSpace(portable)) {
	case "TEXT":
		return "NVARCHAR(255)"
	case "DOUBLE PRECISION":
		return "FLOAT"
	default:
		return portable
	}
}

// buildCreateSQL renders an OBJECT_ID-guarded CREATE TABLE for one spec.
// SQL Server has no CREATE TABLE IF NOT EXISTS, so the guard keeps
// EnsureSchema idempotent.
func buildCreateSQL(schema string, t warehouse.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	if err := checkIdents(t.Name); err != nil {
		return "", err
	}

	var parts []string

	if t.Surrogate != nil {
		if err := warehouse.CheckIdent(t.Surrogate.Name); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", msIdent(t.Surrogate.Name)))
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(schema, c)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s: %w", t.Name, err)
		}
		parts = append(parts, def)
	}

	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return "", fmt.Errorf("mssql: %s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return "", fmt.Errorf("mssql: %s unique constraint has no columns", t.Name)
		}
		if err := checkIdents(con.Columns...); err != nil {
			return "", err
		}
		cols := make([]string, len(con.Columns))
		for i, c := range con.Columns {
			cols[i] = msIdent(c)
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("mssql: table %s: no columns", t.Name)
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s.%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		schema, t.Name, qualify(schema, t.Name), strings.Join(parts, ", "),
	), nil
}

func buildColumnDef(schema string, c warehouse.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("column name is empty")
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", fmt.Errorf("column %s type is empty", c.Name)
	}
	if err := warehouse.CheckIdent(c.Name); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(msIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(msType(c.Type))

	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	} else if !c.Nullable {
		b.WriteString(" NOT NULL")
	}

	if ref := strings.TrimSpace(c.References); ref != "" {
		refTable, refCol, err := splitReference(ref)
		if err != nil {
			return "", err
		}
		b.WriteString(" REFERENCES ")
		b.WriteString(qualify(schema, refTable))
		b.WriteString("(")
		b.WriteString(msIdent(refCol))
		b.WriteString(")")
	}

	return b.String(), nil
}

func splitReference(ref string) (table, column string, err error) {
	open := strings.IndexByte(ref, '(')
	if open <= 0 || !strings.HasSuffix(ref, ")") {
		return "", "", fmt.Errorf("malformed reference %q", ref)
	}
	table = strings.TrimSpace(ref[:open])
	column = strings.TrimSpace(ref[open+1 : len(ref)-1])
	if err := checkIdents(table, column); err != nil {
		return "", "", err
	}
	return table, column, nil
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for a chunk
// of rows. Split out for testability.
func buildBulkInsertSQL(qualifiedTable string, columns []string, rows [][]any) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("buildBulkInsertSQL: no columns")
	}
	if err := checkIdents(columns...); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualifiedTable)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("buildBulkInsertSQL: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	return b.String(), args, nil
}

// buildInsertNotExistsSQL constructs a single INSERT...SELECT...WHERE NOT
// EXISTS for a chunk of rows.
//
// It materializes incoming rows as a derived table V via VALUES, then
// inserts only those rows that do not match existing rows per
// dedupeColumns. The returned SQL is deterministic for a given input.
func buildInsertNotExistsSQL(qualifiedTable string, columns []string, rows [][]any, dedupeColumns []string) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("buildInsertNotExistsSQL: no columns")
	}
	if err := checkIdents(append(append([]string{}, columns...), dedupeColumns...)...); err != nil {
		return "", nil, err
	}

	colPos := make(map[string]int, len(columns))
	for i, c := range columns {
		colPos[c] = i
	}
	for _, dc := range dedupeColumns {
		if _, ok := colPos[dc]; !ok {
			return "", nil, fmt.Errorf("buildInsertNotExistsSQL: dedupe column %q not present in columns", dc)
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualifiedTable)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}

	b.WriteString(") SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v.")
		b.WriteString(msIdent(c))
	}

	b.WriteString(" FROM (VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("buildInsertNotExistsSQL: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(") AS v(")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(qualifiedTable)
	b.WriteString(" t WHERE ")

	for i, dc := range dedupeColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("t.")
		b.WriteString(msIdent(dc))
		b.WriteString(" = v.")
		b.WriteString(msIdent(dc))
	}
	b.WriteString(")")

	return b.String(), args, nil
}

// buildSelectKeyValueByKeysSQL returns the SELECT ... IN (...) query and
// args for one key chunk.
func buildSelectKeyValueByKeysSQL(qualifiedTable, keyColumn, valueColumn string, keys []any) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(msIdent(keyColumn))
	b.WriteString(", ")
	b.WriteString(msIdent(valueColumn))
	b.WriteString(" FROM ")
	b.WriteString(qualifiedTable)
	b.WriteString(" WHERE ")
	b.WriteString(msIdent(keyColumn))
	b.WriteString(" IN (")

	args := make([]any, 0, len(keys))
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
		args = append(args, k)
	}
	b.WriteString(")")

	return b.String(), args
}
