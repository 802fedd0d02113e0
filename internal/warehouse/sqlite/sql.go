package sqlite

import (
	"fmt"
	"strings"

	"retailwh/internal/warehouse"
)

func sqlIdent(name string) string { return `"` + name + `"` }

func checkIdents(names ...string) error {
	for _, n := range names {
		if err := warehouse.CheckIdent(n); err != nil {
			return err
		}
	}
	return nil
}

// sqliteType maps the portable column types onto SQLite affinities.
//
// DATE becomes TEXT on purpose: modernc.org/sqlite would otherwise
// round-trip dates through driver-specific representations, while an
// ISO-8601 string compares and sorts correctly everywhere.
func sqliteType(portable string) string {
	switch strings.ToUpper(strings.TrimSpace(portable)) {
	case "BIGINT", "INT":
		return "INTEGER"
	case "DOUBLE PRECISION":
		return "REAL"
	case "DATE", "TEXT":
		return "TEXT"
	default:
		return portable
	}
}

// buildInsertSQL constructs a single (optionally OR IGNORE) INSERT statement
// and its args. Pure, so placeholder layout is unit testable without a
// database.
func buildInsertSQL(table string, columns []string, rows [][]any, orIgnore bool) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("buildInsertSQL: no columns")
	}
	if err := checkIdents(append([]string{table}, columns...)...); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("INSERT ")
	if orIgnore {
		b.WriteString("OR IGNORE ")
	}
	b.WriteString("INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("buildInsertSQL: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, row[j])
		}
		b.WriteString(")")
	}
	b.WriteString(";")

	return b.String(), args, nil
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS for one table spec in
// the SQLite dialect.
func buildCreateSQL(t warehouse.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("buildCreateSQL: table name is empty")
	}
	if err := warehouse.CheckIdent(t.Name); err != nil {
		return "", err
	}

	cols := make([]string, 0, len(t.Columns)+1)

	if t.Surrogate != nil {
		if err := warehouse.CheckIdent(t.Surrogate.Name); err != nil {
			return "", err
		}
		cols = append(cols, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.Surrogate.Name)))
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return "", fmt.Errorf("buildCreateSQL: table %s: %w", t.Name, err)
		}
		cols = append(cols, def)
	}

	for _, c := range t.Constraints {
		switch strings.ToLower(strings.TrimSpace(c.Kind)) {
		case "unique":
			if len(c.Columns) == 0 {
				return "", fmt.Errorf("table %s: unique constraint requires columns", t.Name)
			}
			if err := checkIdents(c.Columns...); err != nil {
				return "", err
			}
			quoted := make([]string, len(c.Columns))
			for i, col := range c.Columns {
				quoted[i] = sqlIdent(col)
			}
			cols = append(cols, "UNIQUE ("+strings.Join(quoted, ", ")+")")
		default:
			return "", fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
	}

	if len(cols) == 0 {
		return "", fmt.Errorf("buildCreateSQL: table %s: no columns", t.Name)
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`,
		sqlIdent(t.Name), strings.Join(cols, ", ")), nil
}

func buildColumnDef(c warehouse.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	typ := strings.TrimSpace(c.Type)
	if name == "" || typ == "" {
		return "", fmt.Errorf("column name/type must be set")
	}
	if err := warehouse.CheckIdent(name); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(sqlIdent(name))
	b.WriteString(" ")
	b.WriteString(sqliteType(typ))

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
		b.WriteString(sqlIdent(refTable))
		b.WriteString("(")
		b.WriteString(sqlIdent(refCol))
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
