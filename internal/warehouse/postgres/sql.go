package postgres

import (
	"fmt"
	"strings"

	"retailwh/internal/warehouse"
)

func pgIdent(name string) string { return `"` + name + `"` }

func qualify(schema, table string) string {
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func checkIdents(names ...string) error {
	for _, n := range names {
		if err := warehouse.CheckIdent(n); err != nil {
			return err
		}
	}
	return nil
}

// buildInsertSQL constructs a single INSERT statement and its args for
// Postgres.
//
// Why this exists:
//   - It is pure and deterministic, so we can unit test correctness
//     (especially ON CONFLICT behavior and placeholder numbering) without a
//     database.
//
// If conflictColumns is non-empty, the INSERT is made idempotent using
// ON CONFLICT (<conflictColumns...>) DO NOTHING. This makes the pipeline
// tolerant of duplicate rows within the same batch and idempotent across
// reprocessing the same file.
func buildInsertSQL(qualifiedTable string, columns []string, rows [][]any, conflictColumns []string) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("buildInsertSQL: no columns")
	}
	if err := checkIdents(append(append([]string{}, columns...), conflictColumns...)...); err != nil {
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
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflictColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}

	b.WriteString(";")
	return b.String(), args, nil
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS for one table spec.
//
// The portable column types map straight onto Postgres; only the surrogate
// key needs translation (BIGSERIAL).
func buildCreateSQL(schema string, t warehouse.TableSpec) (string, error) {
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
		cols = append(cols, fmt.Sprintf(`%s BIGSERIAL PRIMARY KEY`, pgIdent(t.Surrogate.Name)))
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(schema, c)
		if err != nil {
			return "", fmt.Errorf("buildCreateSQL: table %s: %w", t.Name, err)
		}
		cols = append(cols, def)
	}

	constraints, err := buildConstraints(t)
	if err != nil {
		return "", err
	}
	cols = append(cols, constraints...)

	if len(cols) == 0 {
		return "", fmt.Errorf("buildCreateSQL: table %s: no columns", t.Name)
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`,
		qualify(schema, t.Name), strings.Join(cols, ", ")), nil
}

// buildColumnDef renders a single column definition. Foreign key references
// are expressed inline and are re-qualified into the warehouse schema.
func buildColumnDef(schema string, c warehouse.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	typ := strings.TrimSpace(c.Type)
	if name == "" || typ == "" {
		return "", fmt.Errorf("column name/type must be set")
	}
	if err := warehouse.CheckIdent(name); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(pgIdent(name))
	b.WriteString(" ")
	b.WriteString(typ)

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
		b.WriteString(pgIdent(refCol))
		b.WriteString(")")
	}

	return b.String(), nil
}

// buildConstraints generates table-level constraints. Today only UNIQUE is
// supported because that's the only kind warehouse.ConstraintSpec exposes.
func buildConstraints(t warehouse.TableSpec) ([]string, error) {
	if len(t.Constraints) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(t.Constraints))
	for _, c := range t.Constraints {
		switch strings.ToLower(strings.TrimSpace(c.Kind)) {
		case "unique":
			if len(c.Columns) == 0 {
				return nil, fmt.Errorf("table %s: unique constraint requires columns", t.Name)
			}
			if err := checkIdents(c.Columns...); err != nil {
				return nil, err
			}
			var b strings.Builder
			b.WriteString("UNIQUE (")
			for i, col := range c.Columns {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(pgIdent(col))
			}
			b.WriteString(")")
			out = append(out, b.String())
		default:
			return nil, fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
	}
	return out, nil
}

// splitReference parses "table(column)" reference syntax.
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
