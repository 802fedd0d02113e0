package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"retailwh/internal/report"
	"retailwh/internal/warehouse"
)

// Repo implements warehouse.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no schemas, so the configured namespace is ignored and
//     tables live unqualified in the database file.
//   - SQLite has no DATE type; dim_time.invoice_date is stored as an
//     ISO-8601 TEXT ("2006-01-02"), which sorts and compares correctly.
//   - Insert-or-ignore uses INSERT OR IGNORE, which relies on the UNIQUE/PK
//     constraints created by EnsureSchema.
type Repo struct {
	db *sql.DB
}

func init() {
	warehouse.Register("sqlite", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// EnsureSchema creates the star-schema tables. Idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, t := range warehouse.StarSchema() {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (warehouse.Batch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &batch{tx: tx}, nil
}

// Tables lists warehouse tables, excluding staging and sqlite internals.
func (r *Repo) Tables(ctx context.Context) ([]string, error) {
	const q = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'stg\_%' ESCAPE '\' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repo) Columns(ctx context.Context, table string) ([]string, error) {
	if err := warehouse.CheckIdent(table); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repo) CountNulls(ctx context.Context, table, column string) (int64, error) {
	if err := checkIdents(table, column); err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`, sqlIdent(table), sqlIdent(column))

	var n int64
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nulls %s.%s: %w", table, column, err)
	}
	return n, nil
}

func (r *Repo) CustomerAggregates(ctx context.Context) ([]report.CustomerAggregate, error) {
	q := report.CustomerAggregatesSQL(sqlIdent(warehouse.TableSales), sqlIdent(warehouse.TableCustomers))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("customer aggregates: %w", err)
	}
	defer rows.Close()

	var out []report.CustomerAggregate
	for rows.Next() {
		var a report.CustomerAggregate
		if err := rows.Scan(&a.CustomerID, &a.Country, &a.Purchases, &a.TotalSpent); err != nil {
			return nil, fmt.Errorf("scan customer aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) MonthlySales(ctx context.Context) ([]report.MonthlySale, error) {
	q := report.MonthlySalesSQL(sqlIdent(warehouse.TableSales), sqlIdent(warehouse.TableTime))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("monthly sales: %w", err)
	}
	defer rows.Close()

	var out []report.MonthlySale
	for rows.Next() {
		var m report.MonthlySale
		if err := rows.Scan(&m.Year, &m.Month, &m.TotalSales); err != nil {
			return nil, fmt.Errorf("scan monthly sale: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

/* ---------- batch transaction ---------- */

type batch struct {
	tx   *sql.Tx
	done bool
}

func (b *batch) ReplaceStaging(ctx context.Context, spec warehouse.TableSpec, columns []string, rows [][]any) (int64, error) {
	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return 0, err
	}
	if _, err := b.tx.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create staging %s: %w", spec.Name, err)
	}
	if _, err := b.tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(spec.Name)); err != nil {
		return 0, fmt.Errorf("truncate staging %s: %w", spec.Name, err)
	}
	return b.insert(ctx, spec.Name, columns, rows, false)
}

func (b *batch) SelectStagingRows(ctx context.Context, table string, columns []string) ([][]any, error) {
	if err := checkIdents(append([]string{table}, columns...)...); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(sqlIdent(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(sqlIdent(table))
	sb.WriteString(" ORDER BY line_no")

	rows, err := b.tx.QueryContext(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("select staging %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		dests := make([]any, len(columns))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan staging %s: %w", table, err)
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// UpsertDimensionRows relies on INSERT OR IGNORE; conflictColumns is
// accepted for interface symmetry but the UNIQUE/PK constraints drive the
// behavior.
func (b *batch) UpsertDimensionRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	_ = conflictColumns
	return b.insert(ctx, table, columns, rows, true)
}

func (b *batch) SelectKeyValueByKeys(ctx context.Context, table, keyColumn, valueColumn string, keys []any) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}
	if err := checkIdents(table, keyColumn, valueColumn); err != nil {
		return nil, err
	}

	const chunk = 500
	out := make(map[string]int64, len(keys))

	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		part := keys[start:end]

		var sb strings.Builder
		sb.WriteString("SELECT ")
		sb.WriteString(sqlIdent(keyColumn))
		sb.WriteString(", ")
		sb.WriteString(sqlIdent(valueColumn))
		sb.WriteString(" FROM ")
		sb.WriteString(sqlIdent(table))
		sb.WriteString(" WHERE ")
		sb.WriteString(sqlIdent(keyColumn))
		sb.WriteString(" IN (")
		sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(part)), ", "))
		sb.WriteString(")")

		rows, err := b.tx.QueryContext(ctx, sb.String(), part...)
		if err != nil {
			return nil, fmt.Errorf("select keys %s: %w", table, err)
		}
		for rows.Next() {
			var k any
			var id int64
			if err := rows.Scan(&k, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan keys %s: %w", table, err)
			}
			out[warehouse.NormalizeKey(k)] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("rows keys %s: %w", table, err)
		}
		rows.Close()
	}
	return out, nil
}

// InsertFactRows relies on INSERT OR IGNORE together with the UNIQUE
// line_hash constraint for dedupe.
func (b *batch) InsertFactRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	return b.insert(ctx, table, columns, rows, len(dedupeColumns) > 0)
}

func (b *batch) DropStaging(ctx context.Context, table string) error {
	if err := warehouse.CheckIdent(table); err != nil {
		return err
	}
	if !strings.HasPrefix(table, warehouse.StagingPrefix) {
		return fmt.Errorf("drop staging: %s is not a staging table", table)
	}
	_, err := b.tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(table))
	return err
}

func (b *batch) Commit(ctx context.Context) error {
	_ = ctx
	b.done = true
	return b.tx.Commit()
}

func (b *batch) Rollback(ctx context.Context) error {
	_ = ctx
	err := b.tx.Rollback()
	if b.done && errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// insert performs chunked multi-row INSERTs. RowsAffected reflects
// sqlite changes(), so OR IGNORE inserts report only rows actually added.
func (b *batch) insert(ctx context.Context, table string, columns []string, rows [][]any, orIgnore bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	// SQLite's default variable limit is 999 in older builds; stay under it.
	chunk := 900 / len(columns)
	if chunk < 1 {
		chunk = 1
	}

	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}

		stmt, args, err := buildInsertSQL(table, columns, rows[start:end], orIgnore)
		if err != nil {
			return total, err
		}
		res, err := b.tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
