package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"retailwh/internal/report"
	"retailwh/internal/warehouse"
)

/*
Repo implements warehouse.Repository for Postgres.

It provides:
  - Idempotent star-schema DDL (CREATE SCHEMA / CREATE TABLE IF NOT EXISTS)
  - Per-batch transactions via pgx
  - Insert-or-ignore semantics using ON CONFLICT ... DO NOTHING

Load behavior matches the MSSQL and SQLite implementations.
*/
type Repo struct {
	pool   *pgxpool.Pool
	schema string
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	if err := warehouse.CheckIdent(cfg.Schema); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool, schema: cfg.Schema}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// EnsureSchema creates the namespace and every star-schema table.
// Safe to run on every startup.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(r.schema))); err != nil {
		return fmt.Errorf("create schema %s: %w", r.schema, err)
	}
	for _, t := range warehouse.StarSchema() {
		ddl, err := buildCreateSQL(r.schema, t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Begin opens one batch transaction.
func (r *Repo) Begin(ctx context.Context) (warehouse.Batch, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &batch{tx: tx, schema: r.schema}, nil
}

// Tables lists the warehouse tables in the namespace, staging excluded.
func (r *Repo) Tables(ctx context.Context) ([]string, error) {
	const q = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_name NOT LIKE 'stg\_%'
		ORDER BY table_name`

	rows, err := r.pool.Query(ctx, q, r.schema)
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

// Columns lists the column names of one table in ordinal order.
func (r *Repo) Columns(ctx context.Context, table string) ([]string, error) {
	if err := warehouse.CheckIdent(table); err != nil {
		return nil, err
	}
	const q = `SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := r.pool.Query(ctx, q, r.schema, table)
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

// CountNulls counts NULLs in one column. table and column are validated
// against the identifier allowlist before they are spliced into SQL; the
// count itself needs no parameters.
func (r *Repo) CountNulls(ctx context.Context, table, column string) (int64, error) {
	if err := checkIdents(table, column); err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`,
		qualify(r.schema, table), pgIdent(column))

	var n int64
	if err := r.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nulls %s.%s: %w", table, column, err)
	}
	return n, nil
}

func (r *Repo) CustomerAggregates(ctx context.Context) ([]report.CustomerAggregate, error) {
	q := report.CustomerAggregatesSQL(
		qualify(r.schema, warehouse.TableSales),
		qualify(r.schema, warehouse.TableCustomers),
	)
	rows, err := r.pool.Query(ctx, q)
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
	q := report.MonthlySalesSQL(
		qualify(r.schema, warehouse.TableSales),
		qualify(r.schema, warehouse.TableTime),
	)
	rows, err := r.pool.Query(ctx, q)
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
	tx     pgx.Tx
	schema string
	done   bool
}

// ReplaceStaging creates the staging table if needed, empties it, and loads
// the batch rows. Runs inside the batch transaction so a later rollback also
// removes the staged data.
func (b *batch) ReplaceStaging(ctx context.Context, spec warehouse.TableSpec, columns []string, rows [][]any) (int64, error) {
	ddl, err := buildCreateSQL(b.schema, spec)
	if err != nil {
		return 0, err
	}
	if _, err := b.tx.Exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create staging %s: %w", spec.Name, err)
	}
	if _, err := b.tx.Exec(ctx, "DELETE FROM "+qualify(b.schema, spec.Name)); err != nil {
		return 0, fmt.Errorf("truncate staging %s: %w", spec.Name, err)
	}
	return b.insert(ctx, spec.Name, columns, rows, nil)
}

// SelectStagingRows reads staged rows back in source line order.
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
		sb.WriteString(pgIdent(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(qualify(b.schema, table))
	sb.WriteString(" ORDER BY line_no")

	rows, err := b.tx.Query(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("select staging %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		// pgx requires pointer Scan destinations: allocate the values
		// slice and scan through a parallel pointer slice.
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

// UpsertDimensionRows inserts dimension rows idempotently via
// ON CONFLICT (...) DO NOTHING.
func (b *batch) UpsertDimensionRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(conflictColumns) == 0 {
		return 0, fmt.Errorf("upsert %s: conflict columns are required", table)
	}
	return b.insert(ctx, table, columns, rows, conflictColumns)
}

// SelectKeyValueByKeys returns normalized key -> surrogate id for a set of
// keys.
//
// This uses a parameterized IN (...) list (chunked) instead of ANY($1)
// arrays to avoid driver array-typing edge cases.
func (b *batch) SelectKeyValueByKeys(ctx context.Context, table, keyColumn, valueColumn string, keys []any) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}
	if err := checkIdents(table, keyColumn, valueColumn); err != nil {
		return nil, err
	}

	const chunk = 2000
	out := make(map[string]int64, len(keys))

	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		part := keys[start:end]

		var sb strings.Builder
		sb.WriteString("SELECT ")
		sb.WriteString(pgIdent(keyColumn))
		sb.WriteString(", ")
		sb.WriteString(pgIdent(valueColumn))
		sb.WriteString(" FROM ")
		sb.WriteString(qualify(b.schema, table))
		sb.WriteString(" WHERE ")
		sb.WriteString(pgIdent(keyColumn))
		sb.WriteString(" IN (")

		args := make([]any, 0, len(part))
		for i, k := range part {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i+1)
			args = append(args, k)
		}
		sb.WriteString(")")

		rows, err := b.tx.Query(ctx, sb.String(), args...)
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

// InsertFactRows inserts fact rows idempotently over dedupeColumns.
func (b *batch) InsertFactRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	return b.insert(ctx, table, columns, rows, dedupeColumns)
}

func (b *batch) DropStaging(ctx context.Context, table string) error {
	if err := warehouse.CheckIdent(table); err != nil {
		return err
	}
	if !strings.HasPrefix(table, warehouse.StagingPrefix) {
		return fmt.Errorf("drop staging: %s is not a staging table", table)
	}
	_, err := b.tx.Exec(ctx, "DROP TABLE IF EXISTS "+qualify(b.schema, table))
	return err
}

func (b *batch) Commit(ctx context.Context) error {
	b.done = true
	return b.tx.Commit(ctx)
}

// Rollback after Commit is a no-op so callers can defer it.
func (b *batch) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if b.done && errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// insert performs chunked multi-row INSERTs, optionally with
// ON CONFLICT DO NOTHING, and reports rows actually inserted.
func (b *batch) insert(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	// Chunk by rows so the parameter count stays well below the Postgres
	// limit of 65535.
	chunk := 2000 / len(columns)
	if chunk < 1 {
		chunk = 1
	}

	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}

		sql, args, err := buildInsertSQL(qualify(b.schema, table), columns, rows[start:end], conflictColumns)
		if err != nil {
			return total, err
		}
		cmd, err := b.tx.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}
