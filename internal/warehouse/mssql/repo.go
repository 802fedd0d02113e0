package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"retailwh/internal/report"
	"retailwh/internal/warehouse"
)

// Repo implements warehouse.Repository for Microsoft SQL Server.
//
// This implementation supports:
//   - Idempotent DDL via OBJECT_ID / SCHEMA_ID guards (no IF NOT EXISTS
//     syntax for tables on SQL Server).
//   - Insert-or-ignore via an INSERT ... SELECT ... WHERE NOT EXISTS
//     anti-semi join; SQL Server has no ON CONFLICT clause and MERGE is
//     deliberately avoided.
type Repo struct {
	db     *sql.DB
	schema string
}

func init() {
	warehouse.Register("mssql", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	if err := warehouse.CheckIdent(cfg.Schema); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for ETL-style bursty loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, schema: cfg.Schema}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// EnsureSchema creates the namespace and the star-schema tables. Idempotent
// and safe to run on every invocation.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	schemaSQL := fmt.Sprintf(
		"IF SCHEMA_ID(N'%s') IS NULL EXEC('CREATE SCHEMA %s');",
		r.schema, msIdent(r.schema),
	)
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("mssql: create schema %s: %w", r.schema, err)
	}

	for _, t := range warehouse.StarSchema() {
		ddl, err := buildCreateSQL(r.schema, t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (warehouse.Batch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &batch{tx: tx, schema: r.schema}, nil
}

func (r *Repo) Tables(ctx context.Context) ([]string, error) {
	const q = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME NOT LIKE 'stg[_]%'
		ORDER BY TABLE_NAME`

	rows, err := r.db.QueryContext(ctx, q, r.schema)
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
	const q = `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`

	rows, err := r.db.QueryContext(ctx, q, r.schema, table)
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
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL",
		qualify(r.schema, table), msIdent(column))

	var n int64
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nulls %s.%s: %w", table, column, err)
	}
	return n, nil
}

func (r *Repo) CustomerAggregates(ctx context.Context) ([]report.CustomerAggregate, error) {
	q := report.CustomerAggregatesSQL(
		qualify(r.schema, warehouse.TableSales),
		qualify(r.schema, warehouse.TableCustomers),
	)
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
	q := report.MonthlySalesSQL(
		qualify(r.schema, warehouse.TableSales),
		qualify(r.schema, warehouse.TableTime),
	)
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
	tx     *sql.Tx
	schema string
	done   bool
}

func (b *batch) ReplaceStaging(ctx context.Context, spec warehouse.TableSpec, columns []string, rows [][]any) (int64, error) {
	ddl, err := buildCreateSQL(b.schema, spec)
	if err != nil {
		return 0, err
	}
	if _, err := b.tx.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create staging %s: %w", spec.Name, err)
	}
	if _, err := b.tx.ExecContext(ctx, "DELETE FROM "+qualify(b.schema, spec.Name)); err != nil {
		return 0, fmt.Errorf("truncate staging %s: %w", spec.Name, err)
	}
	return b.insert(ctx, spec.Name, columns, rows, nil)
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
		sb.WriteString(msIdent(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(qualify(b.schema, table))
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

func (b *batch) UpsertDimensionRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(conflictColumns) == 0 {
		return 0, fmt.Errorf("upsert %s: conflict columns are required", table)
	}
	return b.insert(ctx, table, columns, rows, conflictColumns)
}

// SelectKeyValueByKeys chunks the IN() list to stay well inside SQL
// Server's 2100 parameter limit.
func (b *batch) SelectKeyValueByKeys(ctx context.Context, table, keyColumn, valueColumn string, keys []any) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}
	if err := checkIdents(table, keyColumn, valueColumn); err != nil {
		return nil, err
	}

	const chunk = 1000
	out := make(map[string]int64, len(keys))

	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		part := keys[start:end]

		q, args := buildSelectKeyValueByKeysSQL(qualify(b.schema, table), keyColumn, valueColumn, part)

		rows, err := b.tx.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("select keys %s: %w", table, err)
		}
		for rows.Next() {
			var k any
			var id int64
			if err := rows.Scan(&k, &id); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan keys %s: %w", table, err)
			}
			out[warehouse.NormalizeKey(k)] = id
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("rows keys %s: %w", table, err)
		}
		_ = rows.Close()
	}
	return out, nil
}

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
	drop := fmt.Sprintf(
		"IF OBJECT_ID(N'%s.%s', N'U') IS NOT NULL DROP TABLE %s;",
		b.schema, table, qualify(b.schema, table),
	)
	_, err := b.tx.ExecContext(ctx, drop)
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

// insert performs chunked inserts, plain or NOT EXISTS deduped. Each row
// uses len(columns) parameters, so rows per statement are capped to stay
// under the 2100 limit.
func (b *batch) insert(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

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

		var (
			q    string
			args []any
			err  error
		)
		if len(dedupeColumns) > 0 {
			q, args, err = buildInsertNotExistsSQL(qualify(b.schema, table), columns, rows[start:end], dedupeColumns)
		} else {
			q, args, err = buildBulkInsertSQL(qualify(b.schema, table), columns, rows[start:end])
		}
		if err != nil {
			return total, err
		}

		res, err := b.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
