// Package integrity implements the post-load null scan: every column of
// every warehouse table gets a null count, zero or not, so a dashboard
// reading the report sees the full surface rather than only the problems.
package integrity

import (
	"context"
	"fmt"
)

// Catalog is the slice of the warehouse the scanner needs. The warehouse
// Repository satisfies it directly; tests use a hand-rolled fake.
type Catalog interface {
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]string, error)
	CountNulls(ctx context.Context, table, column string) (int64, error)
}

// NullCount is the null total for one column.
type NullCount struct {
	Table  string
	Column string
	Nulls  int64
}

// Report lists every scanned column in catalog order.
type Report struct {
	Counts []NullCount
}

// Total sums the nulls across all columns.
func (r *Report) Total() int64 {
	var n int64
	for _, c := range r.Counts {
		n += c.Nulls
	}
	return n
}

// CheckError means the catalog itself was unreachable. The check step
// fails, but a committed load stays committed.
type CheckError struct {
	Err error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("integrity check: %v", e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// Scan walks the catalog and counts nulls per column.
func Scan(ctx context.Context, cat Catalog) (*Report, error) {
	tables, err := cat.Tables(ctx)
	if err != nil {
		return nil, &CheckError{Err: fmt.Errorf("list tables: %w", err)}
	}

	rep := &Report{}
	for _, table := range tables {
		columns, err := cat.Columns(ctx, table)
		if err != nil {
			return nil, &CheckError{Err: fmt.Errorf("list columns of %s: %w", table, err)}
		}
		for _, column := range columns {
			n, err := cat.CountNulls(ctx, table, column)
			if err != nil {
				return nil, &CheckError{Err: fmt.Errorf("count %s.%s: %w", table, column, err)}
			}
			rep.Counts = append(rep.Counts, NullCount{Table: table, Column: column, Nulls: n})
		}
	}
	return rep, nil
}
