// Package transform cleans raw retail spreadsheet rows into the shape the
// warehouse loader stages. This file defines a pooled Row type shared by the
// parsers and the cleaner to keep per-file heap churn low.
package transform

import "sync"

// Row is a pooled container holding one positional source row.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time.
//   - Rows travel parser -> cleaner over a channel (ownership transfer).
//   - The final consumer calls Free() once it is done with r.V.
//
// On cancellation paths use Drop() instead of Free(): a canceled drain can
// otherwise race with the parser reusing the same pooled Row.
type Row struct {
	V    []any
	Line int // 1-based source record number, if known
}

var rowPool sync.Pool

// GetRow returns a pooled Row sized and zeroed for colCount fields.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool. Call only when no other goroutine can
// still observe r or r.V.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without re-pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
