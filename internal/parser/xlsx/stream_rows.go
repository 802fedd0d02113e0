// Package xlsx streams XLSX spreadsheet rows into pooled transform.Row
// objects aligned to the canonical staging column order.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"retailwh/internal/config"
	"retailwh/internal/transform"
)

// StreamRows streams rows of a single worksheet into pooled rows aligned to
// the target 'columns' order. The contract mirrors the CSV parser: header
// mapping via the header_map option, empty cells become nil, per-row errors
// go to onErr.
//
// Options:
//   - has_header (bool, default true)
//   - sheet (worksheet name, default first sheet)
//   - trim_space (bool, default true)
//   - header_map (map source header -> canonical column)
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *transform.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	hasHeader := opt.Bool("has_header", true)
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")

	f, err := excelize.OpenReader(src)
	if err != nil {
		return fmt.Errorf("xlsx open: %w", err)
	}
	defer f.Close()

	sheet := opt.String("sheet", "")
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return fmt.Errorf("xlsx: workbook has no sheets")
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("xlsx rows %q: %w", sheet, err)
	}
	defer rows.Close()

	colIx := make([]int, len(columns))
	for i := range colIx {
		colIx[i] = -1
	}

	var line int
	readRec := func() ([]string, error) {
		line++
		return rows.Columns()
	}

	if hasHeader {
		if !rows.Next() {
			if err := rows.Error(); err != nil {
				return fmt.Errorf("xlsx read header: %w", err)
			}
			return nil
		}
		hdr, err := readRec()
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return err
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			if transform.HasEdgeSpace(h) {
				h = strings.TrimSpace(h)
			}
			if mapped, ok := hm[h]; ok {
				h = mapped
			} else {
				h = normalizeHeader(h)
			}
			srcToIdx[h] = i
		}
		for t, target := range columns {
			if si, ok := srcToIdx[target]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range columns {
			colIx[i] = i
		}
	}

	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("xlsx read: %w", err))
			}
			continue
		}

		row := transform.GetRow(len(columns))
		row.Line = line

		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				row.V[t] = nil
				continue
			}
			v := rec[si]
			if trim && transform.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				row.V[t] = nil
			} else {
				row.V[t] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			// do not re-pool on cancellation
			row.Drop()
			return ctx.Err()
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("xlsx rows: %w", err)
	}
	return nil
}

func normalizeHeader(h string) string {
	var b strings.Builder
	b.Grow(len(h) + 4)
	prevLower := false
	for _, r := range h {
		switch {
		case r == ' ' || r == '-' || r == '.':
			if b.Len() > 0 {
				b.WriteByte('_')
			}
			prevLower = false
		case r >= 'A' && r <= 'Z':
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		}
	}
	return b.String()
}
