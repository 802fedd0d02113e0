package transform

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// writeArtifacts persists the cleaned row set in two redundant formats,
// CSV and XLSX, so downstream consumers can pick either. Both files carry
// the header row and identical values.
func (c *Cleaner) writeArtifacts(a *Artifact) error {
	if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
		return fmt.Errorf("create cleaned dir: %w", err)
	}

	a.CSVPath = filepath.Join(c.OutDir, a.Batch+"_cleaned.csv")
	a.XLSXPath = filepath.Join(c.OutDir, a.Batch+"_cleaned.xlsx")

	if err := writeCSVArtifact(a.CSVPath, a.Columns, a.Rows); err != nil {
		return err
	}
	return writeXLSXArtifact(a.XLSXPath, a.Columns, a.Rows)
}

func writeCSVArtifact(path string, columns []string, rows [][]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	rec := make([]string, len(columns))
	for _, row := range rows {
		for i, v := range row {
			rec[i] = artifactCell(v)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// writeXLSXArtifact uses the excelize stream writer; cleaned batches can run
// to hundreds of thousands of lines and the in-memory cell model does not
// scale to that.
func writeXLSXArtifact(path string, columns []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter("Sheet1")
	if err != nil {
		return fmt.Errorf("xlsx stream writer: %w", err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx cell name: %w", err)
		}
		out := make([]any, len(row))
		copy(out, row)
		if err := sw.SetRow(cell, out); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("xlsx flush: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func artifactCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
