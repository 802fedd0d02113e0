// Package extract discovers ingestion batches: spreadsheet files dropped
// into the configured input directory.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Batch is one discoverable input file.
type Batch struct {
	Path   string // absolute or dir-relative path to the file
	Name   string // file name without extension; names the staging table
	Format string // "csv" or "xlsx"
}

// Error wraps a failure to read the input directory. It is fatal to a run:
// without a listing there is nothing to process and nothing to skip.
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ListBatches lists the .csv and .xlsx files of dir, sorted by name for a
// deterministic processing order. Other files are ignored. An empty
// directory is a valid result, not an error.
func ListBatches(dir string) ([]Batch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}

	var out []Batch
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		format, ok := formatOf(name)
		if !ok {
			continue
		}
		out = append(out, Batch{
			Path:   filepath.Join(dir, name),
			Name:   strings.TrimSuffix(name, filepath.Ext(name)),
			Format: format,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func formatOf(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "csv", true
	case ".xlsx":
		return "xlsx", true
	default:
		return "", false
	}
}
