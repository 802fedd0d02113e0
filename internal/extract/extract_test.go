package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListBatchesFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "jan_2011.csv")
	touch(t, dir, "dec_2010.XLSX")
	touch(t, dir, "notes.txt")
	touch(t, dir, ".hidden.csv~")
	if err := os.Mkdir(filepath.Join(dir, "archive.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	batches, err := ListBatches(dir)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("batches = %v, want 2", batches)
	}
	if batches[0].Name != "dec_2010" || batches[0].Format != "xlsx" {
		t.Errorf("batches[0] = %+v", batches[0])
	}
	if batches[1].Name != "jan_2011" || batches[1].Format != "csv" {
		t.Errorf("batches[1] = %+v", batches[1])
	}
	if batches[1].Path != filepath.Join(dir, "jan_2011.csv") {
		t.Errorf("path = %s", batches[1].Path)
	}
}

func TestListBatchesEmptyDirIsNotAnError(t *testing.T) {
	batches, err := ListBatches(t.TempDir())
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("batches = %v, want none", batches)
	}
}

func TestListBatchesMissingDir(t *testing.T) {
	_, err := ListBatches(filepath.Join(t.TempDir(), "nope"))
	var ee *Error
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cause not preserved: %v", err)
	}
}
