// Package config defines the pipeline configuration loaded by cmd/retailwh
// and its validation rules.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Pipeline is the top-level configuration for one warehouse ETL run.
type Pipeline struct {
	Job string `json:"job"`

	// Input is the directory scanned for raw spreadsheet batches.
	Input InputConfig `json:"input"`

	// Cleaned is where transformed artifacts (CSV + XLSX) are written.
	Cleaned CleanedConfig `json:"cleaned"`

	Parser    Parser          `json:"parser"`
	Warehouse WarehouseConfig `json:"warehouse"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

type InputConfig struct {
	Dir string `json:"dir"`
}

type CleanedConfig struct {
	Dir string `json:"dir"`
}

type Parser struct {
	Options Options `json:"options"`
}

// WarehouseConfig selects and parameterizes the storage backend.
type WarehouseConfig struct {
	// Kind: "postgres" | "sqlite" | "mssql".
	Kind string `json:"kind"`

	// DSN may reference environment variables (${DATABASE_URL}); it is
	// expanded with os.ExpandEnv before the backend sees it.
	DSN string `json:"dsn"`

	// Schema is the warehouse namespace. Defaults to "dw_online_retail".
	// The SQLite backend ignores it (SQLite has no schemas).
	Schema string `json:"schema"`
}

// RuntimeConfig controls execution behavior.
type RuntimeConfig struct {
	// DebugTimings enables duration logs for pipeline steps.
	DebugTimings bool `json:"debug_timings"`
}

// DefaultSchema is the warehouse namespace used when config leaves it empty.
const DefaultSchema = "dw_online_retail"

// Load reads and decodes a pipeline config file. It does not validate;
// callers run ValidatePipeline and decide how to surface issues.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a pipeline config from r.
func Decode(r io.Reader) (Pipeline, error) {
	var p Pipeline
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config: %w", err)
	}
	if p.Warehouse.Schema == "" {
		p.Warehouse.Schema = DefaultSchema
	}
	return p, nil
}
