// Package pipeline orchestrates a full ETL run: schema once up front, then
// extract -> clean -> load per batch, and the integrity scan last. Per-file
// and per-batch failures are logged and skipped so one bad spreadsheet
// cannot take down the run; config, schema and extraction failures are
// fatal.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"retailwh/internal/config"
	"retailwh/internal/extract"
	"retailwh/internal/integrity"
	"retailwh/internal/load"
	"retailwh/internal/metrics"
	csvparser "retailwh/internal/parser/csv"
	xlsxparser "retailwh/internal/parser/xlsx"
	"retailwh/internal/transform"
	"retailwh/internal/warehouse"
)

type Logger interface {
	Printf(format string, v ...any)
}

// Runner ties the stages together over one repository.
type Runner struct {
	Cfg    config.Pipeline
	Repo   warehouse.Repository
	Logger Logger
}

// Summary reports what one run did.
type Summary struct {
	Batches int // discovered input files
	Loaded  int // committed batches
	Skipped int // files or batches skipped on error
	Facts   int64
	Report  *integrity.Report
}

// Run executes the pipeline. The returned Summary is valid even when err is
// non-nil, so callers can report partial progress.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}

	start := time.Now()
	err := r.Repo.EnsureSchema(ctx)
	r.observe("schema", start, err)
	if err != nil {
		return sum, &warehouse.SchemaError{Kind: r.Cfg.Warehouse.Kind, Err: err}
	}

	start = time.Now()
	batches, err := extract.ListBatches(r.Cfg.Input.Dir)
	r.observe("extract", start, err)
	if err != nil {
		return sum, err
	}
	sum.Batches = len(batches)
	if len(batches) == 0 {
		r.logf("stage=extract dir=%s batches=0", r.Cfg.Input.Dir)
	}

	loader := &load.Loader{Repo: r.Repo, Logger: r.Logger}

	for i, b := range batches {
		r.logf("stage=run file=%d/%d name=%s format=%s", i+1, len(batches), b.Name, b.Format)

		cleaner := &transform.Cleaner{
			Stream: r.streamFor(b),
			Logger: r.Logger,
			OutDir: r.Cfg.Cleaned.Dir,
		}

		start = time.Now()
		art, err := cleaner.Clean(ctx, b.Path)
		r.observe("clean", start, err)
		if err != nil {
			r.logf("stage=clean file=%s skipped err=%v", b.Path, err)
			sum.Skipped++
			continue
		}
		metrics.IncCounter("etl_records_total", float64(len(art.Rows)), metrics.Labels{"kind": "cleaned"})
		metrics.IncCounter("etl_records_total", float64(art.Dropped.Total()), metrics.Labels{"kind": "dropped"})

		start = time.Now()
		res, err := loader.Load(ctx, b.Name, art)
		r.observe("load", start, err)
		if err != nil {
			r.logf("stage=load batch=%s skipped err=%v", b.Name, err)
			sum.Skipped++
			continue
		}

		sum.Loaded++
		sum.Facts += res.Facts
		metrics.IncCounter("etl_batches_total", 1, nil)
		metrics.IncCounter("etl_records_total", float64(res.Staged), metrics.Labels{"kind": "staged"})
		metrics.IncCounter("etl_records_total", float64(res.Facts), metrics.Labels{"kind": "facts"})
		if res.Unmatched > 0 {
			metrics.IncCounter("etl_records_total", float64(res.Unmatched), metrics.Labels{"kind": "unmatched"})
			r.logf("stage=load batch=%s unmatched=%d", b.Name, res.Unmatched)
		}
	}

	start = time.Now()
	rep, err := integrity.Scan(ctx, r.Repo)
	r.observe("check", start, err)
	if err != nil {
		return sum, err
	}
	sum.Report = rep
	for _, c := range rep.Counts {
		r.logf("stage=check table=%s column=%s nulls=%d", c.Table, c.Column, c.Nulls)
	}
	r.logf("stage=done batches=%d loaded=%d skipped=%d facts=%d nulls=%d",
		sum.Batches, sum.Loaded, sum.Skipped, sum.Facts, rep.Total())

	return sum, nil
}

// streamFor routes one input file to the parser for its format. The parsers
// own closing the file handle.
func (r *Runner) streamFor(b extract.Batch) transform.StreamFn {
	opts := r.Cfg.Parser.Options
	return func(ctx context.Context, path string, out chan<- *transform.Row, onErr func(line int, err error)) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		switch b.Format {
		case "xlsx":
			return xlsxparser.StreamRows(ctx, f, transform.Columns, opts, out, onErr)
		default:
			return csvparser.StreamRows(ctx, f, transform.Columns, opts, out, onErr)
		}
	}
}

func (r *Runner) observe(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	elapsed := time.Since(start)
	metrics.IncCounter("etl_step_total", 1, metrics.Labels{"step": step, "status": status})
	metrics.ObserveHistogram("etl_step_duration_seconds", elapsed.Seconds(), metrics.Labels{"step": step, "status": status})
	if r.Cfg.Runtime.DebugTimings {
		r.logf("stage=%s status=%s elapsed=%s", step, status, elapsed)
	}
}

func (r *Runner) logf(format string, v ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, v...)
	}
}
