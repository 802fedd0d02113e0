package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"retailwh/internal/config"
	"retailwh/internal/integrity"
	"retailwh/internal/metrics"
	"retailwh/internal/metrics/datadog"
	"retailwh/internal/pipeline"
	"retailwh/internal/warehouse"

	// register all backends with the warehouse factory.
	// config specifies which to use but we build in support for all of them.
	_ "retailwh/internal/warehouse/all"
)

// main is the entry point for the warehouse ETL binary. It loads the
// pipeline config, optionally initializes a metrics backend, and executes
// one full run.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipeline.json", "pipeline config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (datadog, none)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	issues := config.ValidatePipeline(p)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		// Datadog buffers metrics and submits periodically, plus one final
		// time at shutdown (Close()). More useful than submit-once-per-job:
		// long runs produce an actual time series.
		jobName := p.Job
		if jobName == "" {
			jobName = "retailwh"
		}
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    jobName,
			Tags:       extraTags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, jobName, extraTags)
			metrics.SetBackend(b)

			// Close() stops the periodic flush loop and then performs a
			// final Flush(). This is the clean shutdown path.
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	// The DSN may carry credentials via environment references.
	repo, err := warehouse.New(ctx, warehouse.Config{
		Kind:   p.Warehouse.Kind,
		DSN:    os.ExpandEnv(p.Warehouse.DSN),
		Schema: p.Warehouse.Schema,
	})
	if err != nil {
		fatalf("open warehouse: %v", err)
	}
	defer repo.Close()

	if *verbose {
		log.Printf("pipeline: input=%s cleaned=%s warehouse=%s schema=%s",
			p.Input.Dir, p.Cleaned.Dir, p.Warehouse.Kind, p.Warehouse.Schema)
	}

	runner := &pipeline.Runner{Cfg: p, Repo: repo, Logger: log.Default()}
	if _, err := runner.Run(ctx); err != nil {
		var schemaErr *warehouse.SchemaError
		var checkErr *integrity.CheckError
		switch {
		case errors.As(err, &schemaErr):
			log.Fatalf("schema setup failed: %v", err)
		case errors.As(err, &checkErr):
			// Committed batches stay committed; only the scan failed.
			log.Fatalf("integrity check failed: %v", err)
		default:
			log.Fatalf("%v", err)
		}
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
