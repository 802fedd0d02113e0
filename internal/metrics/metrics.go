// Package metrics is a minimal counter/histogram façade for the pipeline.
//
// The core ETL code depends only on Backend; the default backend is a no-op
// so instrumentation costs nothing unless a real backend (e.g. datadog) is
// installed at startup.
//
// Metric names used by the pipeline:
//   - etl_step_total{step,status}            runs per pipeline step
//   - etl_records_total{kind}                rows per kind (staged, facts, ...)
//   - etl_batches_total                      committed batches
//   - etl_step_duration_seconds{step,status} step wall time
package metrics

import "sync/atomic"

// Labels are metric dimension values. Callers pass short literal maps;
// backends may ignore labels they do not understand.
type Labels map[string]string

// Backend receives metric updates. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// nopBackend drops everything.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// holder keeps atomic.Value stores consistently typed regardless of the
// concrete Backend installed.
type holder struct{ b Backend }

var current atomic.Value // holder

func init() {
	current.Store(holder{nopBackend{}})
}

// SetBackend installs the process-wide backend. Call once at startup,
// before the pipeline runs.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	current.Store(holder{b})
}

func backend() Backend {
	return current.Load().(holder).b
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}
