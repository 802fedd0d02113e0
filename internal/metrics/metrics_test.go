package metrics

import "testing"

type recordingBackend struct {
	counters   map[string]float64
	histograms map[string][]float64
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.counters[name] += delta
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.histograms[name] = append(r.histograms[name], value)
}

func TestDefaultBackendIsNop(t *testing.T) {
	// Must not panic with no backend installed.
	IncCounter("etl_batches_total", 1, nil)
	ObserveHistogram("etl_step_duration_seconds", 0.5, Labels{"step": "load"})
}

func TestSetBackendRoutesUpdates(t *testing.T) {
	rb := &recordingBackend{counters: map[string]float64{}, histograms: map[string][]float64{}}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	IncCounter("etl_batches_total", 2, nil)
	IncCounter("etl_batches_total", 1, nil)
	ObserveHistogram("etl_step_duration_seconds", 1.5, Labels{"step": "load", "status": "ok"})

	if rb.counters["etl_batches_total"] != 3 {
		t.Errorf("counter = %v, want 3", rb.counters["etl_batches_total"])
	}
	if len(rb.histograms["etl_step_duration_seconds"]) != 1 {
		t.Errorf("histograms = %v", rb.histograms)
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	SetBackend(nil)
	IncCounter("etl_batches_total", 1, nil) // must not panic
}
