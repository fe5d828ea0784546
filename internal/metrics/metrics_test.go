package metrics

import (
	"sync"
	"testing"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func TestRecordItem(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordItem("gpt-4o-mini", "success", 2.5, 0.012)
	RecordItem("gpt-4o-mini", "failed", 0.1, 0)

	if len(fb.callsCounters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.callsCounters))
	}
	if len(fb.callsHistograms) != 4 {
		t.Fatalf("expected 4 histogram calls, got %d", len(fb.callsHistograms))
	}

	c0 := fb.callsCounters[0]
	if c0.name != "parasite_items_total" || c0.delta != 1 {
		t.Fatalf("counter[0] = %#v", c0)
	}
	if c0.labels["model"] != "gpt-4o-mini" || c0.labels["status"] != "success" {
		t.Fatalf("counter[0] labels = %v", c0.labels)
	}
	if c1 := fb.callsCounters[1]; c1.labels["status"] != "failed" {
		t.Fatalf("counter[1] labels = %v", c1.labels)
	}

	h0 := fb.callsHistograms[0]
	if h0.name != "parasite_item_duration_seconds" || h0.value != 2.5 {
		t.Fatalf("hist[0] = %#v", h0)
	}
	h1 := fb.callsHistograms[1]
	if h1.name != "parasite_item_cost_usd" || h1.value != 0.012 {
		t.Fatalf("hist[1] = %#v", h1)
	}
}

func TestRecordTokens(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordTokens("gpt-5", 1000, 200, 0, 2)

	// cached=0 is dropped; input, output, and searches remain.
	if len(fb.callsCounters) != 3 {
		t.Fatalf("expected 3 counter calls, got %d: %v", len(fb.callsCounters), fb.callsCounters)
	}
	if c := fb.callsCounters[0]; c.name != "parasite_tokens_total" || c.delta != 1000 || c.labels["kind"] != "input" {
		t.Fatalf("counter[0] = %#v", c)
	}
	if c := fb.callsCounters[1]; c.delta != 200 || c.labels["kind"] != "output" {
		t.Fatalf("counter[1] = %#v", c)
	}
	if c := fb.callsCounters[2]; c.name != "parasite_search_calls_total" || c.delta != 2 {
		t.Fatalf("counter[2] = %#v", c)
	}
}

func TestRecordRun(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordRun("gpt-4o-mini", 50, 47, 1.25, 120.5)

	if len(fb.callsCounters) != 3 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls = %d counters / %d histograms", len(fb.callsCounters), len(fb.callsHistograms))
	}
	if c := fb.callsCounters[1]; c.name != "parasite_run_items_total" || c.delta != 50 {
		t.Fatalf("counter[1] = %#v", c)
	}
	if h := fb.callsHistograms[1]; h.name != "parasite_run_cost_usd" || h.value != 1.25 {
		t.Fatalf("hist[1] = %#v", h)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)

	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}

	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	// SetBackend(nil) should not nil out the backend.
	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
