package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mengysun/DataParasite/internal/pricing"
	"github.com/mengysun/DataParasite/internal/rows"
	"github.com/mengysun/DataParasite/internal/worker"
	"github.com/mengysun/DataParasite/pkg/records"
)

// stubWorker adapts a function to the ItemWorker interface and counts
// invocations.
type stubWorker struct {
	calls int32
	fn    func(row rows.Row) worker.ItemResult
}

func (s *stubWorker) Run(_ context.Context, row rows.Row) worker.ItemResult {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(row)
}

// memorySink captures appended records in arrival order.
type memorySink struct {
	mu   sync.Mutex
	recs []records.Record
}

func (m *memorySink) Append(rec records.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memorySink) records() []records.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]records.Record(nil), m.recs...)
}

// failingSink rejects every append.
type failingSink struct{}

func (failingSink) Append(records.Record) error { return errors.New("disk full") }

func okResult(name string, cost float64) worker.ItemResult {
	return worker.ItemResult{
		OK:         true,
		Fields:     map[string]string{"input_company_name": name, "ceo": "Jane Doe"},
		Usage:      pricing.Usage{InputTokens: 1000, OutputTokens: 200, CachedTokens: 100, WebSearchCalls: 1},
		ResponseID: "resp_" + name,
		Duration:   0.5,
		Cost:       cost,
	}
}

func batchOf(names ...string) []rows.Row {
	out := make([]rows.Row, len(names))
	for i, name := range names {
		out[i] = rows.Row{"Company": name}
	}
	return out
}

/*
TestRunOneRecordPerRow verifies every input row produces exactly one
sink record and the totals add up.
*/
func TestRunOneRecordPerRow(t *testing.T) {
	t.Parallel()

	w := &stubWorker{fn: func(row rows.Row) worker.ItemResult {
		return okResult(row["Company"], 0.01)
	}}
	dst := &memorySink{}

	totals, err := Run(context.Background(), w, dst, batchOf("a", "b", "c", "d", "e"), Options{Workers: 3, Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt32(&w.calls); got != 5 {
		t.Fatalf("worker invoked %d times, want 5", got)
	}
	if len(dst.records()) != 5 {
		t.Fatalf("sink holds %d records, want 5", len(dst.records()))
	}
	if totals.Processed != 5 || totals.Succeeded != 5 || totals.Failed != 0 {
		t.Fatalf("totals = %+v", totals)
	}
	if diff := totals.Cost - 0.05; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("total cost = %v, want 0.05", totals.Cost)
	}
	if totals.InputTokens != 5000 || totals.CachedTokens != 500 || totals.SearchCalls != 5 {
		t.Fatalf("token totals = %+v", totals)
	}
}

/*
TestRunCostCountsSuccessOnly verifies failed items keep their cost out
of the run total while their tokens still count.
*/
func TestRunCostCountsSuccessOnly(t *testing.T) {
	t.Parallel()

	w := &stubWorker{fn: func(row rows.Row) worker.ItemResult {
		if row["Company"] == "bad" {
			return worker.ItemResult{
				Fields:     map[string]string{"ceo": worker.ErrorMarker},
				Usage:      pricing.Usage{InputTokens: 2000, OutputTokens: 100},
				ResponseID: "resp_bad",
				Duration:   0.2,
				Cost:       0.004,
				Err:        "incomplete or no parsed payload",
			}
		}
		return okResult(row["Company"], 0.01)
	}}
	dst := &memorySink{}

	totals, err := Run(context.Background(), w, dst, batchOf("good", "bad"), Options{Workers: 1, Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if totals.Succeeded != 1 || totals.Failed != 1 {
		t.Fatalf("totals = %+v", totals)
	}
	if diff := totals.Cost - 0.01; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("total cost = %v, want 0.01 (success only)", totals.Cost)
	}
	if totals.InputTokens != 3000 {
		t.Fatalf("input tokens = %d, want 3000 (all items)", totals.InputTokens)
	}

	// The failed item's own record still carries its cost.
	for _, rec := range dst.records() {
		if rec["status"] == StatusFailed {
			if rec["total_cost"] != 0.004 {
				t.Fatalf("failed record cost = %v, want 0.004", rec["total_cost"])
			}
			if rec["error"] != "incomplete or no parsed payload" {
				t.Fatalf("failed record error = %v", rec["error"])
			}
		}
	}
}

/*
TestRunSingleWorkerKeepsInputOrder verifies records arrive in input
order when concurrency is one.
*/
func TestRunSingleWorkerKeepsInputOrder(t *testing.T) {
	t.Parallel()

	w := &stubWorker{fn: func(row rows.Row) worker.ItemResult {
		return okResult(row["Company"], 0)
	}}
	dst := &memorySink{}

	if _, err := Run(context.Background(), w, dst, batchOf("first", "second", "third"), Options{Workers: 1, Model: "m"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"first", "second", "third"}
	for i, rec := range dst.records() {
		if got := rec.StringOr("input_company_name", ""); got != want[i] {
			t.Fatalf("record %d = %q, want %q", i, got, want[i])
		}
	}
}

/*
TestRunCompletionOrderIsArrivalOrder verifies slow items do not block
faster ones from landing first when workers run in parallel.
*/
func TestRunCompletionOrderIsArrivalOrder(t *testing.T) {
	t.Parallel()

	delays := map[string]time.Duration{
		"slow":   150 * time.Millisecond,
		"medium": 75 * time.Millisecond,
		"fast":   5 * time.Millisecond,
	}
	w := &stubWorker{fn: func(row rows.Row) worker.ItemResult {
		time.Sleep(delays[row["Company"]])
		return okResult(row["Company"], 0)
	}}
	dst := &memorySink{}

	if _, err := Run(context.Background(), w, dst, batchOf("slow", "medium", "fast"), Options{Workers: 3, Model: "m"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := make([]string, 0, 3)
	for _, rec := range dst.records() {
		got = append(got, rec.StringOr("input_company_name", ""))
	}
	if len(got) != 3 || got[0] != "fast" || got[2] != "slow" {
		t.Fatalf("arrival order = %v, want fast first and slow last", got)
	}
}

/*
TestRunHonorsWorkerCap verifies no more than Workers items run at once.
*/
func TestRunHonorsWorkerCap(t *testing.T) {
	t.Parallel()

	var inFlight, peak int32
	w := &stubWorker{fn: func(row rows.Row) worker.ItemResult {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return okResult(row["Company"], 0)
	}}

	if _, err := Run(context.Background(), w, &memorySink{}, batchOf("a", "b", "c", "d", "e", "f"), Options{Workers: 2, Model: "m"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

/*
TestRunSinkErrorAborts verifies a failing sink stops the run with an
error instead of hanging the pool.
*/
func TestRunSinkErrorAborts(t *testing.T) {
	t.Parallel()

	w := &stubWorker{fn: func(row rows.Row) worker.ItemResult {
		return okResult(row["Company"], 0)
	}}

	_, err := Run(context.Background(), w, failingSink{}, batchOf("a", "b", "c"), Options{Workers: 2, Model: "m"})
	if err == nil {
		t.Fatal("expected an error from the failing sink")
	}
}

/*
TestRunEmptyBatch verifies a zero-row run completes cleanly.
*/
func TestRunEmptyBatch(t *testing.T) {
	t.Parallel()

	w := &stubWorker{fn: func(rows.Row) worker.ItemResult { return worker.ItemResult{} }}
	dst := &memorySink{}

	totals, err := Run(context.Background(), w, dst, nil, Options{Model: "m"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if totals.Processed != 0 || len(dst.records()) != 0 {
		t.Fatalf("expected no work, got totals=%+v records=%d", totals, len(dst.records()))
	}
}

/*
TestStampSuccess verifies the telemetry stamped onto a successful
record, including cost and duration rounding.
*/
func TestStampSuccess(t *testing.T) {
	t.Parallel()

	res := worker.ItemResult{
		OK:         true,
		Fields:     map[string]string{"ceo": "Jane Doe", "input_company_name": "Acme"},
		Usage:      pricing.Usage{InputTokens: 1200, OutputTokens: 300, CachedTokens: 100, WebSearchCalls: 2},
		ResponseID: "resp_123",
		Duration:   1.23456,
		Cost:       0.0123456789,
	}
	now := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

	rec := Stamp(res, "gpt-4o-mini", now)

	checks := map[string]any{
		"ceo":                "Jane Doe",
		"input_company_name": "Acme",
		"timestamp":          "2024-03-01T12:30:45",
		"model":              "gpt-4o-mini",
		"response_id":        "resp_123",
		"input_tokens":       1200,
		"output_tokens":      300,
		"cached_tokens":      100,
		"web_search_calls":   2,
		"total_cost":         0.012346,
		"duration_seconds":   1.23,
		"status":             StatusSuccess,
	}
	for key, want := range checks {
		if got := rec[key]; got != want {
			t.Errorf("rec[%q] = %v (%T), want %v (%T)", key, got, got, want, want)
		}
	}
	if _, ok := rec["error"]; ok {
		t.Error("success record must not carry an error field")
	}
}

/*
TestStampFailure verifies failed records carry status, error, and the
placeholder response id.
*/
func TestStampFailure(t *testing.T) {
	t.Parallel()

	res := worker.ItemResult{
		Fields:     map[string]string{"ceo": worker.ErrorMarker},
		ResponseID: "N/A",
		Err:        "missing required fields: [Company]",
	}
	rec := Stamp(res, "gpt-4o-mini", time.Now())

	if rec["status"] != StatusFailed {
		t.Fatalf("status = %v, want %q", rec["status"], StatusFailed)
	}
	if rec["error"] != "missing required fields: [Company]" {
		t.Fatalf("error = %v", rec["error"])
	}
	if rec["response_id"] != "N/A" {
		t.Fatalf("response_id = %v, want N/A", rec["response_id"])
	}
	if rec["total_cost"] != 0.0 {
		t.Fatalf("total_cost = %v, want 0", rec["total_cost"])
	}
}

func TestDefaultWorkersBounds(t *testing.T) {
	t.Parallel()

	n := DefaultWorkers()
	if n < 1 || n > 32 {
		t.Fatalf("DefaultWorkers() = %d, want within [1, 32]", n)
	}
}

func BenchmarkStamp(b *testing.B) {
	res := okResult("Acme", 0.01)
	now := time.Now()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Stamp(res, "gpt-4o-mini", now)
	}
}
