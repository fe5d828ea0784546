// Package runner fans a batch of rows out to concurrent item workers
// and folds completions into the output stream and run totals.
//
// Design goals:
//   - Rows flow via channels; no per-item bookkeeping in the workers.
//   - A single consumer owns the sink and the totals, so neither needs
//     locking.
//   - Completion order is arrival order, not input order; every row
//     yields exactly one record either way.
package runner

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/mengysun/DataParasite/internal/metrics"
	"github.com/mengysun/DataParasite/internal/rows"
	"github.com/mengysun/DataParasite/internal/worker"
	"github.com/mengysun/DataParasite/pkg/records"
)

// Record status values stamped by the executor.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// timestampLayout is the wall-clock stamp on every record.
const timestampLayout = "2006-01-02T15:04:05"

// progressEvery controls how often the progress line is logged.
const progressEvery = 10

// ItemWorker processes one row to a terminal result. *worker.Worker
// satisfies it.
type ItemWorker interface {
	Run(ctx context.Context, row rows.Row) worker.ItemResult
}

// Sink receives one stamped record per completed item. *sink.JSONL
// satisfies it.
type Sink interface {
	Append(rec records.Record) error
}

// Options configures one batch run.
type Options struct {
	// Workers caps concurrent item invocations. Zero or negative
	// selects DefaultWorkers().
	Workers int
	// Model is stamped into every record and metric.
	Model string
	// Verbose logs each item failure as it arrives.
	Verbose bool
}

// Totals aggregates one run. Cost sums successful items only; failed
// items keep their cost in their own records.
type Totals struct {
	Processed    int
	Succeeded    int
	Failed       int
	InputTokens  int
	OutputTokens int
	CachedTokens int
	SearchCalls  int
	Cost         float64
	Elapsed      time.Duration
}

// DefaultWorkers picks a concurrency cap from the machine size,
// bounded so a large host does not hammer the remote service.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 4
	}
	if n > 32 {
		n = 32
	}
	return n
}

// Run processes every row in batch through w and appends one stamped
// record per row to dst. It returns when all rows have completed, the
// context is canceled, or the sink fails. Totals reflect whatever was
// processed either way.
func Run(ctx context.Context, w ItemWorker, dst Sink, batch []rows.Row, opts Options) (Totals, error) {
	nworkers := opts.Workers
	if nworkers <= 0 {
		nworkers = DefaultWorkers()
	}
	if n := len(batch); n > 0 && nworkers > n {
		nworkers = n
	}

	n := len(batch)
	log.Printf("Processing %d entities with %d workers on model %s", n, nworkers, opts.Model)
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan rows.Row)
	results := make(chan worker.ItemResult, nworkers)

	var wg sync.WaitGroup
	for i := 0; i < nworkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				results <- w.Run(ctx, row)
			}
		}()
	}

	// Feed jobs; stop early if the run is canceled.
	go func() {
		defer close(jobs)
		for _, row := range batch {
			select {
			case <-ctx.Done():
				return
			case jobs <- row:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single consumer: stamps, appends, folds totals, logs progress.
	var totals Totals
	var appendErr error
	for res := range results {
		totals.Processed++

		rec := Stamp(res, opts.Model, time.Now())
		if appendErr == nil {
			if err := dst.Append(rec); err != nil {
				appendErr = fmt.Errorf("append record: %w", err)
				cancel()
			}
		}

		status := StatusFailed
		if res.OK {
			status = StatusSuccess
			totals.Succeeded++
			totals.Cost += res.Cost
		} else {
			totals.Failed++
			if opts.Verbose && res.Err != "" {
				log.Printf("Failed: %s", res.Err)
			}
		}
		totals.InputTokens += res.Usage.InputTokens
		totals.OutputTokens += res.Usage.OutputTokens
		totals.CachedTokens += res.Usage.CachedTokens
		totals.SearchCalls += res.Usage.WebSearchCalls

		metrics.RecordItem(opts.Model, status, res.Duration, res.Cost)
		metrics.RecordTokens(opts.Model, res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.CachedTokens, res.Usage.WebSearchCalls)

		if totals.Processed%progressEvery == 0 || totals.Processed == n {
			log.Printf("Progress: %d/%d | cost=$%.4f", totals.Processed, n, totals.Cost)
		}
	}
	totals.Elapsed = time.Since(start)

	log.Printf("Done: %d processed, %d success, %d failed", totals.Processed, totals.Succeeded, totals.Failed)
	avgDenom := totals.Succeeded
	if avgDenom < 1 {
		avgDenom = 1
	}
	log.Printf("Total cost=$%.4f | Avg per success=$%.4f", totals.Cost, totals.Cost/float64(avgDenom))
	log.Printf("Duration: %.2fs", totals.Elapsed.Seconds())

	metrics.RecordRun(opts.Model, totals.Processed, totals.Succeeded, totals.Cost, totals.Elapsed.Seconds())

	if appendErr != nil {
		return totals, appendErr
	}
	return totals, ctx.Err()
}

// Stamp flattens one item result into the record shape written to the
// sink: the item's fields plus telemetry.
func Stamp(res worker.ItemResult, model string, now time.Time) records.Record {
	rec := make(records.Record, len(res.Fields)+11)
	for k, v := range res.Fields {
		rec[k] = v
	}
	rec["timestamp"] = now.Format(timestampLayout)
	rec["model"] = model
	rec["response_id"] = res.ResponseID
	rec["input_tokens"] = res.Usage.InputTokens
	rec["output_tokens"] = res.Usage.OutputTokens
	rec["cached_tokens"] = res.Usage.CachedTokens
	rec["web_search_calls"] = res.Usage.WebSearchCalls
	rec["total_cost"] = roundTo(res.Cost, 6)
	rec["duration_seconds"] = roundTo(res.Duration, 2)
	if res.OK {
		rec["status"] = StatusSuccess
	} else {
		rec["status"] = StatusFailed
		if res.Err != "" {
			rec["error"] = res.Err
		}
	}
	return rec
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
