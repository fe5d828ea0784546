// Package worker runs the per-row enrichment state machine. One row in,
// one ItemResult out, always: required-field gaps, invocation blowups,
// and unusable replies all collapse into a failed result rather than an
// error return, so the batch layer never needs per-item error handling.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/mengysun/DataParasite/internal/config"
	"github.com/mengysun/DataParasite/internal/pricing"
	"github.com/mengysun/DataParasite/internal/research"
	"github.com/mengysun/DataParasite/internal/rows"
)

// ErrorMarker fills every output field of a failed item.
const ErrorMarker = "error"

// InputPrefix distinguishes echoed input columns from researched ones
// in the final record.
const InputPrefix = "input_"

// Invoker is the remote collaborator. *research.Client satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req research.Request) (*research.Result, error)
}

// ItemResult is the terminal outcome for one row. Fields holds the
// tidied output values plus the input_-prefixed prompt variables, ready
// to stamp and append to the sink.
type ItemResult struct {
	OK         bool
	PromptVars map[string]string
	Fields     map[string]string
	Usage      pricing.Usage
	ResponseID string
	Duration   float64 // seconds
	Cost       float64
	Err        string // empty when OK
}

// Worker executes single rows. Safe for concurrent use; all state is
// read-only after construction.
type Worker struct {
	cfg         *config.TaskConfig
	invoker     Invoker
	accountant  *pricing.Accountant
	model       string
	effort      string
	contextSize string
}

// New builds a worker bound to one task, model, and hint pair.
func New(cfg *config.TaskConfig, invoker Invoker, acct *pricing.Accountant, model, effort, contextSize string) *Worker {
	return &Worker{
		cfg:         cfg,
		invoker:     invoker,
		accountant:  acct,
		model:       model,
		effort:      effort,
		contextSize: contextSize,
	}
}

// Run processes one row to a terminal result. It never returns an
// error: every failure mode becomes an ItemResult with OK false.
func (w *Worker) Run(ctx context.Context, row rows.Row) ItemResult {
	vars := rows.Project(row, w.cfg.ColumnMapping)
	start := time.Now()

	if missing := rows.MissingRequired(row, w.cfg.RequiredColumns); len(missing) > 0 {
		return ItemResult{
			PromptVars: vars,
			Fields:     w.errorFields(vars),
			ResponseID: "N/A",
			Duration:   time.Since(start).Seconds(),
			Err:        fmt.Sprintf("missing required fields: %v", missing),
		}
	}

	res, err := w.callOnce(ctx, vars)
	duration := time.Since(start).Seconds()
	if err != nil {
		// The call itself blew up: transport, HTTP status, rendering,
		// or a schema-violating payload. No usable usage survives.
		return ItemResult{
			PromptVars: vars,
			Fields:     w.errorFields(vars),
			ResponseID: "N/A",
			Duration:   duration,
			Err:        err.Error(),
		}
	}

	cost := w.accountant.Cost(w.model, res.Usage)
	if !res.OK {
		// The service answered without a usable payload. Tokens were
		// still spent, so usage and cost carry into the record.
		return ItemResult{
			PromptVars: vars,
			Fields:     w.errorFields(vars),
			Usage:      res.Usage,
			ResponseID: res.ResponseID,
			Duration:   duration,
			Cost:       cost,
			Err:        res.Err,
		}
	}

	fields := make(map[string]string, len(res.Fields)+len(vars))
	for name, v := range res.Fields {
		fields[name] = Tidy(v)
	}
	mergeInputVars(fields, vars)
	return ItemResult{
		OK:         true,
		PromptVars: vars,
		Fields:     fields,
		Usage:      res.Usage,
		ResponseID: res.ResponseID,
		Duration:   duration,
		Cost:       cost,
	}
}

// callOnce renders the user prompt and performs the single remote
// attempt.
func (w *Worker) callOnce(ctx context.Context, vars map[string]string) (*research.Result, error) {
	userPrompt, err := config.RenderPrompt(w.cfg.PromptUser, vars)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}
	return w.invoker.Invoke(ctx, research.Request{
		Model:             w.model,
		SystemPrompt:      w.cfg.PromptSystem,
		UserPrompt:        userPrompt,
		Schema:            w.cfg.Schema,
		ReasoningEffort:   w.effort,
		SearchContextSize: w.contextSize,
	})
}

// errorFields marks every schema column with ErrorMarker and merges
// the echoed inputs.
func (w *Worker) errorFields(vars map[string]string) map[string]string {
	fields := make(map[string]string, w.cfg.Schema.Len()+len(vars))
	for _, name := range w.cfg.Schema.Columns() {
		fields[name] = ErrorMarker
	}
	mergeInputVars(fields, vars)
	return fields
}

func mergeInputVars(fields map[string]string, vars map[string]string) {
	for name, v := range vars {
		fields[InputPrefix+name] = v
	}
}
