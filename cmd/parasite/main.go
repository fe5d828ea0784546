package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mengysun/DataParasite/internal/config"
	"github.com/mengysun/DataParasite/internal/export"
	"github.com/mengysun/DataParasite/internal/metrics"
	"github.com/mengysun/DataParasite/internal/metrics/datadog"
	"github.com/mengysun/DataParasite/internal/metrics/prompush"
	"github.com/mengysun/DataParasite/internal/pricing"
	"github.com/mengysun/DataParasite/internal/research"
	"github.com/mengysun/DataParasite/internal/rows"
	"github.com/mengysun/DataParasite/internal/runner"
	"github.com/mengysun/DataParasite/internal/sink"
	"github.com/mengysun/DataParasite/internal/worker"
)

// main is the entry point for the enrichment binary. It loads the task
// config, optionally initializes a metrics backend, runs the batch, and
// writes the JSONL/CSV artifacts (plus any configured export).
func main() {
	var (
		cfgPath           string
		inputPath         string
		outputPath        string
		modelFlg          string
		sampleN           int
		seed              int64
		dedupe            bool
		reasoningEffort   string
		searchContextSize string
		maxWorkers        int
		validate          bool
		metricsBackendFlg string
		pushGatewayURLFlg string
		dogstatsdAddrFlg  string
	)

	flag.StringVar(&cfgPath, "config", "", "task config YAML path")
	flag.StringVar(&inputPath, "input", "", "input CSV path")
	flag.StringVar(&outputPath, "output", "", "output JSONL path")
	flag.StringVar(&modelFlg, "model", "", "model name (overrides default_model from config)")
	flag.IntVar(&sampleN, "sample", 0, "process only N randomly sampled rows (0 = all)")
	flag.Int64Var(&seed, "seed", 0, "random seed for -sample (default: current time)")
	flag.BoolVar(&dedupe, "dedupe", false, "drop duplicate rows before processing")
	flag.StringVar(&reasoningEffort, "reasoning-effort", "medium", "reasoning effort for gpt-5 models (low, medium, high)")
	flag.StringVar(&searchContextSize, "search-context-size", "medium", "web search context size (low, medium, high)")
	flag.IntVar(&maxWorkers, "max-workers", 0, "concurrent workers (0 = one per CPU, capped at 32)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (e.g. pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&dogstatsdAddrFlg, "dogstatsd-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if cfgPath == "" || inputPath == "" || outputPath == "" {
		fmt.Fprintln(os.Stderr, "missing required flags: -config, -input, -output")
		flag.Usage()
		os.Exit(2)
	}
	seedSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedSet = true
		}
	})

	if err := godotenv.Load(); err != nil {
		if *verbose {
			log.Println("No .env file found, assuming environment variables are set directly.")
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	log.Printf("Loaded task configuration from: %s", cfgPath)

	// Validate task config.
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	model := modelFlg
	if model == "" {
		model = cfg.DefaultModel
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fatalf("OPENAI_API_KEY is not set")
	}

	batch, skipped, err := rows.Load(inputPath)
	if err != nil {
		fatalf("%v", err)
	}
	if skipped > 0 {
		log.Printf("Skipped %d malformed rows in %s", skipped, inputPath)
	}

	if dedupe {
		var dropped int
		batch, dropped = rows.Dedupe(batch, rows.Header(batch))
		if dropped > 0 {
			log.Printf("Dropped %d duplicate rows", dropped)
		}
	}

	if sampleN > 0 && sampleN < len(batch) {
		if !seedSet {
			seed = time.Now().UnixNano()
		}
		batch = rows.Sample(batch, sampleN, seed)
		log.Printf("Sampled %d rows", sampleN)
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		// Decide Pushgateway URL: flag → env → default.
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		b, err := prompush.NewBackend("parasite", gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v", gwURL, backendName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "datadog":
		// Decide DogStatsD address: flag → env → default.
		addr := dogstatsdAddrFlg
		if addr == "" {
			addr = os.Getenv("DOGSTATSD_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}

		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "parasite."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: addr=%v, backend=%v", addr, backendName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	client := research.NewClient(research.Config{
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		APIKey:  apiKey,
	})
	acct := pricing.NewAccountant(pricing.DefaultTable(), "")
	wk := worker.New(cfg, client, acct, model, reasoningEffort, searchContextSize)

	out, err := sink.Create(outputPath)
	if err != nil {
		fatalf("%v", err)
	}

	runID := uuid.NewString()
	ctx := context.Background()
	if *verbose {
		log.Printf("run: id=%s model=%s rows=%d", runID, model, len(batch))
	}

	_, runErr := runner.Run(ctx, wk, out, batch, runner.Options{
		Workers: maxWorkers,
		Model:   model,
		Verbose: *verbose,
	})
	if err := out.Close(); err != nil {
		fatalf("%v", err)
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}
	log.Printf("Results with telemetry: %s", outputPath)

	inputCols := make([]string, 0, len(cfg.ColumnMapping))
	for _, m := range cfg.ColumnMapping {
		inputCols = append(inputCols, worker.InputPrefix+m.Var)
	}
	csvPath, err := sink.WriteCleanCSV(outputPath, inputCols, cfg.Schema.Columns())
	if err != nil {
		fatalf("%v", err)
	}
	log.Printf("Cleaned CSV saved: %s", csvPath)

	if err := runExport(ctx, cfg, runID, outputPath, csvPath); err != nil {
		// Export failure never discards the run: the JSONL and CSV
		// artifacts are already on disk.
		log.Printf("export: %v", err)
	}
}

// runExport replays the finished run from its JSONL artifact into the
// configured export destination. A kind of "" or "none" is a no-op.
func runExport(ctx context.Context, cfg *config.TaskConfig, runID, jsonlPath, csvPath string) error {
	exp, err := export.New(ctx, cfg.Export, export.TableColumns(cfg))
	if err != nil || exp == nil {
		return err
	}
	defer func() {
		if err := exp.Close(); err != nil {
			log.Printf("export: close: %v", err)
		}
	}()

	recs, err := sink.ReadAll(jsonlPath)
	if err != nil {
		return err
	}
	return exp.Export(ctx, export.Run{
		ID:        runID,
		Records:   recs,
		JSONLPath: jsonlPath,
		CSVPath:   csvPath,
	})
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
