// voicebench drives scripted conversations against voice agents rendered in
// a real browser and measures their response latencies.
//
// Usage:
//
//	voicebench -config bench.yaml -repeat 3 -concurrency 4 -out report.csv
//
// With -import-id set, the remote resource is provisioned (secret, import,
// configuration) before any run starts; the resulting identifier replaces
// the {{resource}} placeholder in application URLs. The API token and the
// external credential are read from VOICEBENCH_API_TOKEN and
// VOICEBENCH_CREDENTIAL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voicebench/voicebench/internal/logging"
	"github.com/voicebench/voicebench/pkg/bench"
	"github.com/voicebench/voicebench/pkg/bench/browser"
	"github.com/voicebench/voicebench/pkg/bench/config"
	"github.com/voicebench/voicebench/pkg/bench/pageserver"
	"github.com/voicebench/voicebench/pkg/bench/provision"
)

func main() {
	configPath := flag.String("config", "bench.yaml", "Benchmark configuration file")
	repeat := flag.Int("repeat", 1, "Repetitions per (application, scenario) combination")
	concurrency := flag.Int("concurrency", 2, "Maximum parallel runs")
	out := flag.String("out", "report.csv", "Metrics report file")
	debug := flag.Bool("debug", false, "Verbose logging and periodic instrumentation snapshots")
	headless := flag.Bool("headless", true, "Run Chrome headless")
	serveDir := flag.String("serve-dir", "", "Serve this directory of generated pages on a local port")
	evalEndpoint := flag.String("eval-endpoint", "", "Transcription/evaluation endpoint for listen steps")
	importID := flag.String("import-id", "", "External resource to provision before the batch")
	provider := flag.String("provider", "", "Provider of the imported resource")
	apiBase := flag.String("api-base", "", "Remote API base URL for provisioning")
	flag.Parse()

	log := logging.New(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading configuration", "error", err)
		os.Exit(2)
	}

	var pageAddr string
	if *serveDir != "" {
		srvCfg := pageserver.DefaultConfig()
		srvCfg.Dir = *serveDir
		srv, err := pageserver.NewServer(srvCfg)
		if err != nil {
			log.Error("creating page server", "error", err)
			os.Exit(2)
		}
		addr, err := srv.Start()
		if err != nil {
			log.Error("starting page server", "error", err)
			os.Exit(2)
		}
		pageAddr = addr
		log.Info("serving pages", "addr", addr, "dir", *serveDir)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// Provisioning runs once, ahead of scheduling, and feeds its identifier
	// into per-run configuration.
	resourceID := ""
	if *importID != "" {
		token := os.Getenv("VOICEBENCH_API_TOKEN")
		credential := os.Getenv("VOICEBENCH_CREDENTIAL")
		if *apiBase == "" || token == "" || credential == "" {
			log.Error("provisioning requires -api-base, VOICEBENCH_API_TOKEN, and VOICEBENCH_CREDENTIAL")
			os.Exit(2)
		}

		client := provision.NewClient(*apiBase, token, credential)
		workflow := provision.NewWorkflow(client, log, provision.DefaultWorkflowConfig())
		result, err := workflow.Provision(ctx, provision.Request{
			Provider:   *provider,
			ImportID:   *importID,
			SecretName: "voicebench-" + *importID,
		})
		if err != nil {
			log.Error("provisioning failed", "error", err)
			os.Exit(2)
		}
		if result.ConfigWarning != nil {
			log.Warn("imported resource left unconfigured", "warning", result.ConfigWarning)
		}
		resourceID = result.Resource.ID
		log.Info("provisioned resource", "id", resourceID)
	}

	combos, err := cfg.Combinations()
	if err != nil {
		log.Error("expanding combinations", "error", err)
		os.Exit(2)
	}
	for i := range combos {
		combos[i].URL = strings.ReplaceAll(combos[i].URL, "{{resource}}", resourceID)
		combos[i].URL = strings.ReplaceAll(combos[i].URL, "{{server}}", pageAddr)
	}

	sink, err := bench.NewCSVSink(*out)
	if err != nil {
		log.Error("creating report", "error", err)
		os.Exit(2)
	}

	var eval bench.Evaluator = bench.NoopEvaluator{}
	if *evalEndpoint != "" {
		eval = bench.NewHTTPEvaluator(*evalEndpoint)
	}

	browserCfg := browser.DefaultConfig()
	browserCfg.Headless = *headless
	launcher := browser.NewLauncher(browserCfg, log)

	scheduler := bench.NewScheduler(launcher, sink, eval, log, bench.SchedulerConfig{
		Repeat:      *repeat,
		Concurrency: *concurrency,
		Controller:  bench.ControllerConfig{Debug: *debug},
	})

	summary := scheduler.Run(ctx, combos)

	// Flush the report even when the batch failed or was interrupted.
	if err := sink.Close(); err != nil {
		log.Error("writing report", "error", err)
	}

	fmt.Printf("\n%d runs: %d succeeded, %d failed\n", summary.Total, summary.Succeeded, summary.Failed)
	for _, r := range summary.Failures() {
		fmt.Printf("  FAIL %s: %v\n", r.Key, r.Err)
	}
	if summary.Failed > 0 {
		if !*debug {
			fmt.Println("\nHint: rerun with -debug for periodic instrumentation snapshots on stuck waits.")
		}
		os.Exit(1)
	}
}
