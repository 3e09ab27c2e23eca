package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/obs"
	"github.com/catalogforge/ingestpipe/internal/app"
	"github.com/catalogforge/ingestpipe/internal/config"
	"github.com/catalogforge/ingestpipe/internal/service"
)

var (
	runSource   string
	runBatch    string
	runDev      bool
	runPrintObs bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one batch of raw items through the pipeline",
	Long: `Run loads the configured source's raw, normalization, and
canonical rulesets, processes every item in the batch file, and prints
a per-status tally plus any rejected items' violations.

The batch file is a JSON array of {"external_id": ..., "payload": {...}}
objects.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "", "source_id to run this batch against (required)")
	runCmd.Flags().StringVar(&runBatch, "batch", "", "path to a JSON batch file (required)")
	runCmd.Flags().BoolVar(&runDev, "dev", false, "enable development mode (relaxed config, in-memory adapters)")
	runCmd.Flags().BoolVar(&runPrintObs, "metrics", false, "print a Prometheus metrics snapshot after the run")
	_ = runCmd.MarkFlagRequired("source")
	_ = runCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidateConfig(runDev)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	recorder, closeObs, err := buildRecorder()
	if err != nil {
		return err
	}
	defer closeObs()

	built, err := app.BuildPipeline(cfg, runSource, logger, recorder)
	if err != nil {
		return err
	}
	defer built.Close()

	items, err := readBatchFile(runBatch)
	if err != nil {
		return err
	}

	result, err := built.Pipeline.Run(cmd.Context(), items)
	if err != nil {
		return fmt.Errorf("run: pipeline failed: %w", err)
	}

	printResult(result)
	return nil
}

func readBatchFile(path string) ([]service.RawItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("run: read batch file: %w", err)
	}
	var items []service.RawItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("run: parse batch file: %w", err)
	}
	return items, nil
}

func printResult(result service.BatchResult) {
	fmt.Printf("created=%d updated=%d destroyed=%d noop=%d rejected=%d\n",
		result.Created, result.Updated, result.Destroyed, result.Noop, result.Rejected)
	for _, outcome := range result.Outcomes {
		if outcome.Status != "rejected" {
			continue
		}
		fmt.Printf("rejected %s: %v\n", outcome.ExternalID, outcome.Violations)
	}
}

func loadAndValidateConfig(devFlag bool) (*config.PipelineConfig, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if devFlag {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func buildRecorder() (*obs.Recorder, func(), error) {
	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	tp, err := obs.NewTracerProvider()
	if err != nil {
		return nil, func() {}, fmt.Errorf("build tracer provider: %w", err)
	}
	mp, err := obs.NewMeterProvider()
	if err != nil {
		return nil, func() {}, fmt.Errorf("build meter provider: %w", err)
	}

	recorder, err := obs.NewRecorder(tp, mp, metrics)
	if err != nil {
		return nil, func() {}, fmt.Errorf("build observability recorder: %w", err)
	}

	closeFn := func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	}
	if runPrintObs {
		printMetricsOnClose := closeFn
		closeFn = func() {
			printMetricsOnClose()
			if families, err := reg.Gather(); err == nil {
				for _, f := range families {
					fmt.Fprintf(os.Stderr, "%s: %d series\n", f.GetName(), len(f.GetMetric()))
				}
			}
		}
	}
	return recorder, closeFn, nil
}
