package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"visitor-forecast/internal/config"
	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/pipeline"
	"visitor-forecast/internal/store"
	"visitor-forecast/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: FORECAST_CONFIG or ./forecast.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "forecast:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging)

	// Init DB
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	runID := uuid.New().String()
	if err := db.SaveRun(runID, cfg.Run); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &pipeline.Runner{DB: db, Outputs: utils.NewOutputManager(cfg.Output.Dir)}
	res, err := runner.Run(ctx, runID, cfg.Run)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	printResult(res)
	return nil
}

func printResult(res *pipeline.Result) {
	fmt.Printf("run %s completed in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
	for _, e := range res.Evaluations {
		fmt.Printf("  %-12s test %s (%s space): %.6f  [train %d, test %d]\n",
			e.Mode, e.Metric, e.Space, e.Value, e.TrainSamples, e.TestSamples)
	}
	for _, ex := range res.Exports {
		fmt.Printf("  exported %d predictions to %s %s\n", ex.RecordCount, ex.Type, ex.Path)
	}
	if len(res.Predictions) > 0 {
		first := res.Predictions[0]
		fmt.Printf("  %d predictions, first %s = %.2f\n", len(res.Predictions), first.ID, first.Visitors)
	}
}
