package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randalmurphal/claimgraph/internal/config"
	"github.com/randalmurphal/claimgraph/internal/store"
	"github.com/randalmurphal/claimgraph/internal/telemetry"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/checkpoint"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/claim"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/inference"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/retry"
)

// app holds what PersistentPreRunE builds for every command.
var app struct {
	cfg       *config.Config
	logger    *slog.Logger
	shutdowns []telemetry.Shutdown
}

func setup(_ context.Context) error {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return err
	}
	app.cfg = cfg
	app.logger = cfg.NewLogger(os.Stderr)
	slog.SetDefault(app.logger)

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.InitTracer(cfg.App.Name, app.logger, telemetry.WithWriter(os.Stderr))
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		app.shutdowns = append(app.shutdowns, shutdown)
	}
	if cfg.Telemetry.Metrics {
		shutdown, err := telemetry.InitMeter(cfg.App.Name, app.logger, telemetry.WithWriter(os.Stderr))
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		app.shutdowns = append(app.shutdowns, shutdown)
	}
	return nil
}

func teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	for _, shutdown := range app.shutdowns {
		errs = append(errs, shutdown(ctx))
	}
	app.shutdowns = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, app.cfg.Storage.Type, app.cfg.Storage.SQLite.Path)
}

// openCheckpoints returns nil when checkpointing is disabled.
func openCheckpoints() (checkpoint.Store, error) {
	if !app.cfg.Checkpoint.Enabled {
		return nil, nil
	}
	return checkpoint.NewSQLiteStore(app.cfg.Checkpoint.Path)
}

// newInferencer opens the configured backend behind transient-error retries.
func newInferencer() (claimgraph.Inferencer, error) {
	ic := app.cfg.Inference
	inf, err := inference.Open(ic.Backend, inference.NewSettings(ic.Options))
	if err != nil {
		return nil, err
	}
	return inference.WithRetry(inf, retry.NewConfig(
		retry.WithMaxAttempts(ic.Retry.MaxAttempts),
		retry.WithInitialBackoff(ic.Retry.InitialBackoff),
	)), nil
}

func newOrchestrator(src claimgraph.RecordSource) (*claimgraph.Orchestrator, error) {
	inf, err := newInferencer()
	if err != nil {
		return nil, err
	}
	return claimgraph.New(inf,
		claimgraph.WithLogger(app.logger),
		claimgraph.WithRecordSource(src),
		claimgraph.WithStageTimeout(app.cfg.Pipeline.StageTimeout),
		claimgraph.WithMetrics(app.cfg.Telemetry.Metrics),
		claimgraph.WithTracing(app.cfg.Telemetry.Tracing),
	), nil
}

func claimOptions() []claim.Option {
	p := app.cfg.Pricing
	return []claim.Option{
		claim.WithPricing(claim.LinearPricing{Base: p.Base, Increment: p.Increment}),
		claim.WithCurrency(p.Currency),
	}
}

// runError turns a failed pipeline state into an error.
func runError(final claimgraph.State) error {
	if final.Error == "" {
		return nil
	}
	return fmt.Errorf("analysis failed: %s", final.Error)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
