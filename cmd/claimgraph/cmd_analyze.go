package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/claimgraph/internal/server"
	"github.com/randalmurphal/claimgraph/internal/store"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/checkpoint"
)

var analyzeFlags struct {
	maxRetries int
	batch      string
	parallel   int
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [resource-id]...",
	Short: "Run stored resources through extract, code and audit",
	Long: `Runs the pipeline over the given resource IDs and stores the result for
"claimgraph claim".

With --batch, reads a JSON array of ID lists and runs each list as its own
analysis, up to --parallel at a time:

  claimgraph analyze condition-1 procedure-1 observation-1
  claimgraph analyze --batch=runs.json --parallel=4`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.IntVar(&analyzeFlags.maxRetries, "max-retries", -1, "Coding retries after a failed audit (default: pipeline.max_retries)")
	f.StringVar(&analyzeFlags.batch, "batch", "", "JSON file holding an array of resource ID lists")
	f.IntVar(&analyzeFlags.parallel, "parallel", 1, "Concurrent runs for --batch")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	maxRetries := analyzeFlags.maxRetries
	if maxRetries < 0 {
		maxRetries = app.cfg.Pipeline.MaxRetries
	}

	groups := [][]string{args}
	if analyzeFlags.batch != "" {
		if len(args) > 0 {
			return fmt.Errorf("--batch takes no resource IDs")
		}
		var err error
		if groups, err = readBatch(analyzeFlags.batch); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	cps, err := openCheckpoints()
	if err != nil {
		return err
	}
	if cps != nil {
		defer cps.Close()
	}
	orch, err := newOrchestrator(st)
	if err != nil {
		return err
	}

	results := make([]server.AnalyzeResponse, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(analyzeFlags.parallel, 1))
	for i, ids := range groups {
		g.Go(func() error {
			res, err := analyzeOne(gctx, st, cps, orch, ids, maxRetries)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if analyzeFlags.batch == "" {
		return printJSON(cmd.OutOrStdout(), results[0])
	}
	return printJSON(cmd.OutOrStdout(), results)
}

func analyzeOne(ctx context.Context, st store.Store, cps checkpoint.Store, orch *claimgraph.Orchestrator, ids []string, maxRetries int) (server.AnalyzeResponse, error) {
	runID := uuid.NewString()
	opts := []claimgraph.RunOption{claimgraph.WithRunID(runID)}
	if cps != nil {
		opts = append(opts, claimgraph.WithCheckpointing(cps))
	}

	final := orch.Run(ctx, ids, maxRetries, opts...)
	if err := runError(final); err != nil {
		return server.AnalyzeResponse{}, err
	}
	return storeResult(ctx, st, runID, final)
}

// storeResult saves a finished run and shapes it like the HTTP response.
func storeResult(ctx context.Context, st store.Store, runID string, final claimgraph.State) (server.AnalyzeResponse, error) {
	if a, ok := store.AnalysisFromState(runID, final); ok {
		if err := st.SaveAnalysis(ctx, a); err != nil {
			return server.AnalyzeResponse{}, err
		}
	}
	return server.AnalyzeResponse{
		Success:    true,
		Message:    "Analysis completed successfully",
		RunID:      runID,
		Extracted:  final.Extracted,
		Coded:      final.Coded,
		Audit:      final.Audit,
		RetryCount: final.RetryCount,
	}, nil
}

func readBatch(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var groups [][]string
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", path, err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("batch %s is empty", path)
	}
	return groups, nil
}
