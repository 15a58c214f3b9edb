package main

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph/checkpoint"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue an interrupted run from its latest checkpoint",
	Long: `Loads the newest checkpoint for run-id from checkpoint.path and continues
the pipeline from there. A finished run is reported unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runID := args[0]

	cps, err := checkpoint.NewSQLiteStore(app.cfg.Checkpoint.Path)
	if err != nil {
		return err
	}
	defer cps.Close()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	orch, err := newOrchestrator(st)
	if err != nil {
		return err
	}

	final, err := orch.Resume(ctx, cps, runID)
	if err != nil {
		return err
	}
	if err := runError(final); err != nil {
		return err
	}
	res, err := storeResult(ctx, st, runID, final)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
