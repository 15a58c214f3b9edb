package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/claimgraph/internal/store"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/claim"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
)

var demoFlags struct {
	minimal bool
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Ingest sample data, analyze it and print the claim, in memory",
	Args:  cobra.NoArgs,
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().BoolVar(&demoFlags.minimal, "minimal", false, "Use one resource of each type")
}

func runDemo(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	st := store.NewMemory()
	defer st.Close()

	bundle := fhir.SampleDataset(fhir.DefaultPatientID, time.Now())
	if demoFlags.minimal {
		bundle = fhir.MinimalDataset(fhir.DefaultPatientID, time.Now())
	}
	bundle.Normalize()
	ids, err := store.SaveBundle(ctx, st, &bundle)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ingested %d resources\n", len(ids))

	orch, err := newOrchestrator(st)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	final := orch.Run(ctx, ids, app.cfg.Pipeline.MaxRetries, claimgraph.WithRunID(runID))
	if err := runError(final); err != nil {
		return err
	}
	if _, err := storeResult(ctx, st, runID, final); err != nil {
		return err
	}
	fmt.Fprintf(out, "audit passed=%t after %d retries (ICD-10 %v, CPT %v)\n",
		final.Passed(), final.RetryCount, final.Coded.ICD10, final.Coded.CPT)

	analysis, err := st.LatestAnalysis(ctx)
	if err != nil {
		return err
	}
	c, err := claim.Assemble(&analysis.Coded, claim.Request{PatientID: fhir.DefaultPatientID}, claimOptions()...)
	if err != nil {
		return err
	}
	return printJSON(out, c)
}
