package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claimgraph/internal/store"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
)

var ingestFlags struct {
	synthetic bool
	minimal   bool
	patient   string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [bundle.json]",
	Short: "Store FHIR conditions, procedures and observations",
	Long: `Reads a bundle of the form
  {"conditions": [...], "procedures": [...], "observations": [...]}
from a file (or stdin with "-") and stores every resource. Resources without
an id get one. Prints the stored resource IDs.

  claimgraph ingest bundle.json
  claimgraph ingest --synthetic --patient=patient-42`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.BoolVar(&ingestFlags.synthetic, "synthetic", false, "Ingest the built-in sample dataset")
	f.BoolVar(&ingestFlags.minimal, "minimal", false, "With --synthetic, ingest one resource of each type")
	f.StringVar(&ingestFlags.patient, "patient", fhir.DefaultPatientID, "Patient for --synthetic")
}

func runIngest(cmd *cobra.Command, args []string) error {
	bundle, err := readBundle(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	bundle.Normalize()
	if err := bundle.Validate(); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := store.SaveBundle(cmd.Context(), st, &bundle)
	if err != nil {
		return err
	}
	app.logger.Info("resources ingested", "count", len(ids))
	return printJSON(cmd.OutOrStdout(), map[string]any{"resource_ids": ids})
}

func readBundle(stdin io.Reader, args []string) (fhir.Bundle, error) {
	if ingestFlags.synthetic {
		if len(args) > 0 {
			return fhir.Bundle{}, fmt.Errorf("--synthetic takes no file argument")
		}
		if ingestFlags.minimal {
			return fhir.MinimalDataset(ingestFlags.patient, time.Now()), nil
		}
		return fhir.SampleDataset(ingestFlags.patient, time.Now()), nil
	}
	if len(args) == 0 {
		return fhir.Bundle{}, fmt.Errorf("bundle file or --synthetic is required")
	}

	r := stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fhir.Bundle{}, err
		}
		defer f.Close()
		r = f
	}
	var b fhir.Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return fhir.Bundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	return b, nil
}
