package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claimgraph/internal/server"
	"github.com/randalmurphal/claimgraph/internal/store"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/claim"
)

var claimFlags struct {
	patient  string
	provider string
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Build a billing claim from the latest analysis",
	Args:  cobra.NoArgs,
	RunE:  runClaim,
}

func init() {
	f := claimCmd.Flags()
	f.StringVar(&claimFlags.patient, "patient", server.DefaultPatientID, "Patient ID")
	f.StringVar(&claimFlags.provider, "provider", server.DefaultProviderID, "Provider organization ID (empty for none)")
}

func runClaim(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	analysis, err := st.LatestAnalysis(cmd.Context())
	if errors.Is(err, store.ErrNotFound) {
		return errors.New("no analysis results found, run \"claimgraph analyze\" first")
	}
	if err != nil {
		return err
	}

	c, err := claim.Assemble(&analysis.Coded, claim.Request{PatientID: claimFlags.patient, ProviderID: claimFlags.provider}, claimOptions()...)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), c)
}
