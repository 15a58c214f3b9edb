package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph/inference"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List registered inference backends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range inference.Backends() {
			marker := " "
			if name == app.cfg.Inference.Backend {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
		return nil
	},
}
