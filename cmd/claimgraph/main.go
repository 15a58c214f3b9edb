// claimgraph turns stored clinical records into an audited billing claim.
//
// Usage:
//
//	claimgraph serve
//	claimgraph ingest bundle.json | --synthetic
//	claimgraph analyze <resource-id>... [--max-retries=N]
//	claimgraph analyze --batch=runs.json [--parallel=N]
//	claimgraph claim [--patient=ID] [--provider=ID]
//	claimgraph resume <run-id>
//	claimgraph migrate up|down|version
//	claimgraph demo
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "claimgraph",
	Short: "Extract, code and audit clinical records into a billing claim",
	Long: `claimgraph runs stored FHIR resources through an extract, code and audit
pipeline, retrying the coder when the audit rejects its output, and builds a
billing claim from the last accepted analysis.

Configuration comes from defaults, an optional YAML file (--config) and
CLAIMGRAPH_* environment variables, in that order. A .env file in the working
directory is loaded first if present.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		return teardown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.Version = version
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
