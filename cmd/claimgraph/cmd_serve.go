package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claimgraph/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ingest, analyze and generate-claim HTTP API",
	Long: `Starts the HTTP API on server.port. SIGINT or SIGTERM drains in-flight
requests before exiting.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	cps, err := openCheckpoints()
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(st)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithInfo(app.cfg.App.Name, app.cfg.App.Version),
		server.WithDefaultMaxRetries(app.cfg.Pipeline.MaxRetries),
		server.WithRequestTimeout(app.cfg.Server.RequestTimeout),
		server.WithClaimOptions(claimOptions()...),
	}
	if cps != nil {
		defer cps.Close()
		opts = append(opts, server.WithCheckpoints(cps))
	}

	return server.New(st, orch, app.logger, opts...).ListenAndServe(ctx, app.cfg.Server.Addr())
}
