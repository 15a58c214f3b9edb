/*
Package claimgraph runs clinical records through a staged coding pipeline
and hands the result to claim assembly.

# Overview

A run moves through three stages, each backed by an inference collaborator:

  - extract: pull diagnoses, procedures and observations out of raw records
  - code: assign ICD-10, CPT and LOINC codes to the findings
  - audit: check the codes; a failing audit sends the run back to the coder

The auditor owns the retry decision. Each failing audit consumes one retry
until MaxRetries is reached, after which the run ends with the failing
audit kept as is.

# Basic Usage

	orch := claimgraph.New(inference.NewMock())
	final := orch.Run(ctx, []string{"condition-1a2b3c4d"}, 3)
	if final.Failed() {
	    log.Fatal(final.Error)
	}
	fmt.Println(final.Coded.ICD10)

Run never returns an error. Every failure is recorded in State.Error and
the state reflects all work completed before it.

# Routing

Stages do not call each other. Each returns an Update carrying the next
action; Route maps the merged state to the next stage:

	error set          -> terminate
	no action yet      -> extract
	code, retry_code   -> code
	audit              -> audit
	end                -> terminate

The orchestrator also enforces a hard cap of MaxInvocations(maxRetries)
stage invocations, independent of the router.

# Checkpointing

With WithCheckpointing, a snapshot is saved after every stage:

	store := checkpoint.NewMemoryStore()
	final := orch.Run(ctx, ids, 3, claimgraph.WithRunID("run-1"), claimgraph.WithCheckpointing(store))

	// Later, after a crash:
	final, err := orch.Resume(ctx, store, "run-1")

# Observability

Runs and stages are logged with slog, traced with OpenTelemetry spans and
recorded as OpenTelemetry metrics. Use WithMetrics(false) and
WithTracing(false) to disable the latter two.
*/
package claimgraph
