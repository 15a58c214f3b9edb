package inference

import (
	"context"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/retry"
)

// Retrying repeats failed calls on an inner backend.
type Retrying struct {
	inner claimgraph.Inferencer
	cfg   retry.Config
}

// WithRetry wraps inf so that transient failures and unusable output are
// retried according to cfg. Permanent failures return immediately.
func WithRetry(inf claimgraph.Inferencer, cfg retry.Config) *Retrying {
	if cfg.RetryableFunc == nil {
		cfg.RetryableFunc = retryOnTransientOrOutput
	}
	return &Retrying{inner: inf, cfg: cfg}
}

func retryOnTransientOrOutput(err error) bool {
	switch retry.Categorize(err) {
	case retry.CategoryTransient, retry.CategoryInvalidOutput:
		return true
	}
	return false
}

// Extract implements claimgraph.Inferencer.
func (r *Retrying) Extract(ctx context.Context, in claimgraph.ExtractInput) (claimgraph.Extracted, error) {
	res := retry.Do(ctx, r.cfg, func(ctx context.Context) (claimgraph.Extracted, error) {
		return r.inner.Extract(ctx, in)
	})
	return res.Value, res.Err
}

// Code implements claimgraph.Inferencer.
func (r *Retrying) Code(ctx context.Context, in claimgraph.CodeInput) (claimgraph.Coded, error) {
	res := retry.Do(ctx, r.cfg, func(ctx context.Context) (claimgraph.Coded, error) {
		return r.inner.Code(ctx, in)
	})
	return res.Value, res.Err
}

// Audit implements claimgraph.Inferencer.
func (r *Retrying) Audit(ctx context.Context, in claimgraph.AuditInput) (claimgraph.Audit, error) {
	res := retry.Do(ctx, r.cfg, func(ctx context.Context) (claimgraph.Audit, error) {
		return r.inner.Audit(ctx, in)
	})
	return res.Value, res.Err
}
