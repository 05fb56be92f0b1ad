package effects

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"leaveflow/workflow"
)

type Option func(r *Reconciler)

func WithInterval(interval time.Duration) Option {
	return func(r *Reconciler) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithRate limits ledger and notification retries to perSecond operations.
func WithRate(perSecond float64) Option {
	return func(r *Reconciler) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithBatchSize(size int) Option {
	return func(r *Reconciler) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func WithPolicies(policies workflow.Policies) Option {
	return func(r *Reconciler) {
		r.policies = policies
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.log = log
	}
}
