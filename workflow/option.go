package workflow

import (
	"time"

	"github.com/rs/zerolog"
)

type Option func(e *Engine)

// WithBalances enables balance sufficiency checks for balance-consuming
// request types.
func WithBalances(balances BalanceReader) Option {
	return func(e *Engine) {
		e.balances = balances
	}
}

func WithPolicies(policies Policies) Option {
	return func(e *Engine) {
		e.policies = policies
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}
