// Package effects applies the side effects declared by workflow transitions
// and repairs the ones that failed.
package effects

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"leaveflow/models"
	"leaveflow/notify"
	"leaveflow/workflow"
)

type BalanceApplier interface {
	ApplyApprovalEffect(ctx context.Context, requestID, ownerID uint, category string, days float64) (*models.Balance, bool, error)
}

// Executor runs effects after their transition has been committed. A
// failing effect never undoes the decision: ledger failures are left to the
// Reconciler and failed notifications go to the backlog.
type Executor struct {
	balances   BalanceApplier
	dispatcher notify.Dispatcher
	backlog    *Backlog
	log        zerolog.Logger
}

func NewExecutor(balances BalanceApplier, dispatcher notify.Dispatcher, backlog *Backlog, log zerolog.Logger) *Executor {
	if backlog == nil {
		backlog = NewBacklog(DefaultBacklogSize)
	}
	return &Executor{
		balances:   balances,
		dispatcher: dispatcher,
		backlog:    backlog,
		log:        log,
	}
}

func (x *Executor) Execute(ctx context.Context, effects []workflow.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case workflow.BalanceChange:
			x.applyBalance(ctx, e)
		case workflow.Notify:
			x.deliver(ctx, e.Notification, 0)
		default:
			x.log.Error().Str("effect", fmt.Sprintf("%T", effect)).Msg("unknown effect")
		}
	}
}

func (x *Executor) applyBalance(ctx context.Context, change workflow.BalanceChange) {
	balance, applied, err := x.balances.ApplyApprovalEffect(ctx, change.RequestID, change.OwnerID, change.Category, change.Days)
	if err != nil {
		x.log.Error().Err(err).
			Uint("request_id", change.RequestID).
			Uint("owner_id", change.OwnerID).
			Str("category", change.Category).
			Msg("balance change failed, left for reconciliation")
		return
	}
	if applied {
		x.log.Info().
			Uint("request_id", change.RequestID).
			Str("category", change.Category).
			Float64("days", change.Days).
			Float64("remaining", balance.Remaining()).
			Msg("balance charged")
	}
}

// deliver dispatches n, which has already failed attempts times.
func (x *Executor) deliver(ctx context.Context, n notify.Notification, attempts int) bool {
	err := x.dispatcher.Dispatch(ctx, n)
	if err == nil {
		return true
	}
	attempts++
	queued := x.backlog.Push(n, attempts)
	x.log.Warn().Err(err).
		Uint("request_id", n.RequestID).
		Uint("recipient_id", n.RecipientID).
		Str("outcome", string(n.Outcome)).
		Int("attempts", attempts).
		Bool("queued", queued).
		Msg("notification delivery failed")
	return false
}
