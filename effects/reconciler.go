package effects

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"leaveflow/models"
	"leaveflow/notify"
	"leaveflow/workflow"
)

const (
	DefaultInterval  = time.Minute
	DefaultRate      = 5
	DefaultBatchSize = 100
)

// UnsettledSource lists approved requests of balance-consuming categories
// that have no ledger entry yet.
type UnsettledSource interface {
	ListUnsettled(ctx context.Context, categories []string, limit int) ([]models.Request, error)
}

type Report struct {
	Settled     int
	Redelivered int
	Requeued    int
}

// Reconciler brings the ledger in line with approved requests and retries
// undelivered notifications. Request rows are the source of truth; the
// ledger is idempotent on request id, so re-applying is safe.
type Reconciler struct {
	source     UnsettledSource
	balances   BalanceApplier
	dispatcher notify.Dispatcher
	backlog    *Backlog
	policies   workflow.Policies
	limiter    *rate.Limiter
	interval   time.Duration
	batchSize  int
	log        zerolog.Logger
}

func NewReconciler(source UnsettledSource, balances BalanceApplier, dispatcher notify.Dispatcher, backlog *Backlog, options ...Option) *Reconciler {
	ret := &Reconciler{
		source:     source,
		balances:   balances,
		dispatcher: dispatcher,
		backlog:    backlog,
		policies:   workflow.DefaultPolicies(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRate), 1),
		interval:   DefaultInterval,
		batchSize:  DefaultBatchSize,
		log:        zerolog.Nop(),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.backlog == nil {
		ret.backlog = NewBacklog(DefaultBacklogSize)
	}
	return ret
}

// Run calls RunOnce every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Error().Err(err).Msg("reconciliation failed")
				continue
			}
			if report.Settled > 0 || report.Redelivered > 0 || report.Requeued > 0 {
				r.log.Info().
					Int("settled", report.Settled).
					Int("redelivered", report.Redelivered).
					Int("requeued", report.Requeued).
					Msg("reconciliation pass")
			}
		}
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	settled, err := r.settle(ctx)
	report.Settled = settled
	if err != nil {
		return report, err
	}
	report.Redelivered, report.Requeued, err = r.redeliver(ctx)
	return report, err
}

func (r *Reconciler) settle(ctx context.Context) (int, error) {
	requests, err := r.source.ListUnsettled(ctx, r.consumingCategories(), r.batchSize)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, req := range requests {
		policy, ok := r.policies[req.Type()]
		if !ok || !policy.ConsumesBalance() {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return settled, err
		}
		_, applied, err := r.balances.ApplyApprovalEffect(ctx, req.ID, req.RequesterID, policy.BalanceCategory, workflow.Days(req.QuantityHours))
		if err != nil {
			r.log.Warn().Err(err).Uint("request_id", req.ID).Msg("balance settlement failed")
			continue
		}
		if applied {
			settled++
		}
	}
	return settled, nil
}

func (r *Reconciler) redeliver(ctx context.Context) (int, int, error) {
	items := r.backlog.drain()
	delivered, requeued := 0, 0
	for i, item := range items {
		if err := r.limiter.Wait(ctx); err != nil {
			for _, rest := range items[i:] {
				r.backlog.Push(rest.notification, rest.attempts)
			}
			return delivered, requeued, err
		}
		err := r.dispatcher.Dispatch(ctx, item.notification)
		if err == nil {
			delivered++
			continue
		}
		if r.backlog.Push(item.notification, item.attempts+1) {
			requeued++
		} else {
			r.log.Error().Err(err).
				Uint("request_id", item.notification.RequestID).
				Uint("recipient_id", item.notification.RecipientID).
				Str("outcome", string(item.notification.Outcome)).
				Msg("notification dropped after max attempts")
		}
	}
	return delivered, requeued, nil
}

// consumingCategories maps balance-consuming leave policies to the request
// categories they apply to.
func (r *Reconciler) consumingCategories() []string {
	var categories []string
	for tag, policy := range r.policies {
		if !policy.ConsumesBalance() {
			continue
		}
		if category, ok := strings.CutPrefix(tag, string(models.KindLeave)+":"); ok {
			categories = append(categories, category)
		}
	}
	return categories
}
