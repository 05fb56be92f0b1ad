// Package notify delivers approval outcomes to the people involved.
// Delivery is best-effort; callers decide whether to retry.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeApproved         Outcome = "approved"
	OutcomeRejected         Outcome = "rejected"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeApprovalRequired Outcome = "approval_required"
)

type Notification struct {
	RequestID       uint    `json:"request_id"`
	RecipientID     uint    `json:"recipient_id"`
	Outcome         Outcome `json:"outcome"`
	DeciderName     string  `json:"decider_name,omitempty"`
	DeciderIsSystem bool    `json:"decider_is_system"`
	Note            string  `json:"note,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// LogDispatcher writes notifications to the log. It is used when no message
// broker is configured.
type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.log.Info().
		Uint("request_id", n.RequestID).
		Uint("recipient_id", n.RecipientID).
		Str("outcome", string(n.Outcome)).
		Str("decider", n.DeciderName).
		Bool("system", n.DeciderIsSystem).
		Str("note", n.Note).
		Msg("notification")
	return nil
}
