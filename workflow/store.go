package workflow

import (
	"context"
	"errors"

	"leaveflow/models"
)

// ErrStale is returned by Store.Commit when the request or record changed
// since it was loaded.
var ErrStale = errors.New("stale request version")

// Transition is the new state of a pending request. It applies only if the
// stored request is still pending at ExpectedVersion and Record, when set, is
// still pending.
type Transition struct {
	Request         *models.Request
	ExpectedVersion int
	Record          *models.ApprovalRecord
}

type Store interface {
	// Create persists a new request and its approval records atomically,
	// assigning ids.
	Create(ctx context.Context, req *models.Request, records []*models.ApprovalRecord) error
	// Load returns the request and its records ordered by level.
	Load(ctx context.Context, id uint) (*models.Request, []*models.ApprovalRecord, error)
	Commit(ctx context.Context, t *Transition) error
}
