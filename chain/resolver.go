// Package chain computes the ordered list of approvers a request passes
// through by walking the requester's supervisor-of relation upward.
package chain

import (
	"context"

	"github.com/rs/zerolog"

	"leaveflow/apperr"
)

const DefaultMaxDepth = 10

type Person struct {
	ID   uint
	Name string
}

// SupervisorLookup returns the direct supervisor of userID, or nil when the
// user reports to no one.
type SupervisorLookup interface {
	Supervisor(ctx context.Context, userID uint) (*Person, error)
}

// Chain is an ordered approver list; index 0 is level 1.
type Chain []Person

func (c Chain) IDs() []uint {
	ids := make([]uint, len(c))
	for i, p := range c {
		ids[i] = p.ID
	}
	return ids
}

type Resolver struct {
	lookup   SupervisorLookup
	maxDepth int
	log      zerolog.Logger
}

func NewResolver(lookup SupervisorLookup, maxDepth int, log zerolog.Logger) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{lookup: lookup, maxDepth: maxDepth, log: log}
}

// Resolve returns the approval chain for requesterID. An empty chain means
// nobody has to approve. A supervisor loop ends the walk at the first
// repeated person.
func (r *Resolver) Resolve(ctx context.Context, requesterID uint) (Chain, error) {
	seen := map[uint]bool{requesterID: true}
	result := Chain{}
	current := requesterID
	for len(result) < r.maxDepth {
		next, err := r.lookup.Supervisor(ctx, current)
		if err != nil {
			return nil, apperr.Dependency(err, "resolve supervisor")
		}
		if next == nil {
			return result, nil
		}
		if seen[next.ID] {
			r.log.Warn().
				Uint("requester_id", requesterID).
				Uint("user_id", current).
				Uint("supervisor_id", next.ID).
				Msg("supervisor cycle detected; truncating approval chain")
			return result, nil
		}
		seen[next.ID] = true
		result = append(result, *next)
		current = next.ID
	}
	next, err := r.lookup.Supervisor(ctx, current)
	if err != nil {
		return nil, apperr.Dependency(err, "resolve supervisor")
	}
	if next != nil && !seen[next.ID] {
		r.log.Warn().
			Uint("requester_id", requesterID).
			Int("max_depth", r.maxDepth).
			Msg("approval chain reached max depth")
	}
	return result, nil
}
