// Package authz answers whether an actor may perform an action, combining the
// role model with a short-lived per-actor decision cache.
package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"leaveflow/apperr"
	"leaveflow/models"
)

const DefaultTTL = 5 * time.Minute

// fillTimeout bounds a shared role lookup. The lookup is detached from the
// caller that started it so one cancelled request does not deny its waiters.
const fillTimeout = 5 * time.Second

// RoleProvider resolves an actor's current role.
type RoleProvider interface {
	Role(ctx context.Context, actorID uint) (models.Role, error)
}

// Resource narrows a check to one approval record. An actor named as the
// record's approver may act on it regardless of role.
type Resource struct {
	ApproverID *uint
}

type entry struct {
	allowed   bool
	expiresAt time.Time
}

type Gate struct {
	roles      RoleProvider
	table      map[models.Role]map[Permission]bool
	breakGlass uint
	ttl        time.Duration
	now        func() time.Time
	log        zerolog.Logger

	mu      sync.RWMutex
	entries map[uint]map[Permission]entry
	// epoch changes on every invalidation; fills that started before it
	// are discarded.
	epoch uint64
	group singleflight.Group
}

func New(roles RoleProvider, options ...Option) *Gate {
	ret := &Gate{
		roles:   roles,
		table:   DefaultTable().index(),
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     zerolog.Nop(),
		entries: make(map[uint]map[Permission]entry),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Authorize reports whether actorID holds perm, either through its role or,
// when res is given, by being the named approver of the resource.
// Any failure to resolve the role denies, including the approver rule.
func (g *Gate) Authorize(ctx context.Context, actorID uint, perm Permission, res *Resource) bool {
	if actorID == 0 {
		return false
	}
	allowed, err := g.roleAllows(ctx, actorID, perm)
	if err != nil {
		return false
	}
	if allowed {
		return true
	}
	return res != nil && res.ApproverID != nil && *res.ApproverID == actorID
}

// Check is Authorize returning an authorization error on deny.
func (g *Gate) Check(ctx context.Context, actorID uint, perm Permission, res *Resource) error {
	if g.Authorize(ctx, actorID, perm, res) {
		return nil
	}
	return apperr.Unauthorized(fmt.Sprintf("actor %d is not permitted to %s", actorID, perm))
}

// Invalidate drops every cached decision for actorID. Call it when the
// actor's role changes or the actor logs out.
func (g *Gate) Invalidate(actorID uint) {
	g.mu.Lock()
	delete(g.entries, actorID)
	g.epoch++
	g.mu.Unlock()
}

// Clear drops all cached decisions.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.entries = make(map[uint]map[Permission]entry)
	g.epoch++
	g.mu.Unlock()
	g.log.Info().Msg("authorization cache cleared")
}

func (g *Gate) roleAllows(ctx context.Context, actorID uint, perm Permission) (bool, error) {
	if allowed, ok := g.cached(actorID, perm); ok {
		return allowed, nil
	}
	key := fmt.Sprintf("%d/%s", actorID, perm)
	v, err, _ := g.group.Do(key, func() (any, error) {
		if allowed, ok := g.cached(actorID, perm); ok {
			return allowed, nil
		}
		g.mu.RLock()
		epoch := g.epoch
		g.mu.RUnlock()

		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()
		allowed, err := g.evaluate(fillCtx, actorID, perm)
		if err != nil {
			return false, err
		}
		g.store(epoch, actorID, perm, allowed)
		return allowed, nil
	})
	if err != nil {
		g.log.Warn().Err(err).
			Uint("actor_id", actorID).
			Str("permission", string(perm)).
			Msg("role lookup failed; denying")
		return false, err
	}
	return v.(bool), nil
}

func (g *Gate) evaluate(ctx context.Context, actorID uint, perm Permission) (bool, error) {
	if g.breakGlass != 0 && actorID == g.breakGlass {
		return true, nil
	}
	role, err := g.roles.Role(ctx, actorID)
	if err != nil {
		return false, err
	}
	if role == models.RoleAdmin {
		return true, nil
	}
	return g.table[role][perm], nil
}

func (g *Gate) cached(actorID uint, perm Permission) (bool, bool) {
	g.mu.RLock()
	e, ok := g.entries[actorID][perm]
	g.mu.RUnlock()
	if !ok || !g.now().Before(e.expiresAt) {
		return false, false
	}
	return e.allowed, true
}

func (g *Gate) store(epoch uint64, actorID uint, perm Permission, allowed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if epoch != g.epoch {
		return
	}
	perms, ok := g.entries[actorID]
	if !ok {
		perms = make(map[Permission]entry)
		g.entries[actorID] = perms
	}
	perms[perm] = entry{allowed: allowed, expiresAt: g.now().Add(g.ttl)}
}
