// Package workflow moves leave and overtime requests through their approval
// chain. Every command is a single compare-and-set against the store and
// returns the side effects the caller must apply once it has committed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leaveflow/apperr"
	"leaveflow/authz"
	"leaveflow/chain"
	"leaveflow/models"
	"leaveflow/notify"
)

// SystemDecider is the decider name of requests approved without a chain.
const SystemDecider = "system"

type ChainResolver interface {
	Resolve(ctx context.Context, requesterID uint) (chain.Chain, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, actorID uint, perm authz.Permission, res *authz.Resource) bool
}

type BalanceReader interface {
	Balance(ctx context.Context, ownerID uint, category string) (*models.Balance, error)
}

type Directory interface {
	DisplayName(ctx context.Context, userID uint) (string, error)
}

// Decider identifies who resolved a request. System is set for
// auto-approval, in which case ID is nil.
type Decider struct {
	ID     *uint
	Name   string
	System bool
}

type Result struct {
	Request *models.Request
	Records []*models.ApprovalRecord
	Effects []Effect
}

type Engine struct {
	store     Store
	resolver  ChainResolver
	gate      Authorizer
	directory Directory
	balances  BalanceReader
	policies  Policies
	now       func() time.Time
	log       zerolog.Logger
}

func New(store Store, resolver ChainResolver, gate Authorizer, directory Directory, options ...Option) *Engine {
	ret := &Engine{
		store:     store,
		resolver:  resolver,
		gate:      gate,
		directory: directory,
		policies:  DefaultPolicies(),
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Submit creates a request for requesterID. With an empty approval chain the
// request is approved immediately on behalf of the system.
func (e *Engine) Submit(ctx context.Context, requesterID uint, payload Payload) (*Result, error) {
	if payload == nil {
		return nil, apperr.Validation("kind", "is required")
	}
	req, err := payload.build(requesterID)
	if err != nil {
		return nil, err
	}
	policy, ok := e.policies[req.Type()]
	if !ok {
		return nil, apperr.Validation("category", fmt.Sprintf("unsupported request type %q", req.Type()))
	}
	if !e.gate.Authorize(ctx, requesterID, authz.PermSubmit, nil) {
		return nil, apperr.Unauthorized(fmt.Sprintf("actor %d may not submit requests", requesterID))
	}
	if err := e.checkBalance(ctx, req, policy); err != nil {
		return nil, err
	}
	approvers, err := e.resolver.Resolve(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	req.Version = 1
	if len(approvers) == 0 {
		req.Status = models.StatusApproved
		req.DecidedBySystem = true
		req.DecidedByName = SystemDecider
		req.DecidedAt = &now
		if err := e.store.Create(ctx, req, nil); err != nil {
			return nil, storeError(err, "create request")
		}
		e.log.Info().
			Uint("request_id", req.ID).
			Uint("requester_id", requesterID).
			Str("type", req.Type()).
			Msg("request auto-approved")
		decider := Decider{Name: SystemDecider, System: true}
		return &Result{Request: req, Effects: approvedEffects(req, policy, decider)}, nil
	}

	level := 1
	firstApprover := approvers[0].ID
	req.Status = models.StatusPending
	req.CurrentLevel = &level
	req.CurrentApproverID = &firstApprover
	records := make([]*models.ApprovalRecord, 0, len(approvers))
	for i, approver := range approvers {
		approverID := approver.ID
		records = append(records, &models.ApprovalRecord{
			Level:        i + 1,
			ApproverID:   &approverID,
			ApproverName: approver.Name,
			Status:       models.RecordPending,
		})
	}
	if err := e.store.Create(ctx, req, records); err != nil {
		return nil, storeError(err, "create request")
	}
	e.log.Info().
		Uint("request_id", req.ID).
		Uint("requester_id", requesterID).
		Str("type", req.Type()).
		Int("levels", len(records)).
		Msg("request submitted")
	return &Result{
		Request: req,
		Records: records,
		Effects: []Effect{approvalRequired(req, records[0])},
	}, nil
}

// Approve records actorID's approval of the current level. The last level
// approves the request; earlier levels hand it to the next approver.
func (e *Engine) Approve(ctx context.Context, actorID, requestID uint, comment string) (*Result, error) {
	st, err := e.loadForDecision(ctx, actorID, requestID, authz.PermApprove)
	if err != nil {
		return nil, err
	}
	now := e.now()
	next := st.req.Clone()
	next.Version++
	record := st.decide(models.RecordApproved, actorID, comment, now)

	var effects []Effect
	if *next.CurrentLevel >= len(st.records) {
		policy := e.policies[next.Type()]
		if err := e.checkBalance(ctx, next, policy); err != nil {
			return nil, err
		}
		next.Status = models.StatusApproved
		next.CurrentLevel = nil
		next.CurrentApproverID = nil
		next.DecidedByID = &actorID
		next.DecidedByName = st.deciderName
		next.DecidedAt = &now
		effects = approvedEffects(next, policy, Decider{ID: &actorID, Name: st.deciderName})
	} else {
		level := *next.CurrentLevel + 1
		following := recordAt(st.records, level)
		if following == nil {
			return nil, apperr.Conflict(fmt.Sprintf("request %d has no approval record at level %d", next.ID, level))
		}
		next.CurrentLevel = &level
		next.CurrentApproverID = copyID(following.ApproverID)
		if following.ApproverID != nil {
			effects = append(effects, approvalRequired(next, following))
		}
	}

	if err := e.commit(ctx, st, next, record); err != nil {
		return nil, err
	}
	e.log.Info().
		Uint("request_id", next.ID).
		Uint("actor_id", actorID).
		Int("level", record.Level).
		Str("status", string(next.Status)).
		Msg("approval recorded")
	return &Result{Request: next, Records: st.replace(record), Effects: effects}, nil
}

// Reject ends the request at the current level. Higher levels are never
// evaluated and keep their pending records.
func (e *Engine) Reject(ctx context.Context, actorID, requestID uint, reason string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason", "is required")
	}
	st, err := e.loadForDecision(ctx, actorID, requestID, authz.PermReject)
	if err != nil {
		return nil, err
	}
	now := e.now()
	next := st.req.Clone()
	next.Version++
	record := st.decide(models.RecordRejected, actorID, reason, now)
	next.Status = models.StatusRejected
	next.CurrentLevel = nil
	next.CurrentApproverID = nil
	next.RejectionReason = &reason
	next.DecidedByID = &actorID
	next.DecidedByName = st.deciderName
	next.DecidedAt = &now

	if err := e.commit(ctx, st, next, record); err != nil {
		return nil, err
	}
	e.log.Info().
		Uint("request_id", next.ID).
		Uint("actor_id", actorID).
		Int("level", record.Level).
		Msg("request rejected")
	effects := []Effect{Notify{notify.Notification{
		RequestID:   next.ID,
		RecipientID: next.RequesterID,
		Outcome:     notify.OutcomeRejected,
		DeciderName: st.deciderName,
		Note:        reason,
	}}}
	return &Result{Request: next, Records: st.replace(record), Effects: effects}, nil
}

// Cancel withdraws a pending request. Only the requester may cancel. The
// record at the current level is closed in the same transition; higher
// levels stay pending and are never evaluated.
func (e *Engine) Cancel(ctx context.Context, actorID, requestID uint) (*Result, error) {
	req, records, err := e.store.Load(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "load request")
	}
	if req.RequesterID != actorID || !e.gate.Authorize(ctx, actorID, authz.PermCancel, nil) {
		return nil, apperr.Unauthorized(fmt.Sprintf("only the requester may cancel request %d", requestID))
	}
	if req.Status != models.StatusPending {
		return nil, apperr.Conflict(fmt.Sprintf("request %d is already %s", requestID, req.Status))
	}
	now := e.now()
	name := e.displayName(ctx, actorID)
	next := req.Clone()
	next.Version++
	next.Status = models.StatusCancelled
	next.CurrentLevel = nil
	next.CurrentApproverID = nil
	next.DecidedByID = &actorID
	next.DecidedByName = name
	next.DecidedAt = &now

	var record *models.ApprovalRecord
	if req.CurrentLevel != nil {
		if current := recordAt(records, *req.CurrentLevel); current != nil && current.Status == models.RecordPending {
			record = current.Clone()
			record.Status = models.RecordCancelled
			record.DecidedAt = &now
		}
	}
	err = e.store.Commit(ctx, &Transition{Request: next, ExpectedVersion: req.Version, Record: record})
	if err != nil {
		return nil, storeError(err, "cancel request")
	}
	if record != nil {
		records = replaceRecord(records, record)
	}
	e.log.Info().Uint("request_id", requestID).Uint("actor_id", actorID).Msg("request cancelled")
	effects := []Effect{Notify{notify.Notification{
		RequestID:   next.ID,
		RecipientID: next.RequesterID,
		Outcome:     notify.OutcomeCancelled,
		DeciderName: name,
	}}}
	return &Result{Request: next, Records: records, Effects: effects}, nil
}

// Get returns a request to its requester, any approver in its chain, or an
// actor allowed to view all requests.
func (e *Engine) Get(ctx context.Context, actorID, requestID uint) (*Result, error) {
	req, records, err := e.store.Load(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "load request")
	}
	visible := req.RequesterID == actorID
	for _, record := range records {
		if record.AssignedTo(actorID) {
			visible = true
			break
		}
	}
	if !visible && !e.gate.Authorize(ctx, actorID, authz.PermViewAll, nil) {
		return nil, apperr.Unauthorized(fmt.Sprintf("actor %d may not view request %d", actorID, requestID))
	}
	return &Result{Request: req, Records: records}, nil
}

type decisionState struct {
	req         *models.Request
	records     []*models.ApprovalRecord
	current     *models.ApprovalRecord
	override    bool
	deciderName string
}

func (e *Engine) loadForDecision(ctx context.Context, actorID, requestID uint, perm authz.Permission) (*decisionState, error) {
	req, records, err := e.store.Load(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "load request")
	}
	if req.Status != models.StatusPending || req.CurrentLevel == nil {
		return nil, apperr.Conflict(fmt.Sprintf("request %d is already %s", requestID, req.Status))
	}
	current := recordAt(records, *req.CurrentLevel)
	if current == nil || current.Status != models.RecordPending {
		return nil, apperr.Conflict(fmt.Sprintf("request %d has no pending approval at level %d", requestID, *req.CurrentLevel))
	}

	st := &decisionState{req: req, records: records, current: current}
	resource := &authz.Resource{ApproverID: current.ApproverID}
	if !current.AssignedTo(actorID) {
		if decidedEarlier(records, current.Level, actorID) {
			return nil, apperr.Conflict(fmt.Sprintf("request %d: actor %d already decided an earlier level", requestID, actorID))
		}
		if !e.gate.Authorize(ctx, actorID, perm, resource) || !e.gate.Authorize(ctx, actorID, authz.PermOverride, nil) {
			return nil, apperr.Unauthorized(fmt.Sprintf("actor %d is not the current approver of request %d", actorID, requestID))
		}
		st.override = true
		st.deciderName = e.displayName(ctx, actorID)
		return st, nil
	}
	if !e.gate.Authorize(ctx, actorID, perm, resource) {
		return nil, apperr.Unauthorized(fmt.Sprintf("actor %d may not %s request %d", actorID, perm, requestID))
	}
	st.deciderName = current.ApproverName
	if st.deciderName == "" {
		st.deciderName = e.displayName(ctx, actorID)
	}
	return st, nil
}

// decide returns a copy of the current record resolved by actorID.
func (s *decisionState) decide(status models.RecordStatus, actorID uint, comment string, at time.Time) *models.ApprovalRecord {
	record := s.current.Clone()
	record.Status = status
	record.DecidedAt = &at
	if comment = strings.TrimSpace(comment); comment != "" {
		record.Comment = &comment
	}
	if s.override {
		record.ApproverID = &actorID
		record.ApproverName = s.deciderName
	}
	return record
}

func (s *decisionState) replace(record *models.ApprovalRecord) []*models.ApprovalRecord {
	return replaceRecord(s.records, record)
}

// replaceRecord returns records with the entry at record's level swapped
// for record.
func replaceRecord(records []*models.ApprovalRecord, record *models.ApprovalRecord) []*models.ApprovalRecord {
	ret := make([]*models.ApprovalRecord, len(records))
	for i, r := range records {
		if r.Level == record.Level {
			ret[i] = record
			continue
		}
		ret[i] = r
	}
	return ret
}

func (e *Engine) commit(ctx context.Context, st *decisionState, next *models.Request, record *models.ApprovalRecord) error {
	err := e.store.Commit(ctx, &Transition{
		Request:         next,
		ExpectedVersion: st.req.Version,
		Record:          record,
	})
	if err != nil {
		return storeError(err, "commit decision")
	}
	return nil
}

func (e *Engine) checkBalance(ctx context.Context, req *models.Request, policy Policy) error {
	if !policy.ConsumesBalance() || e.balances == nil {
		return nil
	}
	balance, err := e.balances.Balance(ctx, req.RequesterID, policy.BalanceCategory)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Validation("category", fmt.Sprintf("no %s balance for requester %d", policy.BalanceCategory, req.RequesterID))
	}
	if err != nil {
		return err
	}
	days := Days(req.QuantityHours)
	if balance.Used+days > balance.Total+1e-9 {
		return apperr.Validation("hours", fmt.Sprintf("insufficient %s balance: %.2f days remaining, %.2f requested",
			policy.BalanceCategory, balance.Remaining(), days))
	}
	return nil
}

func (e *Engine) displayName(ctx context.Context, userID uint) string {
	if e.directory != nil {
		name, err := e.directory.DisplayName(ctx, userID)
		if err == nil && name != "" {
			return name
		}
		if err != nil {
			e.log.Warn().Err(err).Uint("user_id", userID).Msg("display name lookup failed")
		}
	}
	return fmt.Sprintf("user %d", userID)
}

func approvedEffects(req *models.Request, policy Policy, decider Decider) []Effect {
	var effects []Effect
	if policy.ConsumesBalance() {
		effects = append(effects, BalanceChange{
			RequestID: req.ID,
			OwnerID:   req.RequesterID,
			Category:  policy.BalanceCategory,
			Days:      Days(req.QuantityHours),
		})
	}
	return append(effects, Notify{notify.Notification{
		RequestID:       req.ID,
		RecipientID:     req.RequesterID,
		Outcome:         notify.OutcomeApproved,
		DeciderName:     decider.Name,
		DeciderIsSystem: decider.System,
	}})
}

func approvalRequired(req *models.Request, record *models.ApprovalRecord) Effect {
	return Notify{notify.Notification{
		RequestID:   req.ID,
		RecipientID: *record.ApproverID,
		Outcome:     notify.OutcomeApprovalRequired,
		Note:        fmt.Sprintf("%s request awaiting level %d approval", req.Type(), record.Level),
	}}
}

func recordAt(records []*models.ApprovalRecord, level int) *models.ApprovalRecord {
	for _, r := range records {
		if r.Level == level {
			return r
		}
	}
	return nil
}

func decidedEarlier(records []*models.ApprovalRecord, level int, actorID uint) bool {
	for _, r := range records {
		if r.Level < level && r.Status == models.RecordApproved && r.AssignedTo(actorID) {
			return true
		}
	}
	return false
}

func copyID(id *uint) *uint {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func storeError(err error, action string) error {
	if errors.Is(err, ErrStale) {
		return apperr.Conflict("request was modified concurrently")
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Dependency(err, action)
}
