package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaveflow/apperr"
	"leaveflow/authz"
	"leaveflow/chain"
	"leaveflow/models"
	"leaveflow/notify"
)

const (
	admin     uint = 1
	requester uint = 10
	m1        uint = 20
	m2        uint = 30
	m3        uint = 40
	employee  uint = 50
)

type org struct {
	mu          sync.Mutex
	names       map[uint]string
	roles       map[uint]models.Role
	supervisors map[uint]uint
	roleErr     error
}

func newOrg() *org {
	return &org{
		names: map[uint]string{admin: "Admin", requester: "Rita", m1: "Mark", m2: "Mia", m3: "Noor", employee: "Eli"},
		roles: map[uint]models.Role{
			admin:     models.RoleAdmin,
			requester: models.RoleEmployee,
			m1:        models.RoleSupervisor,
			m2:        models.RoleSupervisor,
			m3:        models.RoleSupervisor,
			employee:  models.RoleEmployee,
		},
		supervisors: map[uint]uint{requester: m1, m1: m2},
	}
}

func (o *org) Role(_ context.Context, actorID uint) (models.Role, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.roleErr != nil {
		return "", o.roleErr
	}
	role, ok := o.roles[actorID]
	if !ok {
		return "", apperr.NotFound("user", actorID)
	}
	return role, nil
}

func (o *org) Supervisor(_ context.Context, userID uint) (*chain.Person, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sup, ok := o.supervisors[userID]
	if !ok {
		return nil, nil
	}
	return &chain.Person{ID: sup, Name: o.names[sup]}, nil
}

func (o *org) DisplayName(_ context.Context, userID uint) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.names[userID], nil
}

type balances map[string]*models.Balance

func (b balances) Balance(_ context.Context, ownerID uint, category string) (*models.Balance, error) {
	balance, ok := b[category]
	if !ok || balance.OwnerID != ownerID {
		return nil, apperr.NotFound("balance", category)
	}
	c := *balance
	return &c, nil
}

type fixture struct {
	org      *org
	store    *memStore
	balances balances
	engine   *Engine
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		org:      newOrg(),
		store:    newMemStore(),
		balances: balances{"annual": {OwnerID: requester, Category: "annual", Total: 20}},
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	gate := authz.New(f.org)
	resolver := chain.NewResolver(f.org, 5, zerolog.Nop())
	f.engine = New(f.store, resolver, gate, f.org,
		WithBalances(f.balances),
		WithClock(func() time.Time { return f.now }))
	return f
}

func annualLeave(hours float64) LeavePayload {
	start := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	return LeavePayload{Category: "annual", Start: start, End: start, Hours: hours, Reason: "family trip"}
}

// assertConsistent checks that a request is pending exactly when one record
// is pending at its current level.
func assertConsistent(t *testing.T, req *models.Request, records []*models.ApprovalRecord) {
	t.Helper()
	if req.Status == models.StatusPending {
		require.NotNil(t, req.CurrentLevel)
		require.NotNil(t, req.CurrentApproverID)
		for _, r := range records {
			switch {
			case r.Level < *req.CurrentLevel:
				assert.Equal(t, models.RecordApproved, r.Status)
			default:
				assert.Equal(t, models.RecordPending, r.Status)
			}
		}
		current := recordAt(records, *req.CurrentLevel)
		require.NotNil(t, current)
		assert.True(t, current.AssignedTo(*req.CurrentApproverID))
		return
	}
	assert.Nil(t, req.CurrentLevel)
	assert.Nil(t, req.CurrentApproverID)
}

func notifications(effects []Effect) []notify.Notification {
	var ret []notify.Notification
	for _, e := range effects {
		if n, ok := e.(Notify); ok {
			ret = append(ret, n.Notification)
		}
	}
	return ret
}

func balanceChanges(effects []Effect) []BalanceChange {
	var ret []BalanceChange
	for _, e := range effects {
		if b, ok := e.(BalanceChange); ok {
			ret = append(ret, b)
		}
	}
	return ret
}

func TestTwoLevelApproval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
	require.NoError(t, err)
	req := submitted.Request
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, 1, *req.CurrentLevel)
	assert.Equal(t, m1, *req.CurrentApproverID)
	require.Len(t, submitted.Records, 2)
	assertConsistent(t, req, submitted.Records)
	assert.Equal(t, []notify.Notification{{
		RequestID: req.ID, RecipientID: m1, Outcome: notify.OutcomeApprovalRequired,
		Note: "leave:annual request awaiting level 1 approval",
	}}, notifications(submitted.Effects))

	first, err := f.engine.Approve(ctx, m1, req.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, first.Request.Status)
	assert.Equal(t, 2, *first.Request.CurrentLevel)
	assert.Equal(t, m2, *first.Request.CurrentApproverID)
	assert.Empty(t, balanceChanges(first.Effects))
	require.Len(t, notifications(first.Effects), 1)
	assert.Equal(t, m2, notifications(first.Effects)[0].RecipientID)
	assertConsistent(t, first.Request, first.Records)

	final, err := f.engine.Approve(ctx, m2, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, final.Request.Status)
	assert.Equal(t, m2, *final.Request.DecidedByID)
	assert.Equal(t, "Mia", final.Request.DecidedByName)
	assertConsistent(t, final.Request, final.Records)
	for _, r := range final.Records {
		assert.Equal(t, models.RecordApproved, r.Status)
		assert.NotNil(t, r.DecidedAt)
	}
	assert.Equal(t, []BalanceChange{{RequestID: req.ID, OwnerID: requester, Category: "annual", Days: 1.0}}, balanceChanges(final.Effects))
	assert.Equal(t, []notify.Notification{{
		RequestID: req.ID, RecipientID: requester, Outcome: notify.OutcomeApproved, DeciderName: "Mia",
	}}, notifications(final.Effects))

	stored, records, err := f.store.Load(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, 3, stored.Version)
	assertConsistent(t, stored, records)
}

func TestAutoApproval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.balances["annual"].OwnerID = m2

	result, err := f.engine.Submit(ctx, m2, annualLeave(16))
	require.NoError(t, err)
	req := result.Request
	assert.Equal(t, models.StatusApproved, req.Status)
	assert.True(t, req.DecidedBySystem)
	assert.Equal(t, SystemDecider, req.DecidedByName)
	assert.Nil(t, req.DecidedByID)
	assert.Empty(t, result.Records)
	assertConsistent(t, req, result.Records)

	assert.Equal(t, []BalanceChange{{RequestID: req.ID, OwnerID: m2, Category: "annual", Days: 2.0}}, balanceChanges(result.Effects))
	assert.Equal(t, []notify.Notification{{
		RequestID: req.ID, RecipientID: m2, Outcome: notify.OutcomeApproved,
		DeciderName: SystemDecider, DeciderIsSystem: true,
	}}, notifications(result.Effects))

	_, records, err := f.store.Load(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRejectShortCircuits(t *testing.T) {
	f := newFixture()
	f.org.supervisors[m2] = m3
	ctx := context.Background()

	submitted, err := f.engine.Submit(ctx, requester, OvertimePayload{
		Start: time.Date(2026, 4, 6, 18, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 4, 6, 21, 0, 0, 0, time.UTC),
		Hours: 3,
	})
	require.NoError(t, err)
	require.Len(t, submitted.Records, 3)

	rejected, err := f.engine.Reject(ctx, m1, submitted.Request.ID, "insufficient notice")
	require.NoError(t, err)
	req := rejected.Request
	assert.Equal(t, models.StatusRejected, req.Status)
	require.NotNil(t, req.RejectionReason)
	assert.Equal(t, "insufficient notice", *req.RejectionReason)
	assertConsistent(t, req, rejected.Records)

	assert.Equal(t, models.RecordRejected, rejected.Records[0].Status)
	assert.Equal(t, "insufficient notice", *rejected.Records[0].Comment)
	assert.Equal(t, models.RecordPending, rejected.Records[1].Status)
	assert.Equal(t, models.RecordPending, rejected.Records[2].Status)
	assert.Nil(t, rejected.Records[1].DecidedAt)

	assert.Empty(t, balanceChanges(rejected.Effects))
	assert.Equal(t, []notify.Notification{{
		RequestID: req.ID, RecipientID: requester, Outcome: notify.OutcomeRejected,
		DeciderName: "Mark", Note: "insufficient notice",
	}}, notifications(rejected.Effects))

	_, err = f.engine.Approve(ctx, m2, req.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestConcurrentApprove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
	require.NoError(t, err)

	var loaded sync.WaitGroup
	loaded.Add(2)
	f.store.afterLoad = func() {
		loaded.Done()
		loaded.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Approve(ctx, m1, submitted.Request.ID, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), err)
	}
	assert.Equal(t, 1, succeeded)

	f.store.afterLoad = nil
	req, records, err := f.store.Load(ctx, submitted.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *req.CurrentLevel)
	assertConsistent(t, req, records)
}

func TestRepeatedApproveAfterAdvance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, m1, submitted.Request.ID, "")
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, m1, submitted.Request.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestApproveAuthorization(t *testing.T) {
	tests := []struct {
		name  string
		actor uint
		kind  apperr.Kind
	}{
		{name: "plain employee", actor: employee, kind: apperr.KindUnauthorized},
		{name: "requester", actor: requester, kind: apperr.KindUnauthorized},
		{name: "supervisor of a later level", actor: m2, kind: apperr.KindUnauthorized},
		{name: "unknown actor", actor: 999, kind: apperr.KindUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
			require.NoError(t, err)

			_, err = f.engine.Approve(ctx, tc.actor, submitted.Request.ID, "")
			assert.True(t, apperr.Is(err, tc.kind), err)
			_, err = f.engine.Reject(ctx, tc.actor, submitted.Request.ID, "no")
			assert.True(t, apperr.Is(err, tc.kind), err)

			req, records, err := f.store.Load(ctx, submitted.Request.ID)
			require.NoError(t, err)
			assert.Equal(t, submitted.Request.Version, req.Version)
			assert.Equal(t, 1, *req.CurrentLevel)
			assertConsistent(t, req, records)
		})
	}
}

func TestAdminOverride(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
	require.NoError(t, err)

	result, err := f.engine.Approve(ctx, admin, submitted.Request.ID, "covering for Mark")
	require.NoError(t, err)
	assert.Equal(t, 2, *result.Request.CurrentLevel)
	assert.True(t, result.Records[0].AssignedTo(admin))
	assert.Equal(t, "Admin", result.Records[0].ApproverName)
	assert.Equal(t, "covering for Mark", *result.Records[0].Comment)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
	require.NoError(t, err)

	_, err = f.engine.Reject(ctx, m1, submitted.Request.ID, "   ")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "reason", appErr.Field)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
	require.NoError(t, err)
	id := submitted.Request.ID

	_, err = f.engine.Cancel(ctx, m1, id)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	result, err := f.engine.Cancel(ctx, requester, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, result.Request.Status)
	assertConsistent(t, result.Request, result.Records)
	assert.Empty(t, balanceChanges(result.Effects))
	assert.Equal(t, []notify.Notification{{
		RequestID: id, RecipientID: requester, Outcome: notify.OutcomeCancelled, DeciderName: "Rita",
	}}, notifications(result.Effects))
	require.Len(t, result.Records, 2)
	assert.Equal(t, models.RecordCancelled, result.Records[0].Status)
	assert.NotNil(t, result.Records[0].DecidedAt)
	assert.Equal(t, models.RecordPending, result.Records[1].Status)

	_, stored, err := f.store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, models.RecordCancelled, stored[0].Status)
	assert.Equal(t, models.RecordPending, stored[1].Status)

	_, err = f.engine.Cancel(ctx, requester, id)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = f.engine.Approve(ctx, m1, id, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestSubmitValidation(t *testing.T) {
	day := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		payload Payload
		field   string
	}{
		{name: "nil payload", payload: nil, field: "kind"},
		{name: "missing category", payload: LeavePayload{Start: day, End: day, Hours: 8}, field: "category"},
		{name: "unknown category", payload: LeavePayload{Category: "vacation", Start: day, End: day, Hours: 8}, field: "category"},
		{name: "end before start", payload: LeavePayload{Category: "sick", Start: day, End: day.AddDate(0, 0, -1), Hours: 8}, field: "end"},
		{name: "zero hours", payload: LeavePayload{Category: "sick", Start: day, End: day}, field: "hours"},
		{name: "insufficient balance", payload: annualLeave(8 * 21), field: "hours"},
		{name: "overtime across days", payload: OvertimePayload{Start: day.Add(20 * time.Hour), End: day.Add(26 * time.Hour), Hours: 6}, field: "end"},
		{name: "overtime too long", payload: OvertimePayload{Start: day, End: day.Add(23 * time.Hour), Hours: 25}, field: "hours"},
		{name: "overtime missing start", payload: OvertimePayload{End: day, Hours: 1}, field: "start"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.engine.Submit(context.Background(), requester, tc.payload)
			require.Error(t, err)
			var appErr *apperr.Error
			require.True(t, errors.As(err, &appErr), err)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			assert.Equal(t, tc.field, appErr.Field)
		})
	}
}

func TestFinalApprovalRechecksBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	submitted, err := f.engine.Submit(ctx, requester, annualLeave(16))
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, m1, submitted.Request.ID, "")
	require.NoError(t, err)

	f.balances["annual"].Used = 19.5
	_, err = f.engine.Approve(ctx, m2, submitted.Request.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	req, _, err := f.store.Load(ctx, submitted.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)
}

func TestSubmitFailsClosed(t *testing.T) {
	f := newFixture()
	f.org.roleErr = errors.New("identity provider unavailable")
	_, err := f.engine.Submit(context.Background(), requester, annualLeave(8))
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestApproveFailsClosedForNamedApprover(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
	require.NoError(t, err)
	id := submitted.Request.ID

	f.org.mu.Lock()
	f.org.roleErr = errors.New("identity provider unavailable")
	f.org.mu.Unlock()
	_, err = f.engine.Approve(ctx, m1, id, "")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), err)

	req, records, err := f.store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, submitted.Request.Version, req.Version)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, 1, *req.CurrentLevel)
	assert.Equal(t, models.RecordPending, recordAt(records, 1).Status)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture()
	f.org.roles[employee] = models.RoleEmployee
	f.org.roles[60] = models.RoleHR
	ctx := context.Background()
	submitted, err := f.engine.Submit(ctx, requester, annualLeave(8))
	require.NoError(t, err)

	for _, actor := range []uint{requester, m1, m2, admin, 60} {
		_, err := f.engine.Get(ctx, actor, submitted.Request.ID)
		assert.NoError(t, err, actor)
	}
	_, err = f.engine.Get(ctx, employee, submitted.Request.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = f.engine.Get(ctx, requester, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
