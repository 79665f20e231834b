package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/events"
	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/refresh"
	"github.com/templui/piggybank/internal/units"
	"github.com/templui/piggybank/internal/validation"
)

const (
	guardian  = "0xa11ce"
	dependent = "0xc41d"
	goalID    = "0x9001"
	requestID = "0x7001"
)

var norm = validation.NormalizeAddress

type fakeSubmitter struct {
	calls int
	last  ledger.Submission
	conf  *ledger.Confirmation
	err   error
}

func (f *fakeSubmitter) Submit(ctx context.Context, sub ledger.Submission) (*ledger.Confirmation, error) {
	f.calls++
	f.last = sub
	return f.conf, f.err
}

type fakeObjects map[string]*ledger.Object

func (f fakeObjects) GetObject(ctx context.Context, id string) (*ledger.Object, error) {
	for key, obj := range f {
		if norm(key) == norm(id) {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("object %s: %w", id, ledger.ErrObjectNotFound)
}

type fakeYield struct {
	pending uint64
	err     error
}

func (f fakeYield) PendingRewards(ctx context.Context, owner string) (uint64, error) {
	return f.pending, f.err
}

type fakeIndex struct {
	exists   bool
	err      error
	guardian string
	asked    []string
}

func (f *fakeIndex) HasPendingRequest(ctx context.Context, requester, goalID string) (bool, error) {
	f.asked = append(f.asked, requester, goalID)
	return f.exists, f.err
}

func (f *fakeIndex) GoalGuardian(ctx context.Context, goalID string) (string, error) {
	if f.guardian == "" {
		return "", apperr.ErrNotFound
	}
	return f.guardian, nil
}

type recordingPublisher struct {
	types []string
}

func (r *recordingPublisher) Publish(ctx context.Context, eventType string, payload []byte, key string) error {
	r.types = append(r.types, eventType)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

type fixture struct {
	composer  *Composer
	submitter *fakeSubmitter
	objects   fakeObjects
	cache     *refresh.MemoryCache
	published *recordingPublisher
}

func confirmed(changes ...ledger.ObjectChange) *ledger.Confirmation {
	if len(changes) == 0 {
		changes = []ledger.ObjectChange{{Type: "mutated", ObjectID: goalID}}
	}
	return &ledger.Confirmation{
		Digest:        "D1g3st",
		Effects:       ledger.Effects{Status: ledger.ExecutionStatus{Status: "success"}},
		ObjectChanges: changes,
	}
}

func newFixture(t *testing.T, yield YieldReader, index GoalIndex) *fixture {
	t.Helper()
	f := &fixture{
		submitter: &fakeSubmitter{conf: confirmed()},
		objects:   fakeObjects{},
		cache:     refresh.NewMemoryCache(time.Minute),
		published: &recordingPublisher{},
	}
	programs := Programs{
		GoalPackage:    "0xb0",
		GoalModule:     "bucky_bank",
		LedgerID:       "0x1ed",
		YieldPackage:   "0xf1",
		BaseCoinType:   "0x2::sui::SUI",
		StableCoinType: "0xf1::usdb::USDB",
		ShareType:      "0xf1::saving::SAVING",
	}
	f.composer = New(programs, units.New("SUI", 9), f.submitter, f.objects, yield, index,
		refresh.NewCoordinator(f.cache), f.published)
	return f
}

func requestObject(t *testing.T, requester string, status int, amount uint64, goal string) *ledger.Object {
	t.Helper()
	fields, err := json.Marshal(map[string]any{
		"id":            map[string]string{"id": requestID},
		"bucky_bank_id": goal,
		"amount":        fmt.Sprint(amount),
		"reason":        "new bike",
		"requester":     requester,
		"created_at_ms": "1700000000000",
		"status":        status,
	})
	require.NoError(t, err)
	return &ledger.Object{ID: requestID, Fields: fields}
}

func boolPtr(b bool) *bool { return &b }

func TestDepositWithoutPendingYield(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)

	res, err := f.composer.Deposit(context.Background(), guardian, model.DepositParams{GoalID: goalID, Amount: "1.5"})
	require.NoError(t, err)

	assert.Equal(t, []string{"convertIn", "poolDeposit", "recordDeposit"}, res.Steps)
	assert.Equal(t, "D1g3st", res.Digest)
	assert.Equal(t, 1, f.submitter.calls)
	assert.Equal(t, guardian, f.submitter.last.Sender)

	record := f.submitter.last.Commands[2]
	assert.Equal(t, "0xb0::bucky_bank::deposit", record.Target)
	assert.Equal(t, "1500000000", record.Arguments[2].Value)

	assert.Contains(t, res.Invalidated, "goal:"+norm(goalID))
	assert.Contains(t, res.Invalidated, "ledger:users|"+norm(guardian))
	assert.NotContains(t, res.Invalidated, refresh.ViewAllUserLedgers)
	assert.Equal(t, []string{events.EventSubmissionConfirmed}, f.published.types)
}

func TestDepositSplitsPendingYieldFirst(t *testing.T) {
	f := newFixture(t, fakeYield{pending: 42}, nil)

	res, err := f.composer.Deposit(context.Background(), guardian, model.DepositParams{GoalID: goalID, Amount: "2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"convertIn", "poolDeposit", "harvestRewards", "splitReward", "recordDeposit"}, res.Steps)
	assert.Equal(t, "2000000000", f.submitter.last.Commands[4].Arguments[2].Value)
	assert.Contains(t, res.Invalidated, refresh.ViewAllUserLedgers, "a split changes every depositor's rewards")
}

func TestDepositFailsWhenYieldUnreadable(t *testing.T) {
	f := newFixture(t, fakeYield{err: apperr.ErrTransientUnavailable}, nil)

	_, err := f.composer.Deposit(context.Background(), guardian, model.DepositParams{GoalID: goalID, Amount: "2"})
	assert.ErrorIs(t, err, apperr.ErrTransientUnavailable)
	assert.Zero(t, f.submitter.calls)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)

	_, err := f.composer.Deposit(context.Background(), guardian, model.DepositParams{Amount: "-1"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"goal id is required", "amount must be > 0"}, appErr.Details["violations"])

	_, err = f.composer.Deposit(context.Background(), guardian, model.DepositParams{GoalID: goalID, Amount: "0.0000000001"})
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
	assert.Zero(t, f.submitter.calls)
}

func TestNoEffectDetected(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)
	f.submitter.conf = &ledger.Confirmation{
		Digest:  "Empty",
		Effects: ledger.Effects{Status: ledger.ExecutionStatus{Status: "success"}},
	}
	require.NoError(t, f.cache.Set(context.Background(), "goal:"+norm(goalID), []byte("cached")))

	_, err := f.composer.Deposit(context.Background(), guardian, model.DepositParams{GoalID: goalID, Amount: "1"})
	assert.ErrorIs(t, err, apperr.ErrNoEffectDetected)

	_, found, _ := f.cache.Get(context.Background(), "goal:"+norm(goalID))
	assert.True(t, found, "views stay cached when nothing changed")
	assert.Equal(t, []string{events.EventSubmissionFailed}, f.published.types)
}

func TestLedgerRejectedKeepsStepIndex(t *testing.T) {
	f := newFixture(t, fakeYield{pending: 1}, nil)
	f.submitter.conf = nil
	f.submitter.err = apperr.LedgerRejected(3, "MoveAbort in command 3")

	_, err := f.composer.Deposit(context.Background(), guardian, model.DepositParams{GoalID: goalID, Amount: "1"})
	require.ErrorIs(t, err, apperr.ErrLedgerRejected)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 3, appErr.Details["step_index"])
	assert.Equal(t, 1, f.submitter.calls)
}

func TestSubmitTransportErrorIsWrapped(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)
	f.submitter.conf = nil
	f.submitter.err = errors.New("boom")

	_, err := f.composer.ClaimReward(context.Background(), guardian, model.ClaimRewardParams{GoalID: goalID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to submit claim_reward")
}

func TestCreateGoals(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)
	f.submitter.conf = confirmed(
		ledger.ObjectChange{Type: "created", ObjectID: "0xnew1", ObjectType: "0xb0::bucky_bank::BuckyBank"},
		ledger.ObjectChange{Type: "created", ObjectID: "0xnew2", ObjectType: "0xb0::bucky_bank::BuckyBank"},
		ledger.ObjectChange{Type: "mutated", ObjectID: "0x1ed", ObjectType: "0xb0::bucky_bank::BuckyBankStore"},
	)

	res, err := f.composer.CreateGoals(context.Background(), guardian, []model.CreateGoalParams{
		{Name: "Bike Fund", TargetAmount: "10", DurationDays: 30, DependentAddress: dependent},
		{Name: "Camp", TargetAmount: "2.5", DurationDays: 7, DependentAddress: dependent},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"createGoal", "createGoal"}, res.Steps)
	assert.Equal(t, []string{"0xnew1", "0xnew2"}, res.Created)
	assert.Equal(t, "10000000000", f.submitter.last.Commands[0].Arguments[2].Value)
	assert.ElementsMatch(t, []string{"goals:list", "ledger:stats"}, res.Invalidated)
}

func TestCreateGoalsPrefixesViolations(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)

	_, err := f.composer.CreateGoals(context.Background(), guardian, []model.CreateGoalParams{
		{Name: "Bike Fund", TargetAmount: "10", DurationDays: 30, DependentAddress: dependent},
		{Name: "Camp", TargetAmount: "10", DurationDays: 0, DependentAddress: dependent},
	})

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"goals[1]: duration must be at least 1 day"}, appErr.Details["violations"])
	assert.Zero(t, f.submitter.calls)
}

func TestRequestWithdrawal(t *testing.T) {
	index := &fakeIndex{guardian: norm(guardian)}
	f := newFixture(t, fakeYield{}, index)

	res, err := f.composer.RequestWithdrawal(context.Background(), dependent, model.RequestWithdrawalParams{
		GoalID: goalID, Amount: "1", Reason: "new bike",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"requestWithdrawal"}, res.Steps)
	assert.Contains(t, res.Invalidated, "requests:requester:"+norm(dependent))
	assert.Contains(t, res.Invalidated, "requests:pending|"+norm(guardian))
	assert.NotContains(t, res.Invalidated, refresh.ViewAllPending)
	assert.Equal(t, []string{norm(dependent), norm(goalID)}, index.asked)
}

func TestRequestWithdrawalUnknownGuardianDropsEveryQueue(t *testing.T) {
	f := newFixture(t, fakeYield{}, &fakeIndex{})

	res, err := f.composer.RequestWithdrawal(context.Background(), dependent, model.RequestWithdrawalParams{
		GoalID: goalID, Amount: "1", Reason: "new bike",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Invalidated, refresh.ViewAllPending)
}

func TestRequestWithdrawalRefusesDuplicate(t *testing.T) {
	f := newFixture(t, fakeYield{}, &fakeIndex{exists: true})

	_, err := f.composer.RequestWithdrawal(context.Background(), dependent, model.RequestWithdrawalParams{
		GoalID: goalID, Amount: "1", Reason: "new bike",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Zero(t, f.submitter.calls)
}

func TestRequestWithdrawalIndexFailureWarns(t *testing.T) {
	f := newFixture(t, fakeYield{}, &fakeIndex{err: errors.New("db down")})

	res, err := f.composer.RequestWithdrawal(context.Background(), dependent, model.RequestWithdrawalParams{
		GoalID: goalID, Amount: "1", Reason: "new bike",
	})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
}

func TestApproveWithdrawal(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)
	f.objects[requestID] = requestObject(t, dependent, 0, 500, goalID)

	res, err := f.composer.ApproveWithdrawal(context.Background(), guardian, model.ApproveWithdrawalParams{
		RequestID: requestID, GoalID: goalID, Approve: boolPtr(true), Reason: "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"approveWithdrawal"}, res.Steps)
	assert.Contains(t, res.Invalidated, "requests:pending|"+norm(guardian))
	assert.Contains(t, res.Invalidated, "requests:requester:"+norm(dependent))
	assert.Equal(t, true, f.submitter.last.Commands[0].Arguments[2].Value)
}

func TestApproveWithdrawalAlreadyDecided(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)
	f.objects[requestID] = requestObject(t, dependent, 2, 500, goalID)

	_, err := f.composer.ApproveWithdrawal(context.Background(), guardian, model.ApproveWithdrawalParams{
		RequestID: requestID, GoalID: goalID, Approve: boolPtr(true), Reason: "ok",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Zero(t, f.submitter.calls)
}

func TestExecuteWithdrawal(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)
	f.objects[requestID] = requestObject(t, dependent, 1, 500, goalID)

	res, err := f.composer.ExecuteWithdrawal(context.Background(), "0x00000c41d", model.ExecuteWithdrawalParams{
		RequestID: requestID, GoalID: goalID,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"executeWithdrawal", "poolWithdraw", "convertOut", "transfer"}, res.Steps)

	cmds := f.submitter.last.Commands
	assert.Equal(t, "500", cmds[1].Arguments[0].Value)
	assert.Equal(t, ledger.CommandTransferObjects, cmds[3].Kind)
	assert.Equal(t, norm(dependent), cmds[3].Arguments[1].Value)
	assert.Contains(t, res.Invalidated, "goal:"+norm(goalID)+":withdrawals")
}

func TestShortAndFullFormIDsAgree(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)
	f.objects[norm(requestID)] = requestObject(t, norm(dependent), 1, 500, norm(goalID))

	res, err := f.composer.ExecuteWithdrawal(context.Background(), "0xC41D", model.ExecuteWithdrawalParams{
		RequestID: "0x7001", GoalID: "0X9001",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Invalidated, "goal:"+norm(goalID))
	assert.Contains(t, res.Invalidated, "requests:requester:"+norm(dependent))

	f = newFixture(t, fakeYield{}, nil)
	f.objects[requestID] = requestObject(t, dependent, 0, 500, goalID)

	res, err = f.composer.ApproveWithdrawal(context.Background(), guardian, model.ApproveWithdrawalParams{
		RequestID: norm(requestID), GoalID: norm(goalID), Approve: boolPtr(false), Reason: "not yet",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Invalidated, "goal:"+norm(goalID)+":requests")
}

func TestExecuteWithdrawalRefusals(t *testing.T) {
	tests := []struct {
		name   string
		caller string
		status int
		goal   string
		want   error
	}{
		{name: "not requester", caller: guardian, status: 1, goal: goalID, want: apperr.ErrNotAuthorized},
		{name: "pending", caller: dependent, status: 0, goal: goalID, want: apperr.ErrNotApproved},
		{name: "rejected", caller: dependent, status: 2, goal: goalID, want: apperr.ErrRequestRejected},
		{name: "other goal", caller: dependent, status: 1, goal: "0x9002", want: apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fakeYield{}, nil)
			f.objects[requestID] = requestObject(t, dependent, tt.status, 500, tt.goal)

			_, err := f.composer.ExecuteWithdrawal(context.Background(), tt.caller, model.ExecuteWithdrawalParams{
				RequestID: requestID, GoalID: goalID,
			})
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.submitter.calls)
		})
	}
}

func TestExecuteWithdrawalUnknownRequest(t *testing.T) {
	f := newFixture(t, fakeYield{}, nil)

	_, err := f.composer.ExecuteWithdrawal(context.Background(), dependent, model.ExecuteWithdrawalParams{
		RequestID: requestID, GoalID: goalID,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestClaimReward(t *testing.T) {
	f := newFixture(t, fakeYield{pending: 7}, nil)

	res, err := f.composer.ClaimReward(context.Background(), dependent, model.ClaimRewardParams{GoalID: goalID})
	require.NoError(t, err)
	assert.Equal(t, []string{"harvestRewards", "splitReward", "claimReward"}, res.Steps)
	assert.Contains(t, res.Invalidated, refresh.ViewAllUserLedgers)
}

func TestPoolRewards(t *testing.T) {
	objects := fakeObjects{
		"0xpool": {ID: "0xpool", Fields: json.RawMessage(`{
			"pending_rewards": {"type": "0x2::vec_map::VecMap<address, u64>", "fields": {"contents": [
				{"type": "0x2::vec_map::Entry<address, u64>", "fields": {"key": "0x000000000000000000000000000000000000000000000000000000000000c41d", "value": "99"}}
			]}}
		}`)},
	}
	rewards := NewPoolRewards(objects, "0xpool")

	v, err := rewards.PendingRewards(context.Background(), dependent)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), v)

	v, err = rewards.PendingRewards(context.Background(), guardian)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestDecodeRequestStrict(t *testing.T) {
	_, err := DecodeRequest(json.RawMessage(`{"id":{"id":"0x1"},"bucky_bank_id":"0x2","amount":"5","reason":"r","requester":"0x3","created_at_ms":"1"}`))
	assert.Error(t, err)

	_, err = DecodeRequest(json.RawMessage(`{"id":{"id":"0x1"},"bucky_bank_id":"0x2","amount":"5","reason":"r","requester":"0x3","created_at_ms":"1","status":9}`))
	assert.Error(t, err)

	req, err := DecodeRequest(json.RawMessage(`{"id":{"id":"0x1"},"bucky_bank_id":"0x2","amount":"5","reason":"r","requester":"0x3","created_at_ms":"1","status":1,"approved_by":"0x4"}`))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApproved, req.Outcome)
	assert.Equal(t, norm("0x4"), req.ApprovedBy)
	assert.Equal(t, norm("0x2"), req.GoalID)
	assert.Equal(t, norm("0x3"), req.Requester)
}
