package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/events"
	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/refresh"
	"github.com/templui/piggybank/internal/units"
	"github.com/templui/piggybank/internal/validation"
)

// Handles used inside submissions.
const (
	handleStable Handle = "stable"
	handleReward Handle = "reward"
	handleBase   Handle = "base"
)

// Result describes a confirmed submission.
type Result struct {
	Kind         refresh.OperationKind `json:"operation"`
	Digest       string                `json:"digest"`
	Steps        []string              `json:"steps"`
	Created      []string              `json:"created,omitempty"`
	Invalidated  []string              `json:"invalidated"`
	Warnings     []string              `json:"warnings,omitempty"`
	Confirmation *ledger.Confirmation  `json:"-"`
}

// Prepared is a validated plan ready for submission.
type Prepared struct {
	Plan     *Plan         `json:"plan"`
	Scope    refresh.Scope `json:"-"`
	Warnings []string      `json:"warnings,omitempty"`

	createdType string
	requestID   string
}

// Composer turns validated operation parameters into one atomic submission per
// operation. Flows run sequentially and never retry a submission.
type Composer struct {
	programs  Programs
	base      units.Converter
	submitter ledger.Submitter
	objects   ledger.ObjectReader
	yield     YieldReader
	index     GoalIndex
	refresher *refresh.Coordinator
	publisher events.Publisher
	now       func() time.Time
}

func New(
	programs Programs,
	base units.Converter,
	submitter ledger.Submitter,
	objects ledger.ObjectReader,
	yield YieldReader,
	index GoalIndex,
	refresher *refresh.Coordinator,
	publisher events.Publisher,
) *Composer {
	return &Composer{
		programs:  programs,
		base:      base,
		submitter: submitter,
		objects:   objects,
		yield:     yield,
		index:     index,
		refresher: refresher,
		publisher: publisher,
		now:       time.Now,
	}
}

// ============================================================================
// CREATE GOAL
// ============================================================================

func (c *Composer) PlanCreateGoals(ctx context.Context, caller string, goals []model.CreateGoalParams) (*Prepared, error) {
	if len(goals) == 0 {
		return nil, apperr.Validation([]string{"at least one goal is required"})
	}

	var violations []string
	for i, g := range goals {
		for _, v := range validation.ValidateCreateGoal(g) {
			if len(goals) > 1 {
				v = fmt.Sprintf("goals[%d]: %s", i, v)
			}
			violations = append(violations, v)
		}
	}
	if len(violations) > 0 {
		return nil, apperr.Validation(violations)
	}

	caller = validation.NormalizeAddress(caller)
	plan := NewPlan(refresh.OpCreateGoal)
	for _, g := range goals {
		target, err := c.smallest(g.TargetAmount)
		if err != nil {
			return nil, err
		}
		plan.Add("createGoal", c.programs.CreateGoal(g.Name, target, g.DurationDays, validation.NormalizeAddress(g.DependentAddress)))
	}

	return &Prepared{
		Plan:        plan,
		Scope:       refresh.Scope{Caller: caller},
		createdType: c.programs.GoalType(),
	}, nil
}

func (c *Composer) CreateGoals(ctx context.Context, caller string, goals []model.CreateGoalParams) (*Result, error) {
	prep, err := c.PlanCreateGoals(ctx, caller, goals)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, caller, prep)
}

// ============================================================================
// DEPOSIT
// ============================================================================

// PlanDeposit orders the steps convertIn, poolDeposit, then harvestRewards and
// splitReward when yield is pending, then recordDeposit. Yield is split before the
// deposit is recorded so a new deposit never shares yield accrued before it.
func (c *Composer) PlanDeposit(ctx context.Context, caller string, p model.DepositParams) (*Prepared, error) {
	if violations := validation.ValidateDeposit(p); len(violations) > 0 {
		return nil, apperr.Validation(violations)
	}
	caller, p.GoalID = validation.NormalizeAddress(caller), validation.NormalizeAddress(p.GoalID)

	amount, err := c.smallest(p.Amount)
	if err != nil {
		return nil, err
	}

	pending, err := c.yield.PendingRewards(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending yield: %w", err)
	}

	plan := NewPlan(refresh.OpDeposit)
	plan.Add("convertIn", c.programs.ConvertIn(amount, handleStable))
	plan.Add("poolDeposit", c.programs.PoolDeposit(handleStable, caller))
	c.addHarvest(plan, pending)
	plan.Add("recordDeposit", c.programs.RecordDeposit(p.GoalID, amount))

	return &Prepared{
		Plan:  plan,
		Scope: refresh.Scope{GoalID: p.GoalID, Caller: caller, RewardsSplit: pending > 0},
	}, nil
}

func (c *Composer) Deposit(ctx context.Context, caller string, p model.DepositParams) (*Result, error) {
	prep, err := c.PlanDeposit(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, caller, prep)
}

// ============================================================================
// WITHDRAWAL REQUEST
// ============================================================================

func (c *Composer) PlanRequestWithdrawal(ctx context.Context, caller string, p model.RequestWithdrawalParams) (*Prepared, error) {
	if violations := validation.ValidateRequestWithdrawal(p); len(violations) > 0 {
		return nil, apperr.Validation(violations)
	}
	caller, p.GoalID = validation.NormalizeAddress(caller), validation.NormalizeAddress(p.GoalID)

	amount, err := c.smallest(p.Amount)
	if err != nil {
		return nil, err
	}

	var (
		warnings []string
		guardian string
	)
	if c.index != nil {
		exists, err := c.index.HasPendingRequest(ctx, caller, p.GoalID)
		switch {
		case err != nil:
			slog.Warn("failed to check pending withdrawal requests", "error", err, "requester", caller, "goal_id", p.GoalID)
			warnings = append(warnings, "could not check for an existing pending request")
		case exists:
			return nil, apperr.ErrConflict.
				WithDetail("reason", "a pending withdrawal request already exists for this goal").
				WithDetail("goal_id", p.GoalID)
		}

		// An unknown guardian refreshes every approval queue instead.
		guardian, err = c.index.GoalGuardian(ctx, p.GoalID)
		if err != nil {
			slog.Warn("failed to look up goal guardian", "error", err, "goal_id", p.GoalID)
			guardian = ""
		}
	}

	plan := NewPlan(refresh.OpRequestWithdrawal)
	plan.Add("requestWithdrawal", c.programs.RequestWithdrawal(p.GoalID, amount, p.Reason))

	return &Prepared{
		Plan: plan,
		Scope: refresh.Scope{
			GoalID:    p.GoalID,
			Caller:    caller,
			Requester: caller,
			Guardian:  validation.NormalizeAddress(guardian),
		},
		Warnings:    warnings,
		createdType: c.programs.RequestType(),
	}, nil
}

func (c *Composer) RequestWithdrawal(ctx context.Context, caller string, p model.RequestWithdrawalParams) (*Result, error) {
	prep, err := c.PlanRequestWithdrawal(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, caller, prep)
}

// ============================================================================
// APPROVAL
// ============================================================================

func (c *Composer) PlanApproveWithdrawal(ctx context.Context, caller string, p model.ApproveWithdrawalParams) (*Prepared, error) {
	if violations := validation.ValidateApproveWithdrawal(p); len(violations) > 0 {
		return nil, apperr.Validation(violations)
	}
	caller = validation.NormalizeAddress(caller)
	p.GoalID, p.RequestID = validation.NormalizeAddress(p.GoalID), validation.NormalizeAddress(p.RequestID)

	req, err := loadRequest(ctx, c.objects, p.RequestID)
	if err != nil {
		return nil, err
	}
	if req.GoalID != p.GoalID {
		return nil, apperr.Validation([]string{"withdrawal request does not belong to this goal"})
	}
	if !req.IsPending() {
		return nil, apperr.ErrConflict.
			WithDetail("reason", "withdrawal request was already decided").
			WithDetail("status", string(req.Outcome))
	}

	plan := NewPlan(refresh.OpApproveWithdrawal)
	plan.Add("approveWithdrawal", c.programs.ApproveWithdrawal(p.RequestID, p.GoalID, *p.Approve, p.Reason))

	return &Prepared{
		Plan:      plan,
		Scope:     refresh.Scope{GoalID: p.GoalID, Caller: caller, Requester: req.Requester, Guardian: caller},
		requestID: p.RequestID,
	}, nil
}

func (c *Composer) ApproveWithdrawal(ctx context.Context, caller string, p model.ApproveWithdrawalParams) (*Result, error) {
	prep, err := c.PlanApproveWithdrawal(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, caller, prep)
}

// ============================================================================
// EXECUTE WITHDRAWAL
// ============================================================================

// PlanExecuteWithdrawal checks identity and approval before composing anything, so
// a wrong caller or an undecided request never reaches the ledger.
func (c *Composer) PlanExecuteWithdrawal(ctx context.Context, caller string, p model.ExecuteWithdrawalParams) (*Prepared, error) {
	if violations := validation.ValidateExecuteWithdrawal(p); len(violations) > 0 {
		return nil, apperr.Validation(violations)
	}
	caller = validation.NormalizeAddress(caller)
	p.GoalID, p.RequestID = validation.NormalizeAddress(p.GoalID), validation.NormalizeAddress(p.RequestID)

	req, err := loadRequest(ctx, c.objects, p.RequestID)
	if err != nil {
		return nil, err
	}

	if req.Requester != caller {
		return nil, apperr.ErrNotAuthorized.
			WithDetail("reason", "only the requester can execute this withdrawal").
			WithDetail("request_id", p.RequestID)
	}

	switch req.Outcome {
	case model.OutcomePending:
		return nil, apperr.ErrNotApproved.WithDetail("request_id", p.RequestID)
	case model.OutcomeRejected:
		return nil, apperr.ErrRequestRejected.WithDetail("request_id", p.RequestID)
	}

	if req.GoalID != p.GoalID {
		return nil, apperr.Validation([]string{"withdrawal request does not belong to this goal"})
	}

	plan := NewPlan(refresh.OpExecuteWithdrawal)
	plan.Add("executeWithdrawal", c.programs.ExecuteWithdrawal(p.GoalID, p.RequestID))
	plan.Add("poolWithdraw", c.programs.PoolWithdraw(req.Amount, handleStable))
	plan.Add("convertOut", c.programs.ConvertOut(handleStable, handleBase))
	plan.Add("transfer", c.programs.Transfer(handleBase, req.Requester))

	return &Prepared{
		Plan:      plan,
		Scope:     refresh.Scope{GoalID: p.GoalID, Caller: caller, Requester: req.Requester},
		requestID: p.RequestID,
	}, nil
}

func (c *Composer) ExecuteWithdrawal(ctx context.Context, caller string, p model.ExecuteWithdrawalParams) (*Result, error) {
	prep, err := c.PlanExecuteWithdrawal(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, caller, prep)
}

// ============================================================================
// CLAIM REWARD
// ============================================================================

func (c *Composer) PlanClaimReward(ctx context.Context, caller string, p model.ClaimRewardParams) (*Prepared, error) {
	if violations := validation.ValidateClaimReward(p); len(violations) > 0 {
		return nil, apperr.Validation(violations)
	}
	caller, p.GoalID = validation.NormalizeAddress(caller), validation.NormalizeAddress(p.GoalID)

	pending, err := c.yield.PendingRewards(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending yield: %w", err)
	}

	plan := NewPlan(refresh.OpClaimReward)
	c.addHarvest(plan, pending)
	plan.Add("claimReward", c.programs.ClaimReward(p.GoalID))

	return &Prepared{
		Plan:  plan,
		Scope: refresh.Scope{GoalID: p.GoalID, Caller: caller, RewardsSplit: pending > 0},
	}, nil
}

func (c *Composer) ClaimReward(ctx context.Context, caller string, p model.ClaimRewardParams) (*Result, error) {
	prep, err := c.PlanClaimReward(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, caller, prep)
}

// ============================================================================
// SHARED
// ============================================================================

// addHarvest appends harvest and split only when there is yield to distribute.
//
// pending is read before submission. Yield that accrues between that read and
// execution is not split by this submission: a deposit recorded in it shares that
// yield at the next split. When the read was zero the submission has no harvest,
// because splitting an empty reward aborts on the ledger.
func (c *Composer) addHarvest(plan *Plan, pending uint64) {
	if pending == 0 {
		return
	}
	plan.Add("harvestRewards", c.programs.HarvestRewards(handleReward))
	plan.Add("splitReward", c.programs.SplitReward(handleReward))
}

func (c *Composer) smallest(amount string) (uint64, error) {
	v, err := c.base.ToSmallestUint(amount)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, apperr.ErrInvalidAmount.
			WithDetail("amount", amount).
			WithDetail("reason", "amount is below the smallest unit")
	}
	return v, nil
}

func (c *Composer) execute(ctx context.Context, caller string, prep *Prepared) (*Result, error) {
	plan := prep.Plan
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	ev := events.SubmissionEvent{
		Operation: string(plan.Kind),
		Caller:    caller,
		GoalID:    prep.Scope.GoalID,
		RequestID: prep.requestID,
		Steps:     plan.StepNames(),
	}

	conf, err := c.submitter.Submit(ctx, plan.Submission(caller))
	if err == nil && (conf == nil || !conf.Succeeded()) {
		err = apperr.LedgerRejected(-1, "submission did not succeed")
	}
	if err == nil && len(conf.ObjectChanges) == 0 {
		err = apperr.ErrNoEffectDetected.WithDetail("digest", conf.Digest)
	}
	if err != nil {
		slog.Error("submission failed", "error", err, "operation", plan.Kind, "caller", caller, "goal_id", prep.Scope.GoalID)
		if conf != nil {
			ev.Digest = conf.Digest
		}
		ev.Error = err.Error()
		c.publish(ctx, events.EventSubmissionFailed, ev)

		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			return nil, fmt.Errorf("failed to submit %s: %w", plan.Kind, err)
		}
		return nil, err
	}

	result := &Result{
		Kind:         plan.Kind,
		Digest:       conf.Digest,
		Steps:        plan.StepNames(),
		Invalidated:  []string{},
		Warnings:     prep.Warnings,
		Confirmation: conf,
	}
	if prep.createdType != "" {
		for _, obj := range conf.CreatedObjects(prep.createdType) {
			result.Created = append(result.Created, obj.ObjectID)
		}
	}

	keys, err := c.refresher.Invalidate(ctx, plan.Kind, prep.Scope)
	if err != nil {
		slog.Error("failed to refresh views", "error", err, "operation", plan.Kind, "digest", conf.Digest)
		result.Warnings = append(result.Warnings, "cached views may be stale")
	} else {
		result.Invalidated = keys
	}

	ev.Digest = conf.Digest
	ev.Invalidated = result.Invalidated
	c.publish(ctx, events.EventSubmissionConfirmed, ev)

	slog.Info("submission confirmed", "operation", plan.Kind, "digest", conf.Digest, "caller", caller, "steps", len(plan.Steps))
	return result, nil
}

func (c *Composer) publish(ctx context.Context, eventType string, ev events.SubmissionEvent) {
	if c.publisher == nil {
		return
	}
	ev.At = c.now().UTC()
	err := events.PublishSubmission(ctx, c.publisher, eventType, ev)
	if err != nil {
		slog.Warn("failed to publish submission event", "error", err, "type", eventType, "operation", ev.Operation)
	}
}
