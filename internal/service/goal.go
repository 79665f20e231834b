package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/templui/piggybank/internal/aggregator"
	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/refresh"
	"github.com/templui/piggybank/internal/repository"
	"github.com/templui/piggybank/internal/validation"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// LedgerLoader reads the global ledger. *aggregator.Aggregator implements it.
type LedgerLoader interface {
	Load(ctx context.Context) (*model.GlobalLedger, error)
}

// GoalService serves the indexed history with balances and statuses resolved
// against the global ledger.
type GoalService struct {
	goals       repository.GoalRepository
	deposits    repository.DepositRepository
	withdrawals repository.WithdrawalRepository
	requests    repository.WithdrawalRequestRepository
	ledger      LedgerLoader
	cache       refresh.Cache
	now         func() time.Time
}

func NewGoalService(
	goals repository.GoalRepository,
	deposits repository.DepositRepository,
	withdrawals repository.WithdrawalRepository,
	requests repository.WithdrawalRequestRepository,
	ledger LedgerLoader,
	cache refresh.Cache,
) *GoalService {
	return &GoalService{
		goals:       goals,
		deposits:    deposits,
		withdrawals: withdrawals,
		requests:    requests,
		ledger:      ledger,
		cache:       cache,
		now:         time.Now,
	}
}

// NormalizePage applies the default page and limit and caps the limit.
func NormalizePage(page, limit int) model.PageFilter {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return model.PageFilter{Page: page, Limit: limit}
}

func (s *GoalService) Goals(ctx context.Context, filter model.GoalFilter) (Page[*model.SavingsGoal], error) {
	p := NormalizePage(filter.Page, filter.Limit)
	filter.Page, filter.Limit = p.Page, p.Limit
	filter.GuardianAddress = normalizeOptional(filter.GuardianAddress)
	filter.DependentAddress = normalizeOptional(filter.DependentAddress)

	variant := fmt.Sprintf("parent=%s&child=%s&page=%d&limit=%d", filter.GuardianAddress, filter.DependentAddress, filter.Page, filter.Limit)
	key := refresh.Variant(refresh.ViewGoalList, variant)

	return cached(ctx, s.cache, key, func() (Page[*model.SavingsGoal], error) {
		goals, total, err := s.goals.Goals(filter)
		if err != nil {
			return Page[*model.SavingsGoal]{}, fmt.Errorf("failed to list goals: %w", err)
		}
		if err := s.resolve(ctx, goals...); err != nil {
			return Page[*model.SavingsGoal]{}, err
		}
		return Page[*model.SavingsGoal]{Items: goals, Total: total}, nil
	})
}

func (s *GoalService) Goal(ctx context.Context, goalID string) (*model.SavingsGoal, error) {
	key, err := refresh.View(refresh.ViewGoalDetail, refresh.Scope{GoalID: goalID})
	if err != nil {
		return nil, apperr.Validation([]string{validation.MsgGoalIDRequired})
	}

	return cached(ctx, s.cache, key, func() (*model.SavingsGoal, error) {
		goal, err := s.goals.ByID(goalID)
		if errors.Is(err, repository.ErrGoalNotFound) {
			return nil, apperr.ErrNotFound.WithDetail("goal_id", goalID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get goal: %w", err)
		}
		if err := s.resolve(ctx, goal); err != nil {
			return nil, err
		}
		return goal, nil
	})
}

func (s *GoalService) Deposits(ctx context.Context, goalID string, page model.PageFilter) (Page[*model.Deposit], error) {
	page = NormalizePage(page.Page, page.Limit)
	key, err := pageKey(refresh.ViewGoalDeposits, refresh.Scope{GoalID: goalID}, page)
	if err != nil {
		return Page[*model.Deposit]{}, err
	}

	return cached(ctx, s.cache, key, func() (Page[*model.Deposit], error) {
		deposits, total, err := s.deposits.ByGoal(goalID, page)
		if err != nil {
			return Page[*model.Deposit]{}, fmt.Errorf("failed to list deposits: %w", err)
		}
		return Page[*model.Deposit]{Items: deposits, Total: total}, nil
	})
}

func (s *GoalService) Withdrawals(ctx context.Context, goalID string, page model.PageFilter) (Page[*model.Withdrawal], error) {
	page = NormalizePage(page.Page, page.Limit)
	key, err := pageKey(refresh.ViewGoalWithdrawals, refresh.Scope{GoalID: goalID}, page)
	if err != nil {
		return Page[*model.Withdrawal]{}, err
	}

	return cached(ctx, s.cache, key, func() (Page[*model.Withdrawal], error) {
		withdrawals, total, err := s.withdrawals.ByGoal(goalID, page)
		if err != nil {
			return Page[*model.Withdrawal]{}, fmt.Errorf("failed to list withdrawals: %w", err)
		}
		return Page[*model.Withdrawal]{Items: withdrawals, Total: total}, nil
	})
}

// Requests lists withdrawal requests of one goal or of one requester.
func (s *GoalService) Requests(ctx context.Context, filter model.RequestFilter) (Page[*model.WithdrawalRequest], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Page[*model.WithdrawalRequest]{}, apperr.Validation([]string{"status must be pending, approved or rejected"})
	}
	p := NormalizePage(filter.Page, filter.Limit)
	filter.Page, filter.Limit = p.Page, p.Limit
	filter.Requester = normalizeOptional(filter.Requester)

	var (
		key string
		err error
	)
	variant := fmt.Sprintf("status=%s&page=%d&limit=%d", filter.Status, filter.Page, filter.Limit)
	switch {
	case filter.GoalID != "":
		key, err = refresh.View(refresh.ViewGoalRequests, refresh.Scope{GoalID: filter.GoalID})
		variant += "&requester=" + filter.Requester
	case filter.Requester != "":
		key, err = refresh.View(refresh.ViewRequesterRequests, refresh.Scope{Requester: filter.Requester})
	default:
		return Page[*model.WithdrawalRequest]{}, apperr.Validation([]string{"goal id or requester is required"})
	}
	if err != nil {
		return Page[*model.WithdrawalRequest]{}, apperr.Validation([]string{err.Error()})
	}

	return cached(ctx, s.cache, refresh.Variant(key, variant), func() (Page[*model.WithdrawalRequest], error) {
		requests, total, err := s.requests.Requests(filter)
		if err != nil {
			return Page[*model.WithdrawalRequest]{}, fmt.Errorf("failed to list withdrawal requests: %w", err)
		}
		return Page[*model.WithdrawalRequest]{Items: requests, Total: total}, nil
	})
}

// PendingApprovals lists undecided requests on the guardian's goals.
func (s *GoalService) PendingApprovals(ctx context.Context, guardian string, page model.PageFilter) (Page[*model.WithdrawalRequest], error) {
	guardian = normalizeOptional(guardian)
	page = NormalizePage(page.Page, page.Limit)
	key, err := pageKey(refresh.ViewGuardianPending, refresh.Scope{Guardian: guardian}, page)
	if err != nil {
		return Page[*model.WithdrawalRequest]{}, err
	}

	return cached(ctx, s.cache, key, func() (Page[*model.WithdrawalRequest], error) {
		requests, total, err := s.requests.PendingForGuardian(guardian, page)
		if err != nil {
			return Page[*model.WithdrawalRequest]{}, fmt.Errorf("failed to list pending approvals: %w", err)
		}
		return Page[*model.WithdrawalRequest]{Items: requests, Total: total}, nil
	})
}

// HasPendingRequest lets the composer refuse a second undecided request on a goal.
func (s *GoalService) HasPendingRequest(ctx context.Context, requester, goalID string) (bool, error) {
	return s.requests.HasPending(validation.NormalizeAddress(requester), validation.NormalizeAddress(goalID))
}

// GoalGuardian returns the guardian address of an indexed goal.
func (s *GoalService) GoalGuardian(ctx context.Context, goalID string) (string, error) {
	goal, err := s.goals.ByID(validation.NormalizeAddress(goalID))
	if errors.Is(err, repository.ErrGoalNotFound) {
		return "", apperr.ErrNotFound.WithDetail("goal_id", goalID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get goal: %w", err)
	}
	return goal.GuardianAddress, nil
}

// resolve fills balance and status from one read of the global ledger.
func (s *GoalService) resolve(ctx context.Context, goals ...*model.SavingsGoal) error {
	if len(goals) == 0 {
		return nil
	}

	gl, err := s.ledger.Load(ctx)
	if errors.Is(err, aggregator.ErrLedgerNotFound) {
		return apperr.Wrap(err, apperr.KindTransientUnavailable, "global ledger not yet available")
	}
	if err != nil {
		return err
	}

	now := s.now()
	for _, g := range goals {
		balance, err := aggregator.GoalBalance(gl, g.ID)
		if err != nil {
			return err
		}
		g.Resolve(balance, now)
	}
	return nil
}

func pageKey(tmpl string, scope refresh.Scope, page model.PageFilter) (string, error) {
	key, err := refresh.View(tmpl, scope)
	if err != nil {
		return "", apperr.Validation([]string{err.Error()})
	}
	return refresh.Variant(key, fmt.Sprintf("page=%d&limit=%d", page.Page, page.Limit)), nil
}

func normalizeOptional(address string) string {
	if address == "" {
		return ""
	}
	return validation.NormalizeAddress(address)
}
