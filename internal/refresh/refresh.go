package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

type OperationKind string

const (
	OpCreateGoal        OperationKind = "create_goal"
	OpDeposit           OperationKind = "deposit"
	OpRequestWithdrawal OperationKind = "request_withdrawal"
	OpApproveWithdrawal OperationKind = "approve_withdrawal"
	OpExecuteWithdrawal OperationKind = "execute_withdrawal"
	OpClaimReward       OperationKind = "claim_reward"
)

// View key templates. {goal}, {caller}, {requester} and {guardian} are filled from Scope.
const (
	ViewGoalList          = "goals:list"
	ViewGoalDetail        = "goal:{goal}"
	ViewGoalDeposits      = "goal:{goal}:deposits"
	ViewGoalWithdrawals   = "goal:{goal}:withdrawals"
	ViewGoalRequests      = "goal:{goal}:requests"
	ViewRequesterRequests = "requests:requester:{requester}"
	ViewGuardianPending   = ViewAllPending + variantSep + "{guardian}"
	ViewUserLedger        = ViewAllUserLedgers + variantSep + "{caller}"
	ViewLedgerStats       = "ledger:stats"

	// Per-address views are variants of these roots, so dropping a root drops
	// the view of every address.
	ViewAllPending     = "requests:pending"
	ViewAllUserLedgers = "ledger:users"
)

var affectedViews = map[OperationKind][]string{
	OpCreateGoal: {
		ViewGoalList,
		ViewLedgerStats,
	},
	OpDeposit: {
		ViewGoalList,
		ViewGoalDetail,
		ViewGoalDeposits,
		ViewUserLedger,
		ViewLedgerStats,
	},
	OpRequestWithdrawal: {
		ViewGoalDetail,
		ViewGoalRequests,
		ViewRequesterRequests,
		ViewGuardianPending,
	},
	OpApproveWithdrawal: {
		ViewGoalDetail,
		ViewGoalRequests,
		ViewGuardianPending,
		ViewRequesterRequests,
	},
	OpExecuteWithdrawal: {
		ViewGoalList,
		ViewGoalDetail,
		ViewGoalDeposits,
		ViewGoalWithdrawals,
		ViewGoalRequests,
		ViewRequesterRequests,
		ViewUserLedger,
		ViewLedgerStats,
	},
	OpClaimReward: {
		ViewGoalDetail,
		ViewUserLedger,
		ViewLedgerStats,
	},
}

// splitViews are added to any operation whose submission split pool yield. A split
// changes the rewards of every depositor, not only the caller's.
var splitViews = []string{ViewAllUserLedgers}

// broaderViews is dropped in place of a template whose placeholder has no value,
// e.g. the guardian of a goal the index has not seen yet.
var broaderViews = map[string]string{
	ViewGuardianPending: ViewAllPending,
}

// Kinds lists every declared operation kind in a stable order.
func Kinds() []OperationKind {
	kinds := make([]OperationKind, 0, len(affectedViews))
	for k := range affectedViews {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Templates returns the declared view templates for kind.
func Templates(kind OperationKind) ([]string, bool) {
	t, ok := affectedViews[kind]
	return t, ok
}

// Scope supplies the identifiers a confirmed operation touched.
type Scope struct {
	GoalID    string
	Caller    string
	Requester string
	Guardian  string

	// RewardsSplit is set when the submission included a yield split.
	RewardsSplit bool
}

// Keys expands the declared templates for kind. An undeclared kind or a template
// whose placeholder has no value in scope is an error, unless the template has a
// declared broader view.
func Keys(kind OperationKind, scope Scope) ([]string, error) {
	templates, ok := affectedViews[kind]
	if !ok {
		return nil, fmt.Errorf("no refresh mapping declared for operation %q", kind)
	}

	keys := make([]string, 0, len(templates)+len(splitViews))
	for _, tmpl := range templates {
		key, err := expand(tmpl, scope)
		if err != nil {
			broader, ok := broaderViews[tmpl]
			if !ok {
				return nil, fmt.Errorf("operation %q: %w", kind, err)
			}
			key = broader
		}
		keys = append(keys, key)
	}
	if scope.RewardsSplit {
		keys = append(keys, splitViews...)
	}
	return keys, nil
}

// View expands one template for the read side, e.g. View(ViewGoalDetail, Scope{GoalID: id}).
func View(tmpl string, scope Scope) (string, error) {
	return expand(tmpl, scope)
}

func expand(tmpl string, scope Scope) (string, error) {
	replacements := map[string]string{
		"{goal}":      scope.GoalID,
		"{caller}":    scope.Caller,
		"{requester}": scope.Requester,
		"{guardian}":  scope.Guardian,
	}

	key := tmpl
	for placeholder, value := range replacements {
		if !strings.Contains(key, placeholder) {
			continue
		}
		if value == "" {
			return "", fmt.Errorf("view %q needs %s", tmpl, placeholder)
		}
		key = strings.ReplaceAll(key, placeholder, value)
	}
	return key, nil
}

// Cache is the store for derived views.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type Coordinator struct {
	cache Cache
}

func NewCoordinator(cache Cache) *Coordinator {
	return &Coordinator{cache: cache}
}

// Invalidate drops exactly the views kind declares for scope and returns their keys.
func (c *Coordinator) Invalidate(ctx context.Context, kind OperationKind, scope Scope) ([]string, error) {
	keys, err := Keys(kind, scope)
	if err != nil {
		return nil, err
	}

	err = c.cache.Delete(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to invalidate views: %w", err)
	}

	slog.Debug("views invalidated", "operation", kind, "keys", keys)
	return keys, nil
}
