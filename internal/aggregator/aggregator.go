package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/model"
)

// ErrLedgerNotFound means the global ledger object could not be read at all. Callers
// must surface it as "not yet available", never as a zero balance.
var ErrLedgerNotFound = errors.New("global ledger not found")

type globalLedgerFields struct {
	Admin                 *string         `json:"admin"`
	DepositBalances       json.RawMessage `json:"deposit_balances"`
	RewardBalances        json.RawMessage `json:"reward_balances"`
	PlatformFeesCollected *string         `json:"platform_fees_collected"`
	TotalGoals            *string         `json:"total_bucky_banks"`
	TotalDeposits         *string         `json:"total_deposits"`
	TotalWithdrawals      *string         `json:"total_withdrawals"`
}

// Decode turns the ledger object's fields into a GlobalLedger. Any shape mismatch is
// a CorruptLedgerEntry.
func Decode(raw json.RawMessage) (*model.GlobalLedger, error) {
	var f globalLedgerFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, corrupt("ledger fields", err)
	}
	if f.Admin == nil || len(f.DepositBalances) == 0 || len(f.RewardBalances) == 0 {
		return nil, corrupt("ledger fields", errors.New("missing admin or balance maps"))
	}

	deposits, err := decodeNested(f.DepositBalances)
	if err != nil {
		return nil, corrupt("deposit_balances", err)
	}
	rewards, err := decodeNested(f.RewardBalances)
	if err != nil {
		return nil, corrupt("reward_balances", err)
	}

	gl := &model.GlobalLedger{
		Admin:           *f.Admin,
		DepositBalances: deposits,
		RewardBalances:  rewards,
	}

	counters := []struct {
		name string
		raw  *string
		dst  *uint64
	}{
		{"total_bucky_banks", f.TotalGoals, &gl.TotalGoals},
		{"total_deposits", f.TotalDeposits, &gl.TotalDeposits},
		{"total_withdrawals", f.TotalWithdrawals, &gl.TotalWithdrawals},
		{"platform_fees_collected", f.PlatformFeesCollected, &gl.PlatformFeesCollected},
	}
	for _, c := range counters {
		if c.raw == nil {
			return nil, corrupt(c.name, errors.New("missing"))
		}
		v, err := ledger.ParseU64(*c.raw)
		if err != nil {
			return nil, corrupt(c.name, err)
		}
		*c.dst = v
	}

	return gl, nil
}

// decodeNested decodes VecMap<address, VecMap<ID, u64>> into address -> goal -> raw amount.
func decodeNested(raw json.RawMessage) (map[string]map[string]string, error) {
	outer, err := ledger.DecodeVecMap(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(outer))
	for _, entry := range outer {
		inner, err := ledger.DecodeStringVecMap(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("depositor %s: %w", entry.Key, err)
		}
		out[entry.Key] = inner
	}
	return out, nil
}

// DeriveUserView flattens one address's deposits and rewards into lists sorted by
// goal id. An address with no entries gets empty lists.
func DeriveUserView(gl *model.GlobalLedger, address string) (model.UserView, error) {
	view := model.UserView{
		Address:  address,
		Deposits: []model.GoalAmount{},
		Rewards:  []model.GoalAmount{},
	}

	var err error
	view.Deposits, err = flatten(gl.DepositBalances[address], "deposit_balances", address)
	if err != nil {
		return model.UserView{}, err
	}
	view.Rewards, err = flatten(gl.RewardBalances[address], "reward_balances", address)
	if err != nil {
		return model.UserView{}, err
	}
	return view, nil
}

func flatten(goals map[string]string, mapName, address string) ([]model.GoalAmount, error) {
	out := make([]model.GoalAmount, 0, len(goals))
	for goalID, raw := range goals {
		amount, err := ledger.ParseU64(raw)
		if err != nil {
			return nil, apperr.ErrCorruptLedgerEntry.WithError(err).
				WithDetail("map", mapName).
				WithDetail("address", address).
				WithDetail("goal_id", goalID)
		}
		out = append(out, model.GoalAmount{GoalID: goalID, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoalID < out[j].GoalID })
	return out, nil
}

// GoalBalance sums every depositor's contribution to one goal.
func GoalBalance(gl *model.GlobalLedger, goalID string) (uint64, error) {
	var total uint64
	for address, goals := range gl.DepositBalances {
		raw, ok := goals[goalID]
		if !ok {
			continue
		}
		amount, err := ledger.ParseU64(raw)
		if err != nil {
			return 0, apperr.ErrCorruptLedgerEntry.WithError(err).
				WithDetail("map", "deposit_balances").
				WithDetail("address", address).
				WithDetail("goal_id", goalID)
		}
		if amount > math.MaxUint64-total {
			return 0, apperr.ErrCorruptLedgerEntry.
				WithError(errors.New("goal balance overflows u64")).
				WithDetail("map", "deposit_balances").
				WithDetail("goal_id", goalID)
		}
		total += amount
	}
	return total, nil
}

// Stats summarizes the ledger counters.
func Stats(gl *model.GlobalLedger) model.LedgerStats {
	return model.LedgerStats{
		TotalGoals:            gl.TotalGoals,
		TotalDeposits:         gl.TotalDeposits,
		TotalWithdrawals:      gl.TotalWithdrawals,
		PlatformFeesCollected: gl.PlatformFeesCollected,
		Depositors:            len(gl.DepositBalances),
	}
}

func corrupt(what string, err error) error {
	return apperr.ErrCorruptLedgerEntry.WithError(err).WithDetail("field", what)
}

// Aggregator reads the global ledger through an injected reader.
type Aggregator struct {
	reader   ledger.ObjectReader
	ledgerID string
}

func New(reader ledger.ObjectReader, ledgerID string) *Aggregator {
	return &Aggregator{reader: reader, ledgerID: ledgerID}
}

func (a *Aggregator) Load(ctx context.Context) (*model.GlobalLedger, error) {
	obj, err := a.reader.GetObject(ctx, a.ledgerID)
	if errors.Is(err, ledger.ErrObjectNotFound) {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read global ledger: %w", err)
	}
	return Decode(obj.Fields)
}

func (a *Aggregator) UserView(ctx context.Context, address string) (model.UserView, error) {
	gl, err := a.Load(ctx)
	if err != nil {
		return model.UserView{}, err
	}
	return DeriveUserView(gl, address)
}

func (a *Aggregator) GoalBalance(ctx context.Context, goalID string) (uint64, error) {
	gl, err := a.Load(ctx)
	if err != nil {
		return 0, err
	}
	return GoalBalance(gl, goalID)
}

func (a *Aggregator) Stats(ctx context.Context) (model.LedgerStats, error) {
	gl, err := a.Load(ctx)
	if err != nil {
		return model.LedgerStats{}, err
	}
	return Stats(gl), nil
}
