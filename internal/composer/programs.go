package composer

import (
	"github.com/templui/piggybank/internal/ledger"
)

// Struct names in the goal-tracking program.
const (
	GoalStructName    = "BuckyBank"
	RequestStructName = "WithdrawalRequest"
)

// Programs builds commands for the goal-tracking program and the yield pool.
// Coin inputs given by amount are resolved from the sender's wallet by the gateway.
type Programs struct {
	GoalPackage    string
	GoalModule     string
	LedgerID       string
	YieldPackage   string
	BaseCoinType   string
	StableCoinType string
	ShareType      string
}

func (p Programs) goalTarget(fn string) string {
	return p.GoalPackage + "::" + p.GoalModule + "::" + fn
}

func (p Programs) yieldTarget(module, fn string) string {
	return p.YieldPackage + "::" + module + "::" + fn
}

// GoalType is the fully qualified type of a savings goal object.
func (p Programs) GoalType() string {
	return p.goalTarget(GoalStructName)
}

func (p Programs) RequestType() string {
	return p.goalTarget(RequestStructName)
}

func moveCall(target string, typeArgs []string, result Handle, args ...ledger.Arg) ledger.Command {
	return ledger.Command{
		Kind:          ledger.CommandMoveCall,
		Target:        target,
		TypeArguments: typeArgs,
		Arguments:     args,
		Result:        string(result),
	}
}

func (p Programs) CreateGoal(name string, target uint64, durationDays int, dependent string) ledger.Command {
	return moveCall(p.goalTarget("create_bucky_bank"), nil, "",
		ledger.ObjectArg(p.LedgerID),
		ledger.String(name),
		ledger.U64(target),
		ledger.U64(uint64(durationDays)),
		ledger.Address(dependent),
		ledger.ObjectArg(ledger.ClockObjectID),
	)
}

// ConvertIn swaps amount of the base asset into the stable unit.
func (p Programs) ConvertIn(amount uint64, out Handle) ledger.Command {
	return moveCall(p.yieldTarget("psm", "swap_in"), []string{p.BaseCoinType, p.StableCoinType}, out,
		ledger.U64(amount),
	)
}

func (p Programs) PoolDeposit(stable Handle, owner string) ledger.Command {
	return moveCall(p.yieldTarget("saving", "deposit"), []string{p.ShareType}, "",
		ledger.Result(string(stable)),
		ledger.Address(owner),
	)
}

func (p Programs) HarvestRewards(out Handle) ledger.Command {
	return moveCall(p.yieldTarget("saving", "claim_rewards"), []string{p.ShareType}, out)
}

// SplitReward distributes a harvested reward across goals by deposit weight.
func (p Programs) SplitReward(reward Handle) ledger.Command {
	return moveCall(p.goalTarget("split_reward"), nil, "",
		ledger.ObjectArg(p.LedgerID),
		ledger.Result(string(reward)),
	)
}

func (p Programs) RecordDeposit(goalID string, amount uint64) ledger.Command {
	return moveCall(p.goalTarget("deposit"), nil, "",
		ledger.ObjectArg(p.LedgerID),
		ledger.ObjectArg(goalID),
		ledger.U64(amount),
		ledger.ObjectArg(ledger.ClockObjectID),
	)
}

func (p Programs) RequestWithdrawal(goalID string, amount uint64, reason string) ledger.Command {
	return moveCall(p.goalTarget("request_withdrawal"), nil, "",
		ledger.ObjectArg(goalID),
		ledger.U64(amount),
		ledger.String(reason),
		ledger.ObjectArg(ledger.ClockObjectID),
	)
}

func (p Programs) ApproveWithdrawal(requestID, goalID string, approve bool, reason string) ledger.Command {
	return moveCall(p.goalTarget("approve_withdrawal"), nil, "",
		ledger.ObjectArg(requestID),
		ledger.ObjectArg(goalID),
		ledger.Bool(approve),
		ledger.String(reason),
		ledger.ObjectArg(ledger.ClockObjectID),
	)
}

func (p Programs) ExecuteWithdrawal(goalID, requestID string) ledger.Command {
	return moveCall(p.goalTarget("withdraw"), nil, "",
		ledger.ObjectArg(goalID),
		ledger.ObjectArg(requestID),
		ledger.ObjectArg(ledger.ClockObjectID),
	)
}

func (p Programs) PoolWithdraw(amount uint64, out Handle) ledger.Command {
	return moveCall(p.yieldTarget("saving", "withdraw"), []string{p.ShareType}, out,
		ledger.U64(amount),
	)
}

func (p Programs) ConvertOut(stable Handle, out Handle) ledger.Command {
	return moveCall(p.yieldTarget("psm", "swap_out"), []string{p.StableCoinType, p.BaseCoinType}, out,
		ledger.Result(string(stable)),
	)
}

func (p Programs) Transfer(coin Handle, recipient string) ledger.Command {
	return ledger.Command{
		Kind:      ledger.CommandTransferObjects,
		Arguments: []ledger.Arg{ledger.Result(string(coin)), ledger.Address(recipient)},
	}
}

func (p Programs) ClaimReward(goalID string) ledger.Command {
	return moveCall(p.goalTarget("claim_reward"), nil, "",
		ledger.ObjectArg(p.LedgerID),
		ledger.ObjectArg(goalID),
		ledger.ObjectArg(ledger.ClockObjectID),
	)
}
