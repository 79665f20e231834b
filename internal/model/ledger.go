package model

// GlobalLedger is the decoded shared ledger object. Leaf amounts keep their raw
// on-ledger string form until a view parses them.
type GlobalLedger struct {
	Admin                 string
	DepositBalances       map[string]map[string]string
	RewardBalances        map[string]map[string]string
	TotalGoals            uint64
	TotalDeposits         uint64
	TotalWithdrawals      uint64
	PlatformFeesCollected uint64
}

type GoalAmount struct {
	GoalID string `json:"goal_id"`
	Amount uint64 `json:"amount,string"`
}

// UserView is one depositor's slice of the ledger. Deposits and rewards are independent.
type UserView struct {
	Address  string       `json:"address"`
	Deposits []GoalAmount `json:"deposits"`
	Rewards  []GoalAmount `json:"rewards"`
}

func (v UserView) TotalDeposits() uint64 {
	var total uint64
	for _, d := range v.Deposits {
		total += d.Amount
	}
	return total
}

func (v UserView) TotalRewards() uint64 {
	var total uint64
	for _, r := range v.Rewards {
		total += r.Amount
	}
	return total
}

type LedgerStats struct {
	TotalGoals            uint64 `json:"total_goals,string"`
	TotalDeposits         uint64 `json:"total_deposits,string"`
	TotalWithdrawals      uint64 `json:"total_withdrawals,string"`
	PlatformFeesCollected uint64 `json:"platform_fees_collected,string"`
	Depositors            int    `json:"depositors"`
}
