package model

// Operation parameters as supplied by the connected wallet. Amounts are decimal
// strings in the asset's display unit.

type CreateGoalParams struct {
	Name             string `json:"name"`
	TargetAmount     string `json:"target_amount"`
	DurationDays     int    `json:"duration_days"`
	DependentAddress string `json:"child_address"`
}

type DepositParams struct {
	GoalID string `json:"goal_id"`
	Amount string `json:"amount"`
}

type RequestWithdrawalParams struct {
	GoalID string `json:"goal_id"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type ApproveWithdrawalParams struct {
	RequestID string `json:"request_id"`
	GoalID    string `json:"goal_id"`
	Approve   *bool  `json:"approve"`
	Reason    string `json:"reason"`
}

type ExecuteWithdrawalParams struct {
	RequestID string `json:"request_id"`
	GoalID    string `json:"goal_id"`
}

type ClaimRewardParams struct {
	GoalID string `json:"goal_id"`
}
