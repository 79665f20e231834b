package validation

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/templui/piggybank/internal/model"
)

const (
	MsgGoalIDRequired    = "goal id is required"
	MsgRequestIDRequired = "withdrawal request id is required"
	MsgAmountRequired    = "amount is required"
	MsgAmountPositive    = "amount must be > 0"
	MsgReasonRequired    = "reason is required"
	MsgDecisionRequired  = "approval decision is required"
	MsgTargetRequired    = "target amount is required"
	MsgTargetPositive    = "target amount must be > 0"
	MsgDurationPositive  = "duration must be at least 1 day"
)

// Each Validate* returns the violations in field order. An empty slice means valid.

func ValidateDeposit(p model.DepositParams) []string {
	violations := []string{}
	if strings.TrimSpace(p.GoalID) == "" {
		violations = append(violations, MsgGoalIDRequired)
	}
	violations = appendAmount(violations, p.Amount, MsgAmountRequired, MsgAmountPositive)
	return violations
}

func ValidateRequestWithdrawal(p model.RequestWithdrawalParams) []string {
	violations := []string{}
	if strings.TrimSpace(p.GoalID) == "" {
		violations = append(violations, MsgGoalIDRequired)
	}
	violations = appendAmount(violations, p.Amount, MsgAmountRequired, MsgAmountPositive)
	if strings.TrimSpace(p.Reason) == "" {
		violations = append(violations, MsgReasonRequired)
	}
	return violations
}

func ValidateApproveWithdrawal(p model.ApproveWithdrawalParams) []string {
	violations := []string{}
	if strings.TrimSpace(p.RequestID) == "" {
		violations = append(violations, MsgRequestIDRequired)
	}
	if strings.TrimSpace(p.GoalID) == "" {
		violations = append(violations, MsgGoalIDRequired)
	}
	if p.Approve == nil {
		violations = append(violations, MsgDecisionRequired)
	}
	if strings.TrimSpace(p.Reason) == "" {
		violations = append(violations, MsgReasonRequired)
	}
	return violations
}

func ValidateExecuteWithdrawal(p model.ExecuteWithdrawalParams) []string {
	violations := []string{}
	if strings.TrimSpace(p.RequestID) == "" {
		violations = append(violations, MsgRequestIDRequired)
	}
	if strings.TrimSpace(p.GoalID) == "" {
		violations = append(violations, MsgGoalIDRequired)
	}
	return violations
}

func ValidateClaimReward(p model.ClaimRewardParams) []string {
	violations := []string{}
	if strings.TrimSpace(p.GoalID) == "" {
		violations = append(violations, MsgGoalIDRequired)
	}
	return violations
}

func ValidateCreateGoal(p model.CreateGoalParams) []string {
	violations := []string{}
	if err := ValidateGoalName(p.Name); err != nil {
		violations = append(violations, err.Error())
	}
	violations = appendAmount(violations, p.TargetAmount, MsgTargetRequired, MsgTargetPositive)
	if p.DurationDays < 1 {
		violations = append(violations, MsgDurationPositive)
	}
	if err := ValidateAddress(p.DependentAddress); err != nil {
		violations = append(violations, "dependent "+err.Error())
	}
	return violations
}

// appendAmount rejects missing, non-numeric, zero and negative amounts.
func appendAmount(violations []string, amount, requiredMsg, positiveMsg string) []string {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return append(violations, requiredMsg)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil || !d.IsPositive() {
		return append(violations, positiveMsg)
	}
	return violations
}
