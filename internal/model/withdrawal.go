package model

import (
	"time"
)

type ApprovalOutcome string

const (
	OutcomePending  ApprovalOutcome = "pending"
	OutcomeApproved ApprovalOutcome = "approved"
	OutcomeRejected ApprovalOutcome = "rejected"
)

func (o ApprovalOutcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeApproved, OutcomeRejected:
		return true
	}
	return false
}

// WithdrawalRequest moves pending -> approved|rejected once, and an approved
// request is consumed by its requester's withdrawal.
type WithdrawalRequest struct {
	ID             string          `db:"id" json:"id"`
	GoalID         string          `db:"goal_id" json:"goal_id"`
	Amount         uint64          `db:"amount" json:"amount,string"`
	Reason         string          `db:"reason" json:"reason"`
	Requester      string          `db:"requester" json:"requester"`
	Outcome        ApprovalOutcome `db:"status" json:"status"`
	ApprovedBy     string          `db:"approved_by" json:"approved_by,omitempty"`
	ApprovalReason string          `db:"approval_reason" json:"approval_reason,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	DecidedAt      *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	TxDigest       string          `db:"tx_digest" json:"tx_digest"`
}

func (r *WithdrawalRequest) IsPending() bool {
	return r.Outcome == OutcomePending
}
