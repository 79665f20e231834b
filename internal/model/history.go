package model

import (
	"time"
)

type Deposit struct {
	ID        string    `db:"id" json:"id"`
	GoalID    string    `db:"goal_id" json:"goal_id"`
	Depositor string    `db:"depositor" json:"depositor"`
	Amount    uint64    `db:"amount" json:"amount,string"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	TxDigest  string    `db:"tx_digest" json:"tx_digest"`
	EventSeq  string    `db:"event_seq" json:"event_seq"`
}

type Withdrawal struct {
	ID        string    `db:"id" json:"id"`
	GoalID    string    `db:"goal_id" json:"goal_id"`
	RequestID string    `db:"request_id" json:"request_id"`
	Requester string    `db:"requester" json:"requester"`
	Amount    uint64    `db:"amount" json:"amount,string"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	TxDigest  string    `db:"tx_digest" json:"tx_digest"`
	EventSeq  string    `db:"event_seq" json:"event_seq"`
}

// Cursor is the indexer's resume point for one event type.
type Cursor struct {
	EventType string    `db:"event_type"`
	TxDigest  string    `db:"tx_digest"`
	EventSeq  string    `db:"event_seq"`
	UpdatedAt time.Time `db:"updated_at"`
}

type GoalFilter struct {
	GuardianAddress  string
	DependentAddress string
	Page             int
	Limit            int
}

type RequestFilter struct {
	GoalID    string
	Requester string
	Status    ApprovalOutcome
	Page      int
	Limit     int
}

type PageFilter struct {
	Page  int
	Limit int
}

func (f PageFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}
