package model

import (
	"time"
)

type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusExpired   GoalStatus = "expired"
)

// SavingsGoal is a goal as indexed from its creation event. Balance comes from the
// global ledger and Status is derived, neither is persisted.
type SavingsGoal struct {
	ID               string     `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	TargetAmount     uint64     `db:"target_amount" json:"target_amount,string"`
	DurationDays     int        `db:"duration_days" json:"duration_days"`
	GuardianAddress  string     `db:"parent_address" json:"parent_address"`
	DependentAddress string     `db:"child_address" json:"child_address"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	TxDigest         string     `db:"tx_digest" json:"tx_digest"`
	Balance          uint64     `db:"-" json:"balance,string"`
	Status           GoalStatus `db:"-" json:"status"`
}

// Deadline is creation time plus the goal duration.
func (g *SavingsGoal) Deadline() time.Time {
	return g.CreatedAt.Add(time.Duration(g.DurationDays) * 24 * time.Hour)
}

// DeriveStatus reports completed when the balance reaches the target, otherwise expired
// once now is past the deadline, otherwise active. Completed wins over expired.
func DeriveStatus(balance, target uint64, now, deadline time.Time) GoalStatus {
	if balance >= target {
		return GoalStatusCompleted
	}
	if now.After(deadline) {
		return GoalStatusExpired
	}
	return GoalStatusActive
}

// Resolve fills Balance and Status for the given point in time.
func (g *SavingsGoal) Resolve(balance uint64, now time.Time) {
	g.Balance = balance
	g.Status = DeriveStatus(balance, g.TargetAmount, now, g.Deadline())
}
