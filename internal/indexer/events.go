package indexer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/model"
)

// Event names emitted by the goal-tracking program.
const (
	EventGoalCreated         = "BuckyBankCreated"
	EventDepositMade         = "DepositMade"
	EventWithdrawalRequested = "WithdrawalRequested"
	EventWithdrawalDecided   = "WithdrawalRequestAudited"
	EventWithdrawn           = "Withdrawed"
)

const day = 24 * time.Hour

// eventName returns the struct name of a fully qualified event type, without
// type parameters.
func eventName(eventType string) string {
	if i := strings.IndexByte(eventType, '<'); i >= 0 {
		eventType = eventType[:i]
	}
	if i := strings.LastIndex(eventType, "::"); i >= 0 {
		return eventType[i+2:]
	}
	return eventType
}

type payload map[string]json.RawMessage

func decodePayload(ev ledger.Event) (payload, error) {
	var p payload
	if err := json.Unmarshal(ev.ParsedJSON, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventName(ev.Type), err)
	}
	return p, nil
}

func (p payload) str(name string) (string, error) {
	return ledger.StringField(p, name)
}

func (p payload) u64(name string) (uint64, error) {
	return ledger.U64Field(p, name)
}

func (p payload) optionalStr(name string) (string, error) {
	if _, ok := p[name]; !ok {
		return "", nil
	}
	return p.str(name)
}

func (p payload) millis(name string) (time.Time, error) {
	ms, err := p.u64(name)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

func (p payload) boolean(name string) (bool, error) {
	var v *bool
	if err := json.Unmarshal(p[name], &v); err != nil || v == nil {
		return false, fmt.Errorf("field %s missing or not a bool", name)
	}
	return *v, nil
}

// timestamp prefers the payload's own time field and falls back to the checkpoint time.
func timestamp(p payload, field string, ev ledger.Event) (time.Time, error) {
	if _, ok := p[field]; ok {
		return p.millis(field)
	}
	ms, err := strconv.ParseInt(ev.TimestampMs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("event has no %s and no timestamp", field)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func decodeGoalCreated(ev ledger.Event) (*model.SavingsGoal, error) {
	p, err := decodePayload(ev)
	if err != nil {
		return nil, err
	}

	g := &model.SavingsGoal{TxDigest: ev.ID.TxDigest}
	if g.ID, err = p.str("bucky_bank_id"); err != nil {
		return nil, err
	}
	if g.GuardianAddress, err = p.str("parent"); err != nil {
		return nil, err
	}
	if g.DependentAddress, err = p.str("child"); err != nil {
		return nil, err
	}
	if g.TargetAmount, err = p.u64("target_amount"); err != nil {
		return nil, err
	}
	if g.Name, err = p.optionalStr("name"); err != nil {
		return nil, err
	}
	if g.CreatedAt, err = timestamp(p, "created_at_ms", ev); err != nil {
		return nil, err
	}

	if _, ok := p["duration_days"]; ok {
		days, err := p.u64("duration_days")
		if err != nil {
			return nil, err
		}
		g.DurationDays = int(days)
		return g, nil
	}

	deadline, err := p.millis("deadline_ms")
	if err != nil {
		return nil, err
	}
	span := deadline.Sub(g.CreatedAt)
	g.DurationDays = int((span + day - 1) / day)
	return g, nil
}

func decodeDeposit(ev ledger.Event) (*model.Deposit, error) {
	p, err := decodePayload(ev)
	if err != nil {
		return nil, err
	}

	d := &model.Deposit{TxDigest: ev.ID.TxDigest, EventSeq: ev.ID.EventSeq}
	if d.GoalID, err = p.str("bucky_bank_id"); err != nil {
		return nil, err
	}
	if d.Amount, err = p.u64("amount"); err != nil {
		return nil, err
	}
	if d.Depositor, err = p.str("depositor"); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = timestamp(p, "created_at_ms", ev); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeWithdrawalRequested(ev ledger.Event) (*model.WithdrawalRequest, error) {
	p, err := decodePayload(ev)
	if err != nil {
		return nil, err
	}

	r := &model.WithdrawalRequest{TxDigest: ev.ID.TxDigest, Outcome: model.OutcomePending}
	if r.ID, err = p.str("request_id"); err != nil {
		return nil, err
	}
	if r.GoalID, err = p.str("bucky_bank_id"); err != nil {
		return nil, err
	}
	if r.Amount, err = p.u64("amount"); err != nil {
		return nil, err
	}
	if r.Requester, err = p.str("requester"); err != nil {
		return nil, err
	}
	if r.Reason, err = p.str("reason"); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = timestamp(p, "created_at_ms", ev); err != nil {
		return nil, err
	}
	return r, nil
}

type decision struct {
	RequestID  string
	GoalID     string
	Outcome    model.ApprovalOutcome
	ApprovedBy string
	Reason     string
	DecidedAt  time.Time
}

func decodeWithdrawalDecided(ev ledger.Event) (*decision, error) {
	p, err := decodePayload(ev)
	if err != nil {
		return nil, err
	}

	d := &decision{}
	if d.RequestID, err = p.str("request_id"); err != nil {
		return nil, err
	}
	if d.GoalID, err = p.str("bucky_bank_id"); err != nil {
		return nil, err
	}
	approved, err := p.boolean("approved")
	if err != nil {
		return nil, err
	}
	d.Outcome = model.OutcomeRejected
	if approved {
		d.Outcome = model.OutcomeApproved
	}
	if d.ApprovedBy, err = p.str("approved_by"); err != nil {
		return nil, err
	}
	if d.Reason, err = p.optionalStr("reason"); err != nil {
		return nil, err
	}
	if d.DecidedAt, err = timestamp(p, "audit_at_ms", ev); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeWithdrawn(ev ledger.Event) (*model.Withdrawal, error) {
	p, err := decodePayload(ev)
	if err != nil {
		return nil, err
	}

	w := &model.Withdrawal{TxDigest: ev.ID.TxDigest, EventSeq: ev.ID.EventSeq}
	if w.RequestID, err = p.str("request_id"); err != nil {
		return nil, err
	}
	if w.GoalID, err = p.str("bucky_bank_id"); err != nil {
		return nil, err
	}
	if w.Amount, err = p.u64("amount"); err != nil {
		return nil, err
	}
	if w.Requester, err = p.str("requester"); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = timestamp(p, "withdrawn_at_ms", ev); err != nil {
		return nil, err
	}
	return w, nil
}
