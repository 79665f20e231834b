package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/validation"
)

// YieldReader reports unharvested yield for an account in the pool.
type YieldReader interface {
	PendingRewards(ctx context.Context, owner string) (uint64, error)
}

// GoalIndex answers pre-flight questions from the history index: whether a requester
// already has an undecided request on a goal, and who guards a goal.
type GoalIndex interface {
	HasPendingRequest(ctx context.Context, requester, goalID string) (bool, error)
	GoalGuardian(ctx context.Context, goalID string) (string, error)
}

// NoYield reports nothing to harvest. Used when no pool object is configured.
type NoYield struct{}

func (NoYield) PendingRewards(ctx context.Context, owner string) (uint64, error) {
	return 0, nil
}

// PoolRewards reads pending yield from the pool object's pending_rewards map.
type PoolRewards struct {
	reader ledger.ObjectReader
	poolID string
}

func NewPoolRewards(reader ledger.ObjectReader, poolID string) *PoolRewards {
	return &PoolRewards{reader: reader, poolID: poolID}
}

func (p *PoolRewards) PendingRewards(ctx context.Context, owner string) (uint64, error) {
	obj, err := p.reader.GetObject(ctx, p.poolID)
	if err != nil {
		return 0, fmt.Errorf("failed to read yield pool: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj.Fields, &fields); err != nil {
		return 0, apperr.ErrCorruptLedgerEntry.WithError(err).WithDetail("object_id", p.poolID)
	}
	raw, ok := fields["pending_rewards"]
	if !ok {
		return 0, apperr.ErrCorruptLedgerEntry.WithDetail("object_id", p.poolID).WithDetail("field", "pending_rewards")
	}

	pending, err := ledger.DecodeStringVecMap(raw)
	if err != nil {
		return 0, apperr.ErrCorruptLedgerEntry.WithError(err).WithDetail("object_id", p.poolID)
	}

	want := validation.NormalizeAddress(owner)
	for account, amount := range pending {
		if validation.NormalizeAddress(account) != want {
			continue
		}
		v, err := ledger.ParseU64(amount)
		if err != nil {
			return 0, apperr.ErrCorruptLedgerEntry.WithError(err).WithDetail("object_id", p.poolID).WithDetail("address", owner)
		}
		return v, nil
	}
	return 0, nil
}

var outcomeByStatus = map[int]model.ApprovalOutcome{
	0: model.OutcomePending,
	1: model.OutcomeApproved,
	2: model.OutcomeRejected,
}

// loadRequest fetches and strictly decodes a withdrawal request object.
func loadRequest(ctx context.Context, reader ledger.ObjectReader, requestID string) (*model.WithdrawalRequest, error) {
	obj, err := reader.GetObject(ctx, requestID)
	if errors.Is(err, ledger.ErrObjectNotFound) {
		return nil, apperr.ErrNotFound.WithDetail("request_id", requestID).WithError(err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read withdrawal request: %w", err)
	}

	req, err := DecodeRequest(obj.Fields)
	if err != nil {
		return nil, apperr.ErrCorruptLedgerEntry.WithError(err).WithDetail("request_id", requestID)
	}
	return req, nil
}

// DecodeRequest decodes the fields of a withdrawal request object.
func DecodeRequest(raw json.RawMessage) (*model.WithdrawalRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode request fields: %w", err)
	}

	id, err := ledger.UIDField(fields, "id")
	if err != nil {
		return nil, err
	}
	goalID, err := ledger.StringField(fields, "bucky_bank_id")
	if err != nil {
		return nil, err
	}
	amount, err := ledger.U64Field(fields, "amount")
	if err != nil {
		return nil, err
	}
	reason, err := ledger.StringField(fields, "reason")
	if err != nil {
		return nil, err
	}
	requester, err := ledger.StringField(fields, "requester")
	if err != nil {
		return nil, err
	}
	createdMs, err := ledger.U64Field(fields, "created_at_ms")
	if err != nil {
		return nil, err
	}

	var status *int
	if err := json.Unmarshal(fields["status"], &status); err != nil || status == nil {
		return nil, fmt.Errorf("field status missing or not a u8")
	}
	outcome, ok := outcomeByStatus[*status]
	if !ok {
		return nil, fmt.Errorf("unknown request status %d", *status)
	}

	req := &model.WithdrawalRequest{
		ID:        validation.NormalizeAddress(id),
		GoalID:    validation.NormalizeAddress(goalID),
		Amount:    amount,
		Reason:    reason,
		Requester: validation.NormalizeAddress(requester),
		Outcome:   outcome,
		CreatedAt: time.UnixMilli(int64(createdMs)).UTC(),
	}

	if approver, ok := fields["approved_by"]; ok && !bytes.Equal(approver, []byte("null")) {
		if err := json.Unmarshal(approver, &req.ApprovedBy); err != nil {
			return nil, fmt.Errorf("field approved_by is not an address")
		}
		req.ApprovedBy = validation.NormalizeAddress(req.ApprovedBy)
	}
	if approvalReason, ok := fields["approval_reason"]; ok && !bytes.Equal(approvalReason, []byte("null")) {
		if err := json.Unmarshal(approvalReason, &req.ApprovalReason); err != nil {
			return nil, fmt.Errorf("field approval_reason is not a string")
		}
	}

	return req, nil
}
