package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/piggybank/internal/model"
)

var (
	ErrRequestNotFound = errors.New("withdrawal request not found")
)

type WithdrawalRequestRepository interface {
	Create(req *model.WithdrawalRequest) error
	ByID(requestID string) (*model.WithdrawalRequest, error)
	Decide(requestID string, outcome model.ApprovalOutcome, approvedBy, reason string, decidedAt time.Time) error
	Requests(filter model.RequestFilter) ([]*model.WithdrawalRequest, int, error)
	HasPending(requester, goalID string) (bool, error)
	PendingForGuardian(guardian string, page model.PageFilter) ([]*model.WithdrawalRequest, int, error)
}

type withdrawalRequestRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRequestRepository(db *sqlx.DB) WithdrawalRequestRepository {
	return &withdrawalRequestRepository{db: db}
}

func (r *withdrawalRequestRepository) Create(req *model.WithdrawalRequest) error {
	if req.Outcome == "" {
		req.Outcome = model.OutcomePending
	}

	query := `INSERT INTO withdrawal_requests (id, goal_id, amount, reason, requester, status, created_at, tx_digest)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(query,
		req.ID,
		req.GoalID,
		req.Amount,
		req.Reason,
		req.Requester,
		req.Outcome,
		req.CreatedAt,
		req.TxDigest,
	)
	return err
}

func (r *withdrawalRequestRepository) ByID(requestID string) (*model.WithdrawalRequest, error) {
	req := &model.WithdrawalRequest{}
	err := r.db.Get(req, `SELECT * FROM withdrawal_requests WHERE id = $1`, requestID)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	return req, err
}

// Decide records the guardian's decision. Only a pending request can be decided.
func (r *withdrawalRequestRepository) Decide(requestID string, outcome model.ApprovalOutcome, approvedBy, reason string, decidedAt time.Time) error {
	query := `UPDATE withdrawal_requests
	          SET status = $1, approved_by = $2, approval_reason = $3, decided_at = $4
	          WHERE id = $5 AND status = $6`

	result, err := r.db.Exec(query, outcome, approvedBy, reason, decidedAt, requestID, model.OutcomePending)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrRequestNotFound
	}

	return nil
}

func (r *withdrawalRequestRepository) Requests(filter model.RequestFilter) ([]*model.WithdrawalRequest, int, error) {
	w := &where{}
	if filter.GoalID != "" {
		w.add("goal_id = $%d", filter.GoalID)
	}
	if filter.Requester != "" {
		w.add("requester = $%d", filter.Requester)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}

	var total int
	err := r.db.Get(&total, `SELECT COUNT(*) FROM withdrawal_requests`+w.String(), w.args...)
	if err != nil {
		return nil, 0, err
	}

	limit, args := w.page(filter.Limit, model.PageFilter{Page: filter.Page, Limit: filter.Limit}.Offset())
	requests := []*model.WithdrawalRequest{}
	err = r.db.Select(&requests, `SELECT * FROM withdrawal_requests`+w.String()+` ORDER BY created_at DESC, id`+limit, args...)
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *withdrawalRequestRepository) HasPending(requester, goalID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM withdrawal_requests WHERE requester = $1 AND goal_id = $2 AND status = $3`
	err := r.db.Get(&count, query, requester, goalID, model.OutcomePending)
	return count > 0, err
}

// PendingForGuardian lists undecided requests on goals the guardian created.
func (r *withdrawalRequestRepository) PendingForGuardian(guardian string, page model.PageFilter) ([]*model.WithdrawalRequest, int, error) {
	from := ` FROM withdrawal_requests wr JOIN goals g ON g.id = wr.goal_id
	          WHERE g.parent_address = $1 AND wr.status = $2`

	var total int
	err := r.db.Get(&total, `SELECT COUNT(*)`+from, guardian, model.OutcomePending)
	if err != nil {
		return nil, 0, err
	}

	requests := []*model.WithdrawalRequest{}
	err = r.db.Select(&requests, `SELECT wr.*`+from+` ORDER BY wr.created_at DESC, wr.id LIMIT $3 OFFSET $4`,
		guardian, model.OutcomePending, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}
