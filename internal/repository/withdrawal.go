package repository

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/piggybank/internal/model"
)

type WithdrawalRepository interface {
	Create(withdrawal *model.Withdrawal) error
	ByGoal(goalID string, page model.PageFilter) ([]*model.Withdrawal, int, error)
	AllByGoal(goalID string) ([]*model.Withdrawal, error)
}

type withdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) WithdrawalRepository {
	return &withdrawalRepository{db: db}
}

func (r *withdrawalRepository) Create(withdrawal *model.Withdrawal) error {
	if withdrawal.ID == "" {
		withdrawal.ID = uuid.New().String()
	}

	query := `INSERT INTO withdrawals (id, goal_id, request_id, requester, amount, created_at, tx_digest, event_seq)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (tx_digest, event_seq) DO NOTHING`

	_, err := r.db.Exec(query,
		withdrawal.ID,
		withdrawal.GoalID,
		withdrawal.RequestID,
		withdrawal.Requester,
		withdrawal.Amount,
		withdrawal.CreatedAt,
		withdrawal.TxDigest,
		withdrawal.EventSeq,
	)
	return err
}

func (r *withdrawalRepository) ByGoal(goalID string, page model.PageFilter) ([]*model.Withdrawal, int, error) {
	var total int
	err := r.db.Get(&total, `SELECT COUNT(*) FROM withdrawals WHERE goal_id = $1`, goalID)
	if err != nil {
		return nil, 0, err
	}

	withdrawals := []*model.Withdrawal{}
	query := `SELECT * FROM withdrawals WHERE goal_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	err = r.db.Select(&withdrawals, query, goalID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}

	return withdrawals, total, nil
}

func (r *withdrawalRepository) AllByGoal(goalID string) ([]*model.Withdrawal, error) {
	withdrawals := []*model.Withdrawal{}
	err := r.db.Select(&withdrawals, `SELECT * FROM withdrawals WHERE goal_id = $1 ORDER BY created_at, id`, goalID)
	return withdrawals, err
}
