package repository

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/piggybank/internal/model"
)

type DepositRepository interface {
	Create(deposit *model.Deposit) error
	ByGoal(goalID string, page model.PageFilter) ([]*model.Deposit, int, error)
	AllByGoal(goalID string) ([]*model.Deposit, error)
}

type depositRepository struct {
	db *sqlx.DB
}

func NewDepositRepository(db *sqlx.DB) DepositRepository {
	return &depositRepository{db: db}
}

// Create stores a deposit event. The (tx_digest, event_seq) pair makes replays no-ops.
func (r *depositRepository) Create(deposit *model.Deposit) error {
	if deposit.ID == "" {
		deposit.ID = uuid.New().String()
	}

	query := `INSERT INTO deposits (id, goal_id, depositor, amount, created_at, tx_digest, event_seq)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (tx_digest, event_seq) DO NOTHING`

	_, err := r.db.Exec(query,
		deposit.ID,
		deposit.GoalID,
		deposit.Depositor,
		deposit.Amount,
		deposit.CreatedAt,
		deposit.TxDigest,
		deposit.EventSeq,
	)
	return err
}

func (r *depositRepository) ByGoal(goalID string, page model.PageFilter) ([]*model.Deposit, int, error) {
	var total int
	err := r.db.Get(&total, `SELECT COUNT(*) FROM deposits WHERE goal_id = $1`, goalID)
	if err != nil {
		return nil, 0, err
	}

	deposits := []*model.Deposit{}
	query := `SELECT * FROM deposits WHERE goal_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	err = r.db.Select(&deposits, query, goalID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}

	return deposits, total, nil
}

func (r *depositRepository) AllByGoal(goalID string) ([]*model.Deposit, error) {
	deposits := []*model.Deposit{}
	err := r.db.Select(&deposits, `SELECT * FROM deposits WHERE goal_id = $1 ORDER BY created_at, id`, goalID)
	return deposits, err
}
