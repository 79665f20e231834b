package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/templui/piggybank/internal/model"
)

var (
	ErrGoalNotFound = errors.New("goal not found")
)

type GoalRepository interface {
	Create(goal *model.SavingsGoal) error
	ByID(goalID string) (*model.SavingsGoal, error)
	Goals(filter model.GoalFilter) ([]*model.SavingsGoal, int, error)
}

type goalRepository struct {
	db *sqlx.DB
}

func NewGoalRepository(db *sqlx.DB) GoalRepository {
	return &goalRepository{db: db}
}

// Create stores an indexed goal. Replaying the same creation event is a no-op.
func (r *goalRepository) Create(goal *model.SavingsGoal) error {
	query := `INSERT INTO goals (id, name, target_amount, duration_days, parent_address, child_address, created_at, tx_digest)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(query,
		goal.ID,
		goal.Name,
		goal.TargetAmount,
		goal.DurationDays,
		goal.GuardianAddress,
		goal.DependentAddress,
		goal.CreatedAt,
		goal.TxDigest,
	)

	return err
}

func (r *goalRepository) ByID(goalID string) (*model.SavingsGoal, error) {
	goal := &model.SavingsGoal{}
	query := `SELECT * FROM goals WHERE id = $1`

	err := r.db.Get(goal, query, goalID)
	if err == sql.ErrNoRows {
		return nil, ErrGoalNotFound
	}

	return goal, err
}

// Goals returns one page of goals, newest first, and the total matching count.
func (r *goalRepository) Goals(filter model.GoalFilter) ([]*model.SavingsGoal, int, error) {
	w := &where{}
	if filter.GuardianAddress != "" {
		w.add("parent_address = $%d", filter.GuardianAddress)
	}
	if filter.DependentAddress != "" {
		w.add("child_address = $%d", filter.DependentAddress)
	}

	var total int
	err := r.db.Get(&total, `SELECT COUNT(*) FROM goals`+w.String(), w.args...)
	if err != nil {
		return nil, 0, err
	}

	limit, args := w.page(filter.Limit, model.PageFilter{Page: filter.Page, Limit: filter.Limit}.Offset())
	goals := []*model.SavingsGoal{}
	err = r.db.Select(&goals, `SELECT * FROM goals`+w.String()+` ORDER BY created_at DESC, id`+limit, args...)
	if err != nil {
		return nil, 0, err
	}

	return goals, total, nil
}
