package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/piggybank/internal/model"
)

var (
	ErrCursorNotFound = errors.New("cursor not found")
)

type CursorRepository interface {
	Get(eventType string) (*model.Cursor, error)
	Save(cursor *model.Cursor) error
}

type cursorRepository struct {
	db *sqlx.DB
}

func NewCursorRepository(db *sqlx.DB) CursorRepository {
	return &cursorRepository{db: db}
}

func (r *cursorRepository) Get(eventType string) (*model.Cursor, error) {
	cursor := &model.Cursor{}
	err := r.db.Get(cursor, `SELECT * FROM event_cursors WHERE event_type = $1`, eventType)
	if err == sql.ErrNoRows {
		return nil, ErrCursorNotFound
	}
	return cursor, err
}

func (r *cursorRepository) Save(cursor *model.Cursor) error {
	cursor.UpdatedAt = time.Now()

	query := `INSERT INTO event_cursors (event_type, tx_digest, event_seq, updated_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (event_type) DO UPDATE
	          SET tx_digest = excluded.tx_digest, event_seq = excluded.event_seq, updated_at = excluded.updated_at`

	_, err := r.db.Exec(query, cursor.EventType, cursor.TxDigest, cursor.EventSeq, cursor.UpdatedAt)
	return err
}
