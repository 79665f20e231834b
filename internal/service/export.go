package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/repository"
	"github.com/templui/piggybank/internal/storage"
	"github.com/templui/piggybank/internal/units"
	"github.com/templui/piggybank/internal/validation"
)

// Export is a stored history export.
type Export struct {
	GoalID string    `json:"goal_id"`
	Path   string    `json:"path"`
	URL    string    `json:"url"`
	Rows   int       `json:"rows"`
	At     time.Time `json:"created_at"`
}

// ExportService writes a goal's deposits and withdrawals as CSV to object storage.
type ExportService struct {
	goals       repository.GoalRepository
	deposits    repository.DepositRepository
	withdrawals repository.WithdrawalRepository
	storage     storage.Storage
	base        units.Converter
	now         func() time.Time
}

func NewExportService(
	goals repository.GoalRepository,
	deposits repository.DepositRepository,
	withdrawals repository.WithdrawalRepository,
	store storage.Storage,
	base units.Converter,
) *ExportService {
	return &ExportService{
		goals:       goals,
		deposits:    deposits,
		withdrawals: withdrawals,
		storage:     store,
		base:        base,
		now:         time.Now,
	}
}

func (s *ExportService) Enabled() bool {
	return s.storage != nil
}

// Export is limited to the goal's guardian and dependent.
func (s *ExportService) Export(ctx context.Context, caller, goalID string) (*Export, error) {
	if !s.Enabled() {
		return nil, apperr.New(apperr.KindNotFound, "history export is not configured")
	}

	goal, err := s.goals.ByID(goalID)
	if errors.Is(err, repository.ErrGoalNotFound) {
		return nil, apperr.ErrNotFound.WithDetail("goal_id", goalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}

	caller = validation.NormalizeAddress(caller)
	if caller != validation.NormalizeAddress(goal.GuardianAddress) && caller != validation.NormalizeAddress(goal.DependentAddress) {
		return nil, apperr.ErrNotAuthorized.WithDetail("goal_id", goalID)
	}

	deposits, err := s.deposits.AllByGoal(goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deposits: %w", err)
	}
	withdrawals, err := s.withdrawals.AllByGoal(goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawals: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"type", "time", "address", "amount", "amount_" + s.base.Symbol, "tx_digest", "request_id"})
	for _, d := range deposits {
		w.Write([]string{
			"deposit",
			d.CreatedAt.UTC().Format(time.RFC3339),
			d.Depositor,
			strconv.FormatUint(d.Amount, 10),
			s.base.FormatUint(d.Amount),
			d.TxDigest,
			"",
		})
	}
	for _, wd := range withdrawals {
		w.Write([]string{
			"withdrawal",
			wd.CreatedAt.UTC().Format(time.RFC3339),
			wd.Requester,
			strconv.FormatUint(wd.Amount, 10),
			s.base.FormatUint(wd.Amount),
			wd.TxDigest,
			wd.RequestID,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}

	now := s.now().UTC()
	path := fmt.Sprintf("exports/%s/%s.csv", goalID, now.Format("20060102T150405Z"))
	if err := s.storage.Save(ctx, path, &buf, "text/csv"); err != nil {
		return nil, fmt.Errorf("failed to store export: %w", err)
	}

	url, err := s.storage.PresignedURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to sign export url: %w", err)
	}

	slog.Info("history exported", "goal_id", goalID, "path", path, "rows", len(deposits)+len(withdrawals))
	return &Export{GoalID: goalID, Path: path, URL: url, Rows: len(deposits) + len(withdrawals), At: now}, nil
}
