package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/refresh"
	"github.com/templui/piggybank/internal/repository"
)

type Config struct {
	Package      string
	Module       string
	PageSize     int
	PollInterval time.Duration // wait when idle or after an error
	BusyInterval time.Duration // wait after a page with events and no next page
}

// Indexer copies goal-program events into the history index. One cursor, keyed by
// the module filter, keeps events in ledger order across event types.
type Indexer struct {
	cfg         Config
	events      ledger.EventReader
	goals       repository.GoalRepository
	deposits    repository.DepositRepository
	requests    repository.WithdrawalRequestRepository
	withdrawals repository.WithdrawalRepository
	cursors     repository.CursorRepository
	refresher   *refresh.Coordinator
}

func New(
	cfg Config,
	events ledger.EventReader,
	goals repository.GoalRepository,
	deposits repository.DepositRepository,
	requests repository.WithdrawalRequestRepository,
	withdrawals repository.WithdrawalRepository,
	cursors repository.CursorRepository,
	refresher *refresh.Coordinator,
) *Indexer {
	if cfg.PageSize == 0 {
		cfg.PageSize = 50
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BusyInterval == 0 {
		cfg.BusyInterval = 1 * time.Second
	}
	return &Indexer{
		cfg:         cfg,
		events:      events,
		goals:       goals,
		deposits:    deposits,
		requests:    requests,
		withdrawals: withdrawals,
		cursors:     cursors,
		refresher:   refresher,
	}
}

func (ix *Indexer) cursorKey() string {
	return ix.cfg.Package + "::" + ix.cfg.Module
}

// PollOnce indexes one page of events. It returns the number of events read and
// whether the ledger reported another page.
func (ix *Indexer) PollOnce(ctx context.Context) (int, bool, error) {
	key := ix.cursorKey()

	var after *ledger.EventID
	cursor, err := ix.cursors.Get(key)
	switch {
	case errors.Is(err, repository.ErrCursorNotFound):
		slog.Info("no cursor found, indexing from the beginning", "filter", key)
	case err != nil:
		return 0, false, fmt.Errorf("failed to load cursor: %w", err)
	default:
		after = &ledger.EventID{TxDigest: cursor.TxDigest, EventSeq: cursor.EventSeq}
	}

	page, err := ix.events.QueryEvents(ctx, ledger.EventQuery{
		Filter: ledger.EventFilter{Package: ix.cfg.Package, Module: ix.cfg.Module},
		Cursor: after,
		Limit:  ix.cfg.PageSize,
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to query events: %w", err)
	}

	var last *ledger.EventID
	for i := range page.Data {
		ev := page.Data[i]
		if err := ix.handle(ctx, ev); err != nil {
			if last != nil {
				ix.saveCursor(key, *last)
			}
			return i, false, fmt.Errorf("failed to index %s event %s/%s: %w", eventName(ev.Type), ev.ID.TxDigest, ev.ID.EventSeq, err)
		}
		last = &ev.ID
	}

	if len(page.Data) > 0 {
		next := page.Data[len(page.Data)-1].ID
		if page.NextCursor != nil {
			next = *page.NextCursor
		}
		if err := ix.cursors.Save(&model.Cursor{EventType: key, TxDigest: next.TxDigest, EventSeq: next.EventSeq}); err != nil {
			return len(page.Data), false, fmt.Errorf("failed to save cursor: %w", err)
		}
		slog.Info("indexed events", "count", len(page.Data), "has_next_page", page.HasNextPage)
	}

	return len(page.Data), page.HasNextPage, nil
}

func (ix *Indexer) saveCursor(key string, id ledger.EventID) {
	err := ix.cursors.Save(&model.Cursor{EventType: key, TxDigest: id.TxDigest, EventSeq: id.EventSeq})
	if err != nil {
		slog.Error("failed to save cursor", "error", err, "filter", key)
	}
}

// Run polls until ctx is canceled: the next page right away, a short pause after a
// page with events, the poll interval when idle or after an error.
func (ix *Indexer) Run(ctx context.Context) {
	slog.Info("indexer started", "filter", ix.cursorKey(), "poll_interval", ix.cfg.PollInterval)

	for {
		n, more, err := ix.PollOnce(ctx)

		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			slog.Error("indexer poll failed", "error", err)
			wait = ix.cfg.PollInterval
		case more:
			wait = 0
		case n > 0:
			wait = ix.cfg.BusyInterval
		default:
			wait = ix.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			slog.Info("indexer stopped")
			return
		case <-time.After(wait):
		}
	}
}

// handle stores one event. Malformed payloads are logged and skipped, storage
// errors stop the page.
func (ix *Indexer) handle(ctx context.Context, ev ledger.Event) error {
	var (
		kind  refresh.OperationKind
		scope refresh.Scope
		err   error
	)

	switch eventName(ev.Type) {
	case EventGoalCreated:
		g, derr := decodeGoalCreated(ev)
		if derr != nil {
			return skip(ev, derr)
		}
		err = ix.goals.Create(g)
		kind, scope = refresh.OpCreateGoal, refresh.Scope{GoalID: g.ID, Caller: g.GuardianAddress}

	case EventDepositMade:
		d, derr := decodeDeposit(ev)
		if derr != nil {
			return skip(ev, derr)
		}
		err = ix.deposits.Create(d)
		// The event does not say whether the transaction split yield, so assume it did.
		kind, scope = refresh.OpDeposit, refresh.Scope{GoalID: d.GoalID, Caller: d.Depositor, RewardsSplit: true}

	case EventWithdrawalRequested:
		r, derr := decodeWithdrawalRequested(ev)
		if derr != nil {
			return skip(ev, derr)
		}
		err = ix.requests.Create(r)
		kind, scope = refresh.OpRequestWithdrawal, refresh.Scope{GoalID: r.GoalID, Caller: r.Requester, Requester: r.Requester}
		if g, gerr := ix.goals.ByID(r.GoalID); gerr == nil {
			scope.Guardian = g.GuardianAddress
		}

	case EventWithdrawalDecided:
		d, derr := decodeWithdrawalDecided(ev)
		if derr != nil {
			return skip(ev, derr)
		}
		err = ix.requests.Decide(d.RequestID, d.Outcome, d.ApprovedBy, d.Reason, d.DecidedAt)
		if errors.Is(err, repository.ErrRequestNotFound) {
			slog.Warn("decision for unknown or already decided request", "request_id", d.RequestID)
			err = nil
		}
		kind, scope = refresh.OpApproveWithdrawal, refresh.Scope{GoalID: d.GoalID, Caller: d.ApprovedBy, Guardian: d.ApprovedBy}
		if req, rerr := ix.requests.ByID(d.RequestID); rerr == nil {
			scope.Requester = req.Requester
		}

	case EventWithdrawn:
		w, derr := decodeWithdrawn(ev)
		if derr != nil {
			return skip(ev, derr)
		}
		err = ix.withdrawals.Create(w)
		kind, scope = refresh.OpExecuteWithdrawal, refresh.Scope{GoalID: w.GoalID, Caller: w.Requester, Requester: w.Requester}

	default:
		slog.Debug("ignoring event", "type", ev.Type)
		return nil
	}

	if err != nil {
		return err
	}
	ix.invalidate(ctx, kind, scope)
	return nil
}

func skip(ev ledger.Event, err error) error {
	slog.Warn("skipping malformed event", "error", err, "type", ev.Type, "tx_digest", ev.ID.TxDigest, "event_seq", ev.ID.EventSeq)
	return nil
}

// invalidate drops views a newly indexed event changes, so a view cached between
// submission and indexing does not outlive the index.
func (ix *Indexer) invalidate(ctx context.Context, kind refresh.OperationKind, scope refresh.Scope) {
	if ix.refresher == nil {
		return
	}
	if _, err := ix.refresher.Invalidate(ctx, kind, scope); err != nil {
		slog.Warn("failed to refresh views after indexing", "error", err, "operation", kind, "goal_id", scope.GoalID)
	}
}
