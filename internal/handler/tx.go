package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/templui/piggybank/internal/composer"
	"github.com/templui/piggybank/internal/ctxkeys"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/render"
)

// Composer plans and submits operations for the authenticated wallet.
// *composer.Composer implements it.
type Composer interface {
	PlanCreateGoals(ctx context.Context, caller string, goals []model.CreateGoalParams) (*composer.Prepared, error)
	CreateGoals(ctx context.Context, caller string, goals []model.CreateGoalParams) (*composer.Result, error)
	PlanDeposit(ctx context.Context, caller string, p model.DepositParams) (*composer.Prepared, error)
	Deposit(ctx context.Context, caller string, p model.DepositParams) (*composer.Result, error)
	PlanRequestWithdrawal(ctx context.Context, caller string, p model.RequestWithdrawalParams) (*composer.Prepared, error)
	RequestWithdrawal(ctx context.Context, caller string, p model.RequestWithdrawalParams) (*composer.Result, error)
	PlanApproveWithdrawal(ctx context.Context, caller string, p model.ApproveWithdrawalParams) (*composer.Prepared, error)
	ApproveWithdrawal(ctx context.Context, caller string, p model.ApproveWithdrawalParams) (*composer.Result, error)
	PlanExecuteWithdrawal(ctx context.Context, caller string, p model.ExecuteWithdrawalParams) (*composer.Prepared, error)
	ExecuteWithdrawal(ctx context.Context, caller string, p model.ExecuteWithdrawalParams) (*composer.Result, error)
	PlanClaimReward(ctx context.Context, caller string, p model.ClaimRewardParams) (*composer.Prepared, error)
	ClaimReward(ctx context.Context, caller string, p model.ClaimRewardParams) (*composer.Result, error)
}

var _ Composer = (*composer.Composer)(nil)

type TxHandler struct {
	composer Composer
}

func NewTxHandler(c Composer) *TxHandler {
	return &TxHandler{
		composer: c,
	}
}

// CreateGoalsRequest creates one or more goals in a single submission.
type CreateGoalsRequest struct {
	Goals []model.CreateGoalParams `json:"goals"`
}

func (h *TxHandler) CreateGoals(w http.ResponseWriter, r *http.Request) {
	submit(w, r, func(ctx context.Context, caller string, req CreateGoalsRequest) (*composer.Result, error) {
		return h.composer.CreateGoals(ctx, caller, req.Goals)
	})
}

func (h *TxHandler) PreviewCreateGoals(w http.ResponseWriter, r *http.Request) {
	preview(w, r, func(ctx context.Context, caller string, req CreateGoalsRequest) (*composer.Prepared, error) {
		return h.composer.PlanCreateGoals(ctx, caller, req.Goals)
	})
}

func (h *TxHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	submit(w, r, h.composer.Deposit)
}

func (h *TxHandler) PreviewDeposit(w http.ResponseWriter, r *http.Request) {
	preview(w, r, h.composer.PlanDeposit)
}

func (h *TxHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	submit(w, r, h.composer.RequestWithdrawal)
}

func (h *TxHandler) PreviewRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	preview(w, r, h.composer.PlanRequestWithdrawal)
}

func (h *TxHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	submit(w, r, h.composer.ApproveWithdrawal)
}

func (h *TxHandler) PreviewApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	preview(w, r, h.composer.PlanApproveWithdrawal)
}

func (h *TxHandler) ExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	submit(w, r, h.composer.ExecuteWithdrawal)
}

func (h *TxHandler) PreviewExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	preview(w, r, h.composer.PlanExecuteWithdrawal)
}

func (h *TxHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	submit(w, r, h.composer.ClaimReward)
}

func (h *TxHandler) PreviewClaimReward(w http.ResponseWriter, r *http.Request) {
	preview(w, r, h.composer.PlanClaimReward)
}

func submit[P any](w http.ResponseWriter, r *http.Request, flow func(context.Context, string, P) (*composer.Result, error)) {
	var params P
	if err := decodeBody(w, r, &params); err != nil {
		render.Error(w, r, err)
		return
	}

	caller := ctxkeys.Wallet(r.Context())
	result, err := flow(r.Context(), caller, params)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	if len(result.Warnings) > 0 {
		slog.Warn("submission confirmed with warnings", "operation", result.Kind, "digest", result.Digest, "warnings", result.Warnings)
	}
	render.JSON(w, r, http.StatusOK, result)
}

func preview[P any](w http.ResponseWriter, r *http.Request, plan func(context.Context, string, P) (*composer.Prepared, error)) {
	var params P
	if err := decodeBody(w, r, &params); err != nil {
		render.Error(w, r, err)
		return
	}

	prepared, err := plan(r.Context(), ctxkeys.Wallet(r.Context()), params)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, prepared)
}
