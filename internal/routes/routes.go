package routes

import (
	"net/http"

	"github.com/templui/piggybank/internal/app"
	"github.com/templui/piggybank/internal/handler"
	"github.com/templui/piggybank/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB)
	goal := handler.NewGoalHandler(app.GoalService, app.ExportService)
	ledger := handler.NewLedgerHandler(app.LedgerService)
	tx := handler.NewTxHandler(app.Composer)

	mux := http.NewServeMux()

	// ============================================================================
	// PROBES
	// ============================================================================

	mux.HandleFunc("GET /health", health.Health)
	mux.HandleFunc("GET /ready", health.Ready)
	mux.HandleFunc("GET /live", health.Live)

	// ============================================================================
	// HISTORY (public reads)
	// ============================================================================

	mux.HandleFunc("GET /api/goals", goal.List)
	mux.HandleFunc("GET /api/goals/{id}", goal.Show)
	mux.HandleFunc("GET /api/goals/{id}/deposits", goal.Deposits)
	mux.HandleFunc("GET /api/goals/{id}/withdrawals", goal.Withdrawals)
	mux.HandleFunc("GET /api/goals/{id}/withdrawal-requests", goal.Requests)
	mux.HandleFunc("GET /api/withdrawal-requests/requester/{address}", goal.RequesterRequests)
	mux.HandleFunc("GET /api/withdrawal-requests/pending", middleware.RequireWallet(goal.PendingApprovals))
	mux.HandleFunc("POST /api/goals/{id}/export", middleware.RequireWallet(goal.Export))

	// ============================================================================
	// LEDGER VIEWS
	// ============================================================================

	mux.HandleFunc("GET /api/ledger/stats", ledger.Stats)
	mux.HandleFunc("GET /api/ledger/users/{address}", ledger.User)
	mux.HandleFunc("GET /api/price", ledger.Price)

	// ============================================================================
	// TRANSACTIONS (wallet required, rate limited per wallet)
	// ============================================================================

	limit := middleware.RateLimit(app.SubmissionLimiter)
	submit := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.RequireWallet(limit(h))
	}

	mux.HandleFunc("POST /api/tx/goals", submit(tx.CreateGoals))
	mux.HandleFunc("POST /api/tx/deposit", submit(tx.Deposit))
	mux.HandleFunc("POST /api/tx/withdrawal-requests", submit(tx.RequestWithdrawal))
	mux.HandleFunc("POST /api/tx/withdrawal-approvals", submit(tx.ApproveWithdrawal))
	mux.HandleFunc("POST /api/tx/withdrawals", submit(tx.ExecuteWithdrawal))
	mux.HandleFunc("POST /api/tx/rewards", submit(tx.ClaimReward))

	// Previews build and check the plan without submitting
	mux.HandleFunc("POST /api/tx/preview/goals", middleware.RequireWallet(tx.PreviewCreateGoals))
	mux.HandleFunc("POST /api/tx/preview/deposit", middleware.RequireWallet(tx.PreviewDeposit))
	mux.HandleFunc("POST /api/tx/preview/withdrawal-requests", middleware.RequireWallet(tx.PreviewRequestWithdrawal))
	mux.HandleFunc("POST /api/tx/preview/withdrawal-approvals", middleware.RequireWallet(tx.PreviewApproveWithdrawal))
	mux.HandleFunc("POST /api/tx/preview/withdrawals", middleware.RequireWallet(tx.PreviewExecuteWithdrawal))
	mux.HandleFunc("POST /api/tx/preview/rewards", middleware.RequireWallet(tx.PreviewClaimReward))

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/{path...}", health.NotFound)

	// Global middleware - executed in order (top to bottom)
	return middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.RequestLogging,
		middleware.CORS(app.Cfg.CORSOrigins), // answers preflight before auth
		middleware.Config(app.Cfg),
		middleware.Auth(app.AuthService),
	)
}
