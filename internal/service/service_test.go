package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/piggybank/internal/aggregator"
	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/db"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/oracle"
	"github.com/templui/piggybank/internal/refresh"
	"github.com/templui/piggybank/internal/repository"
	"github.com/templui/piggybank/internal/units"
	"github.com/templui/piggybank/internal/validation"
	_ "modernc.org/sqlite"
)

var (
	parent = validation.NormalizeAddress("0xa11ce")
	child  = validation.NormalizeAddress("0xc41d")
	bike   = validation.NormalizeAddress("0xb1ce")
	day0   = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
)

type fakeLedger struct {
	gl    *model.GlobalLedger
	err   error
	loads int
}

func (f *fakeLedger) Load(ctx context.Context) (*model.GlobalLedger, error) {
	f.loads++
	return f.gl, f.err
}

func ledgerWith(balances map[string]map[string]string) *model.GlobalLedger {
	return &model.GlobalLedger{
		Admin:           "0xad",
		DepositBalances: balances,
		RewardBalances:  map[string]map[string]string{},
	}
}

type repos struct {
	goals       repository.GoalRepository
	deposits    repository.DepositRepository
	withdrawals repository.WithdrawalRepository
	requests    repository.WithdrawalRequestRepository
}

func newRepos(t *testing.T) repos {
	t.Helper()
	conn, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn.DB, "sqlite"))

	r := repos{
		goals:       repository.NewGoalRepository(conn),
		deposits:    repository.NewDepositRepository(conn),
		withdrawals: repository.NewWithdrawalRepository(conn),
		requests:    repository.NewWithdrawalRequestRepository(conn),
	}
	require.NoError(t, r.goals.Create(&model.SavingsGoal{
		ID:               bike,
		Name:             "Bike Fund",
		TargetAmount:     100,
		DurationDays:     30,
		GuardianAddress:  parent,
		DependentAddress: child,
		CreatedAt:        day0,
		TxDigest:         "tx1",
	}))
	return r
}

func TestGoalStatusFollowsLedger(t *testing.T) {
	r := newRepos(t)
	fl := &fakeLedger{gl: ledgerWith(map[string]map[string]string{parent: {bike: "10"}})}
	cache := refresh.NewMemoryCache(time.Minute)
	svc := NewGoalService(r.goals, r.deposits, r.withdrawals, r.requests, fl, cache)
	svc.now = func() time.Time { return day0.Add(24 * time.Hour) }
	ctx := context.Background()

	g, err := svc.Goal(ctx, bike)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), g.Balance)
	assert.Equal(t, model.GoalStatusActive, g.Status)

	// served from cache until a deposit invalidates the view
	fl.gl = ledgerWith(map[string]map[string]string{parent: {bike: "10"}, child: {bike: "90"}})
	g, err = svc.Goal(ctx, bike)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), g.Balance)
	assert.Equal(t, 1, fl.loads)

	_, err = refresh.NewCoordinator(cache).Invalidate(ctx, refresh.OpDeposit, refresh.Scope{GoalID: bike, Caller: child})
	require.NoError(t, err)

	g, err = svc.Goal(ctx, bike)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), g.Balance)
	assert.Equal(t, model.GoalStatusCompleted, g.Status)
}

func TestGoalsListExpired(t *testing.T) {
	r := newRepos(t)
	fl := &fakeLedger{gl: ledgerWith(map[string]map[string]string{parent: {bike: "5"}})}
	svc := NewGoalService(r.goals, r.deposits, r.withdrawals, r.requests, fl, nil)
	svc.now = func() time.Time { return day0.Add(31 * 24 * time.Hour) }

	page, err := svc.Goals(context.Background(), model.GoalFilter{GuardianAddress: "0xa11ce"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.GoalStatusExpired, page.Items[0].Status)
}

func TestGoalErrors(t *testing.T) {
	r := newRepos(t)
	fl := &fakeLedger{err: aggregator.ErrLedgerNotFound}
	svc := NewGoalService(r.goals, r.deposits, r.withdrawals, r.requests, fl, nil)

	_, err := svc.Goal(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Goal(context.Background(), bike)
	assert.ErrorIs(t, err, apperr.ErrTransientUnavailable)

	_, err = svc.Requests(context.Background(), model.RequestFilter{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Requests(context.Background(), model.RequestFilter{GoalID: bike, Status: "done"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRequestsAndPendingApprovals(t *testing.T) {
	r := newRepos(t)
	svc := NewGoalService(r.goals, r.deposits, r.withdrawals, r.requests, &fakeLedger{}, refresh.NewMemoryCache(time.Minute))
	require.NoError(t, r.requests.Create(&model.WithdrawalRequest{
		ID: "0xr1", GoalID: bike, Amount: 5, Reason: "bell", Requester: child, CreatedAt: day0, TxDigest: "t",
	}))
	ctx := context.Background()

	pending, err := svc.HasPendingRequest(ctx, "0xc41d", "0xB1CE")
	require.NoError(t, err)
	assert.True(t, pending, "short-form ids match the indexed full form")

	guardian, err := svc.GoalGuardian(ctx, "0xb1ce")
	require.NoError(t, err)
	assert.Equal(t, parent, guardian)

	_, err = svc.GoalGuardian(ctx, "0xdead")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	page, err := svc.Requests(ctx, model.RequestFilter{Requester: "0xc41d", Status: model.OutcomePending})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	approvals, err := svc.PendingApprovals(ctx, "0xa11ce", model.PageFilter{})
	require.NoError(t, err)
	require.Len(t, approvals.Items, 1)
	assert.Equal(t, "0xr1", approvals.Items[0].ID)
}

func TestNormalizePage(t *testing.T) {
	assert.Equal(t, model.PageFilter{Page: 1, Limit: 10}, NormalizePage(0, 0))
	assert.Equal(t, model.PageFilter{Page: 3, Limit: 100}, NormalizePage(3, 500))
}

type staticPrice struct{ q oracle.Quote }

func (s staticPrice) Latest() (oracle.Quote, bool) { return s.q, true }

func TestLedgerServiceUserView(t *testing.T) {
	gl := ledgerWith(map[string]map[string]string{child: {bike: "2000000000"}})
	gl.RewardBalances = map[string]map[string]string{child: {bike: "1500000000000"}}
	gl.TotalGoals = 1

	svc := NewLedgerService(&fakeLedger{gl: gl}, refresh.NewMemoryCache(time.Minute),
		staticPrice{oracle.Quote{Asset: "SUI", Price: decimal.RequireFromString("2")}}, units.New("SUI", 9))

	view, err := svc.UserView(context.Background(), "0xc41d")
	require.NoError(t, err)
	assert.Equal(t, "2", view.TotalDeposits)
	assert.Equal(t, "1500", view.TotalRewards)
	assert.Equal(t, "3,000.00", view.RewardsFiat)

	empty, err := svc.UserView(context.Background(), "0xa11ce")
	require.NoError(t, err)
	assert.Empty(t, empty.Deposits)
	assert.Equal(t, "0.00", empty.RewardsFiat)

	_, err = svc.UserView(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalGoals)
	assert.Equal(t, 1, stats.Depositors)
}

func TestAuthServiceRoundTrip(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)

	token, err := auth.GenerateJWT("0xC41D")
	require.NoError(t, err)

	address, err := auth.VerifyJWT(token)
	require.NoError(t, err)
	assert.Equal(t, child, address)

	_, err = NewAuthService("other", time.Hour).VerifyJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.GenerateJWT("alice")
	assert.Error(t, err)
}

type memoryStorage struct {
	files map[string]string
}

func (m *memoryStorage) Save(ctx context.Context, path string, file io.Reader, contentType string) error {
	b, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	m.files[path] = string(b)
	return nil
}

func (m *memoryStorage) PresignedURL(ctx context.Context, path string) (string, error) {
	return "https://files.test/" + path + "?sig=1", nil
}

func TestExportService(t *testing.T) {
	r := newRepos(t)
	require.NoError(t, r.deposits.Create(&model.Deposit{GoalID: bike, Depositor: parent, Amount: 1500000000, CreatedAt: day0, TxDigest: "d1", EventSeq: "0"}))
	require.NoError(t, r.withdrawals.Create(&model.Withdrawal{GoalID: bike, RequestID: "0xr1", Requester: child, Amount: 500000000, CreatedAt: day0.Add(time.Hour), TxDigest: "w1", EventSeq: "0"}))

	store := &memoryStorage{files: map[string]string{}}
	svc := NewExportService(r.goals, r.deposits, r.withdrawals, store, units.New("SUI", 9))
	svc.now = func() time.Time { return day0 }

	export, err := svc.Export(context.Background(), "0xc41d", bike)
	require.NoError(t, err)
	assert.Equal(t, 2, export.Rows)
	assert.Equal(t, "exports/"+bike+"/20250301T000000Z.csv", export.Path)
	assert.True(t, strings.HasPrefix(export.URL, "https://files.test/"))

	csv := store.files[export.Path]
	assert.Contains(t, csv, "deposit,2025-03-01T00:00:00Z,"+parent+",1500000000,1.5,d1,")
	assert.Contains(t, csv, "withdrawal,2025-03-01T01:00:00Z,"+child+",500000000,0.5,w1,0xr1")

	_, err = svc.Export(context.Background(), "0xbeef", bike)
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	disabled := NewExportService(r.goals, r.deposits, r.withdrawals, nil, units.New("SUI", 9))
	_, err = disabled.Export(context.Background(), "0xc41d", bike)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
