package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKinds = []OperationKind{
	OpCreateGoal,
	OpDeposit,
	OpRequestWithdrawal,
	OpApproveWithdrawal,
	OpExecuteWithdrawal,
	OpClaimReward,
}

var fullScope = Scope{GoalID: "0xg1", Caller: "0xalice", Requester: "0xbob", Guardian: "0xgrace"}

func TestEveryKindHasDeclaredViews(t *testing.T) {
	assert.ElementsMatch(t, allKinds, Kinds())

	for _, kind := range allKinds {
		templates, ok := Templates(kind)
		require.True(t, ok, kind)
		assert.NotEmpty(t, templates, kind)

		keys, err := Keys(kind, fullScope)
		require.NoError(t, err, kind)
		assert.Len(t, keys, len(templates))
	}
}

func TestExecuteWithdrawalInvalidatesRequesterIndex(t *testing.T) {
	keys, err := Keys(OpExecuteWithdrawal, fullScope)
	require.NoError(t, err)

	assert.Contains(t, keys, "requests:requester:0xbob")
	assert.Contains(t, keys, "goal:0xg1:withdrawals")
	assert.Contains(t, keys, "goal:0xg1")
	assert.Contains(t, keys, "ledger:users|0xalice")
}

func TestDepositKeys(t *testing.T) {
	keys, err := Keys(OpDeposit, Scope{GoalID: "0xg1", Caller: "0xalice"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"goals:list",
		"goal:0xg1",
		"goal:0xg1:deposits",
		"ledger:users|0xalice",
		"ledger:stats",
	}, keys)
}

func TestSplitDropsEveryUserLedger(t *testing.T) {
	keys, err := Keys(OpDeposit, Scope{GoalID: "0xg1", Caller: "0xalice", RewardsSplit: true})
	require.NoError(t, err)
	assert.Contains(t, keys, ViewAllUserLedgers)

	keys, err = Keys(OpClaimReward, Scope{GoalID: "0xg1", Caller: "0xalice", RewardsSplit: true})
	require.NoError(t, err)
	assert.Contains(t, keys, ViewAllUserLedgers)
}

func TestRequestWithdrawalDropsGuardianQueue(t *testing.T) {
	keys, err := Keys(OpRequestWithdrawal, Scope{GoalID: "0xg1", Caller: "0xbob", Requester: "0xbob", Guardian: "0xgrace"})
	require.NoError(t, err)
	assert.Contains(t, keys, "requests:pending|0xgrace")

	keys, err = Keys(OpRequestWithdrawal, Scope{GoalID: "0xg1", Caller: "0xbob", Requester: "0xbob"})
	require.NoError(t, err, "unknown guardian falls back to every queue")
	assert.Contains(t, keys, ViewAllPending)
}

func TestKeysErrors(t *testing.T) {
	_, err := Keys(OperationKind("teleport"), fullScope)
	assert.Error(t, err)

	_, err = Keys(OpExecuteWithdrawal, Scope{GoalID: "0xg1", Caller: "0xalice"})
	assert.Error(t, err, "requester is required for execute")
}

func seed(t *testing.T, cache Cache, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, cache.Set(context.Background(), k, []byte("v")))
	}
}

func present(t *testing.T, cache Cache, key string) bool {
	t.Helper()
	_, ok, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func testCoordinator(t *testing.T, cache Cache) {
	ctx := context.Background()
	seed(t, cache,
		"goals:list",
		Variant("goals:list", "page=2&limit=10"),
		"goal:0xg1",
		"goal:0xg1:deposits",
		"goal:0xg2:deposits",
		"ledger:users|0xalice",
		"ledger:users|0xcarol",
		"ledger:stats",
		"requests:requester:0xbob",
		Variant("requests:pending|0xgrace", "page=1&limit=10"),
		Variant("requests:pending|0xhank", "page=1&limit=10"),
	)

	keys, err := NewCoordinator(cache).Invalidate(ctx, OpDeposit, Scope{GoalID: "0xg1", Caller: "0xalice"})
	require.NoError(t, err)
	assert.Len(t, keys, 5)

	assert.False(t, present(t, cache, "goals:list"))
	assert.False(t, present(t, cache, Variant("goals:list", "page=2&limit=10")))
	assert.False(t, present(t, cache, "goal:0xg1"))
	assert.False(t, present(t, cache, "goal:0xg1:deposits"))
	assert.False(t, present(t, cache, "ledger:users|0xalice"))
	assert.False(t, present(t, cache, "ledger:stats"))

	assert.True(t, present(t, cache, "goal:0xg2:deposits"))
	assert.True(t, present(t, cache, "ledger:users|0xcarol"))
	assert.True(t, present(t, cache, "requests:requester:0xbob"))

	_, err = NewCoordinator(cache).Invalidate(ctx, OpRequestWithdrawal, Scope{GoalID: "0xg1", Caller: "0xbob", Requester: "0xbob", Guardian: "0xgrace"})
	require.NoError(t, err)
	assert.False(t, present(t, cache, Variant("requests:pending|0xgrace", "page=1&limit=10")))
	assert.True(t, present(t, cache, Variant("requests:pending|0xhank", "page=1&limit=10")))

	_, err = NewCoordinator(cache).Invalidate(ctx, OpDeposit, Scope{GoalID: "0xg1", Caller: "0xalice", RewardsSplit: true})
	require.NoError(t, err)
	assert.False(t, present(t, cache, "ledger:users|0xcarol"))
}

func TestCoordinatorMemoryCache(t *testing.T) {
	testCoordinator(t, NewMemoryCache(time.Minute))
}

func TestCoordinatorRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	testCoordinator(t, NewRedisCache(client, "piggybank:", time.Minute))
}

func TestMemoryCacheExpires(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(context.Background(), "k", []byte("v")))
	assert.True(t, present(t, cache, "k"))

	now = now.Add(2 * time.Minute)
	assert.False(t, present(t, cache, "k"))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	client2, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client2.Close() })
}
