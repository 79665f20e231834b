package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/piggybank/internal/apperr"
)

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newGateway(t *testing.T, handle func(call rpcCall) (int, string)) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var call rpcCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		status, body := handle(call)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{URL: srv.URL, Timeout: 2 * time.Second, BreakerMaxFailures: 2, BreakerOpenTimeout: time.Minute}), &hits
}

func TestGetObject(t *testing.T) {
	client, _ := newGateway(t, func(call rpcCall) (int, string) {
		assert.Equal(t, methodGetObject, call.Method)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"data":{"objectId":"0xabc","version":"7","type":"0x1::savings_goal::GlobalLedger",
			"content":{"dataType":"moveObject","type":"0x1::savings_goal::GlobalLedger","fields":{"admin":"0xad"}}}}}`
	})

	obj, err := client.GetObject(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", obj.ID)
	assert.Equal(t, "0x1::savings_goal::GlobalLedger", obj.Type)
	assert.JSONEq(t, `{"admin":"0xad"}`, string(obj.Fields))
}

func TestGetObjectNotFound(t *testing.T) {
	client, _ := newGateway(t, func(call rpcCall) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"error":{"code":"notExists","object_id":"0xabc"}}}`
	})

	_, err := client.GetObject(context.Background(), "0xabc")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestGatewayUnavailableIsTransient(t *testing.T) {
	client, _ := newGateway(t, func(call rpcCall) (int, string) {
		return http.StatusServiceUnavailable, "down"
	})

	_, err := client.GetObject(context.Background(), "0xabc")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTransientUnavailable)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.Retryable())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, hits := newGateway(t, func(call rpcCall) (int, string) {
		return http.StatusBadGateway, ""
	})

	for i := 0; i < 2; i++ {
		_, err := client.GetObject(context.Background(), "0xabc")
		require.ErrorIs(t, err, apperr.ErrTransientUnavailable)
	}

	_, err := client.GetObject(context.Background(), "0xabc")
	assert.ErrorIs(t, err, apperr.ErrTransientUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the gateway")
}

func TestSubmitFailureCarriesCommandIndex(t *testing.T) {
	client, _ := newGateway(t, func(call rpcCall) (int, string) {
		assert.Equal(t, methodExecute, call.Method)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"digest":"9xDigest","effects":{"status":{"status":"failure",
			"error":"MoveAbort(MoveLocation { module: savings_goal, function: 3 }, 2) in command 2"}},"objectChanges":[]}}`
	})

	conf, err := client.Submit(context.Background(), Submission{Sender: "0xa"})
	require.Error(t, err)
	require.NotNil(t, conf)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindLedgerRejected, appErr.Kind)
	assert.Equal(t, 2, appErr.Details["step_index"])
	assert.Equal(t, "9xDigest", appErr.Details["digest"])
}

func TestSubmitContentionIsTransient(t *testing.T) {
	client, _ := newGateway(t, func(call rpcCall) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"ObjectVersionUnavailableForConsumption for 0xledger"}}`
	})

	_, err := client.Submit(context.Background(), Submission{Sender: "0xa"})
	assert.ErrorIs(t, err, apperr.ErrTransientUnavailable)
}

func TestSubmitTimeoutOutcomeUnknown(t *testing.T) {
	var applied atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		applied.Add(1)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"digest":"late","effects":{"status":{"status":"success"}}}}`))
	}))
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{URL: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := client.Submit(context.Background(), Submission{Sender: "0xa"})
	require.ErrorIs(t, err, apperr.ErrOutcomeUnknown)
	assert.NotErrorIs(t, err, apperr.ErrTransientUnavailable)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.False(t, appErr.Retryable())
	assert.Equal(t, http.StatusGatewayTimeout, appErr.StatusCode())
	assert.Equal(t, int32(1), applied.Load())
}

func TestSubmitGatewayErrorOutcomeUnknown(t *testing.T) {
	for _, status := range []int{http.StatusBadGateway, http.StatusTooManyRequests} {
		client, _ := newGateway(t, func(call rpcCall) (int, string) {
			return status, ""
		})

		_, err := client.Submit(context.Background(), Submission{Sender: "0xa"})
		assert.ErrorIs(t, err, apperr.ErrOutcomeUnknown, "status %d", status)
	}
}

func TestSubmitBreakerOpenIsTransient(t *testing.T) {
	client, hits := newGateway(t, func(call rpcCall) (int, string) {
		return http.StatusBadGateway, ""
	})
	for i := 0; i < 2; i++ {
		_, _ = client.GetObject(context.Background(), "0xabc")
	}

	_, err := client.Submit(context.Background(), Submission{Sender: "0xa"})
	assert.ErrorIs(t, err, apperr.ErrTransientUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "submission never reached the gateway")
}

func TestSubmitSuccess(t *testing.T) {
	client, _ := newGateway(t, func(call rpcCall) (int, string) {
		var sub Submission
		require.NoError(t, json.Unmarshal(call.Params[0], &sub))
		assert.Len(t, sub.Commands, 1)
		assert.Equal(t, "0x1::savings_goal::deposit", sub.Commands[0].Target)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"digest":"ok","effects":{"status":{"status":"success"}},
			"objectChanges":[{"type":"created","objectId":"0xnew","objectType":"0x1::savings_goal::SavingsGoal"}]}}`
	})

	conf, err := client.Submit(context.Background(), Submission{Sender: "0xa", Commands: []Command{{
		Kind:      CommandMoveCall,
		Target:    "0x1::savings_goal::deposit",
		Arguments: []Arg{ObjectArg("0xledger"), U64(5)},
	}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", conf.Digest)
	assert.Len(t, conf.CreatedObjects("::SavingsGoal"), 1)
}

func TestQueryEvents(t *testing.T) {
	client, _ := newGateway(t, func(call rpcCall) (int, string) {
		assert.Equal(t, methodQueryEvents, call.Method)
		assert.JSONEq(t, `{"MoveEventType":"0x1::savings_goal::DepositMade"}`, string(call.Params[0]))
		assert.JSONEq(t, `{"txDigest":"d1","eventSeq":"0"}`, string(call.Params[1]))
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"data":[{"id":{"txDigest":"d2","eventSeq":"0"},"type":"0x1::savings_goal::DepositMade","parsedJson":{}}],
			"nextCursor":{"txDigest":"d2","eventSeq":"0"},"hasNextPage":false}}`
	})

	page, err := client.QueryEvents(context.Background(), EventQuery{
		Filter: EventFilter{MoveEventType: "0x1::savings_goal::DepositMade"},
		Cursor: &EventID{TxDigest: "d1", EventSeq: "0"},
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "d2", page.NextCursor.TxDigest)
}

func TestFailedCommandIndex(t *testing.T) {
	assert.Equal(t, 0, FailedCommandIndex("InsufficientCoinBalance in command 0"))
	assert.Equal(t, 12, FailedCommandIndex("MoveAbort(...) in command 12"))
	assert.Equal(t, -1, FailedCommandIndex("InsufficientGas"))
}
