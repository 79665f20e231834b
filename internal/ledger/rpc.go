package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/templui/piggybank/internal/apperr"
)

const (
	methodGetObject   = "sui_getObject"
	methodQueryEvents = "suix_queryEvents"
	methodExecute     = "gateway_executeOperations"
)

// Messages the ledger uses when a shared object is contended. Those submissions
// may succeed if the caller tries again later.
var contentionMarkers = []string{
	"ObjectVersionUnavailableForConsumption",
	"ObjectLockConflict",
	"contended",
}

var commandIndexPattern = regexp.MustCompile(`in command (\d+)`)

type ClientConfig struct {
	URL                string
	Timeout            time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Client talks JSON-RPC 2.0 to the ledger gateway. Every call goes through one
// circuit breaker so a dead gateway fails fast instead of stacking timeouts.
type Client struct {
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	requestID  atomic.Uint64
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenTimeout == 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "ledger-gateway",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		// Only transport trouble counts against the gateway. A rejected submission
		// or a missing object is a healthy answer.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, apperr.ErrTransientUnavailable)
		},
	}

	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) GetObject(ctx context.Context, id string) (*Object, error) {
	var result struct {
		Data *struct {
			ObjectID string `json:"objectId"`
			Version  string `json:"version"`
			Type     string `json:"type"`
			Content  *struct {
				DataType string          `json:"dataType"`
				Type     string          `json:"type"`
				Fields   json.RawMessage `json:"fields"`
			} `json:"content"`
		} `json:"data"`
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}

	options := map[string]bool{"showContent": true, "showType": true}
	err := c.do(ctx, methodGetObject, []any{id, options}, &result)
	if err != nil {
		return nil, wrapReadError(err, methodGetObject)
	}

	if result.Error != nil || result.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	if result.Data.Content == nil || len(result.Data.Content.Fields) == 0 {
		return nil, apperr.ErrCorruptLedgerEntry.WithDetail("object_id", id).WithDetail("reason", "object has no move content")
	}

	objType := result.Data.Type
	if objType == "" {
		objType = result.Data.Content.Type
	}

	return &Object{
		ID:      result.Data.ObjectID,
		Version: result.Data.Version,
		Type:    objType,
		Fields:  result.Data.Content.Fields,
	}, nil
}

func (c *Client) QueryEvents(ctx context.Context, q EventQuery) (*EventPage, error) {
	var filter any
	if q.Filter.MoveEventType != "" {
		filter = map[string]string{"MoveEventType": q.Filter.MoveEventType}
	} else {
		filter = map[string]any{"MoveModule": map[string]string{
			"package": q.Filter.Package,
			"module":  q.Filter.Module,
		}}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var cursor any
	if q.Cursor != nil {
		cursor = q.Cursor
	}

	page := &EventPage{}
	err := c.do(ctx, methodQueryEvents, []any{filter, cursor, limit, false}, page)
	if err != nil {
		return nil, wrapReadError(err, methodQueryEvents)
	}
	return page, nil
}

// Submit sends the commands for atomic execution. It is never retried here.
func (c *Client) Submit(ctx context.Context, sub Submission) (*Confirmation, error) {
	options := map[string]bool{
		"showEffects":        true,
		"showObjectChanges":  true,
		"showBalanceChanges": true,
		"showEvents":         true,
	}

	conf := &Confirmation{}
	err := c.do(ctx, methodExecute, []any{sub, options}, conf)
	if err != nil {
		return nil, classifySubmitError(err)
	}

	if !conf.Succeeded() {
		step := FailedCommandIndex(conf.Effects.Status.Error)
		return conf, apperr.LedgerRejected(step, conf.Effects.Status.Error).WithDetail("digest", conf.Digest)
	}

	return conf, nil
}

// FailedCommandIndex extracts the aborting command index from a ledger failure
// message, or -1 when the message names none.
func FailedCommandIndex(message string) int {
	m := commandIndexPattern.FindStringSubmatch(message)
	if m == nil {
		return -1
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return idx
}

// classifySubmitError keeps TransientUnavailable for submissions the gateway refused
// before execution: an open breaker or a contended shared object. A transport failure,
// timeout or bad gateway status may come after the ledger executed the submission, so
// its outcome is unknown and it must not be presented as safe to resend.
func classifySubmitError(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		for _, marker := range contentionMarkers {
			if strings.Contains(rpcErr.Message, marker) {
				return apperr.ErrTransientUnavailable.WithError(rpcErr).WithDetail("reason", "shared object contended, retry later")
			}
		}
		return apperr.LedgerRejected(-1, rpcErr.Message).WithError(rpcErr)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return err
	}
	return apperr.ErrOutcomeUnknown.WithError(err).WithDetail("method", methodExecute)
}

func wrapReadError(err error, method string) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return apperr.Wrap(rpcErr, apperr.KindInternal, method+" failed")
	}
	return err
}

func (c *Client) do(ctx context.Context, method string, params []any, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.call(ctx, method, params, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.ErrTransientUnavailable.WithError(err).WithDetail("method", method)
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.From(ctx.Err())
		}
		return apperr.ErrTransientUnavailable.WithError(err).WithDetail("method", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperr.ErrTransientUnavailable.WithDetail("method", method).WithDetail("status", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.KindInternal, "unexpected gateway status").WithDetail("method", method).WithDetail("status", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return apperr.ErrCorruptLedgerEntry.WithError(err).WithDetail("method", method)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return apperr.ErrCorruptLedgerEntry.WithError(err).WithDetail("method", method)
	}
	return nil
}
