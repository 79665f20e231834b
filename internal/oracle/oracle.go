package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/units"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultRetries      = 3
	DefaultBaseInterval = 1 * time.Second
	DefaultMaxInterval  = 30 * time.Second
)

// Quote is the fiat price of one display unit of an asset.
type Quote struct {
	Asset string          `json:"asset"`
	Price decimal.Decimal `json:"price"`
	At    time.Time       `json:"at"`
}

type ClientConfig struct {
	URL          string
	Timeout      time.Duration
	Retries      uint64
	BaseInterval time.Duration
	MaxInterval  time.Duration
}

// Client reads prices from the oracle feed with bounded exponential backoff.
type Client struct {
	url        string
	httpClient *http.Client
	retries    uint64
	base       time.Duration
	max        time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.BaseInterval == 0 {
		cfg.BaseInterval = DefaultBaseInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retries:    cfg.Retries,
		base:       cfg.BaseInterval,
		max:        cfg.MaxInterval,
	}
}

type priceResponse struct {
	Price *string `json:"price"`
}

// Price fetches the current price of asset. Server errors and network failures are
// retried; a malformed answer or a 4xx is not.
func (c *Client) Price(ctx context.Context, asset string) (Quote, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.base
	b.MaxInterval = c.max
	b.MaxElapsedTime = 0

	var quote Quote
	op := func() error {
		q, err := c.fetch(ctx, asset)
		if err != nil {
			return err
		}
		quote = q
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("oracle read failed, retrying", "error", err, "asset", asset, "wait", wait)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx), notify)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return Quote{}, err
		}
		return Quote{}, apperr.ErrTransientUnavailable.WithError(err).WithDetail("source", "oracle")
	}
	return quote, nil
}

func (c *Client) fetch(ctx context.Context, asset string) (Quote, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return Quote{}, backoff.Permanent(fmt.Errorf("invalid oracle url: %w", err))
	}
	q := u.Query()
	q.Set("asset", asset)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Quote{}, backoff.Permanent(fmt.Errorf("failed to build oracle request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Quote{}, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, backoff.Permanent(apperr.New(apperr.KindInternal, "oracle request refused").
			WithDetail("status", resp.StatusCode))
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Price == nil {
		return Quote{}, backoff.Permanent(apperr.New(apperr.KindInternal, "malformed oracle answer"))
	}
	price, err := decimal.NewFromString(*body.Price)
	if err != nil || price.IsNegative() {
		return Quote{}, backoff.Permanent(apperr.New(apperr.KindInternal, "malformed oracle answer").
			WithDetail("price", *body.Price))
	}

	return Quote{Asset: asset, Price: price, At: time.Now().UTC()}, nil
}

// Poller keeps the latest quote for one asset. Readers never wait on the feed.
type Poller struct {
	client   *Client
	asset    string
	interval time.Duration

	mu     sync.RWMutex
	latest Quote
	ok     bool
}

func NewPoller(client *Client, asset string, interval time.Duration) *Poller {
	return &Poller{client: client, asset: asset, interval: interval}
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) Refresh(ctx context.Context) {
	q, err := p.client.Price(ctx, p.asset)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("failed to refresh price", "error", err, "asset", p.asset)
		}
		return
	}
	p.mu.Lock()
	p.latest, p.ok = q, true
	p.mu.Unlock()
}

// Latest returns the most recent quote, false when none has been read yet.
func (p *Poller) Latest() (Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.ok
}

// Estimate values a smallest-unit amount in fiat.
func Estimate(amount uint64, conv units.Converter, q Quote) decimal.Decimal {
	return conv.Decimal(amount).Mul(q.Price).Round(2)
}

// FormatFiat renders a fiat amount with the locale's grouping, e.g. "1,234.50".
func FormatFiat(amount decimal.Decimal, tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("%.2f", amount.InexactFloat64())
}
