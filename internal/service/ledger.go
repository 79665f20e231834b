package service

import (
	"context"
	"errors"

	"github.com/templui/piggybank/internal/aggregator"
	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/oracle"
	"github.com/templui/piggybank/internal/refresh"
	"github.com/templui/piggybank/internal/units"
	"github.com/templui/piggybank/internal/validation"
	"golang.org/x/text/language"
)

// PriceSource returns the latest known quote. *oracle.Poller implements it.
type PriceSource interface {
	Latest() (oracle.Quote, bool)
}

// UserLedger is a depositor's ledger view with display totals. The fiat estimate is
// present only when a price is known.
type UserLedger struct {
	model.UserView
	TotalDeposits string        `json:"total_deposits"`
	TotalRewards  string        `json:"total_rewards"`
	Symbol        string        `json:"symbol"`
	RewardsFiat   string        `json:"rewards_fiat,omitempty"`
	Quote         *oracle.Quote `json:"quote,omitempty"`
}

type LedgerService struct {
	ledger LedgerLoader
	cache  refresh.Cache
	prices PriceSource
	base   units.Converter
}

func NewLedgerService(ledger LedgerLoader, cache refresh.Cache, prices PriceSource, base units.Converter) *LedgerService {
	return &LedgerService{
		ledger: ledger,
		cache:  cache,
		prices: prices,
		base:   base,
	}
}

func (s *LedgerService) UserView(ctx context.Context, address string) (*UserLedger, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, apperr.Validation([]string{err.Error()})
	}
	address = validation.NormalizeAddress(address)

	key, err := refresh.View(refresh.ViewUserLedger, refresh.Scope{Caller: address})
	if err != nil {
		return nil, err
	}

	view, err := cached(ctx, s.cache, key, func() (model.UserView, error) {
		gl, err := s.load(ctx)
		if err != nil {
			return model.UserView{}, err
		}
		return aggregator.DeriveUserView(gl, address)
	})
	if err != nil {
		return nil, err
	}

	out := &UserLedger{
		UserView:      view,
		TotalDeposits: s.base.FormatUint(view.TotalDeposits()),
		TotalRewards:  s.base.FormatUint(view.TotalRewards()),
		Symbol:        s.base.Symbol,
	}
	if q, ok := s.Price(); ok {
		out.Quote = &q
		out.RewardsFiat = oracle.FormatFiat(oracle.Estimate(view.TotalRewards(), s.base, q), language.English)
	}
	return out, nil
}

func (s *LedgerService) Stats(ctx context.Context) (model.LedgerStats, error) {
	return cached(ctx, s.cache, refresh.ViewLedgerStats, func() (model.LedgerStats, error) {
		gl, err := s.load(ctx)
		if err != nil {
			return model.LedgerStats{}, err
		}
		return aggregator.Stats(gl), nil
	})
}

// Price returns the latest quote for the base asset, false when unknown.
func (s *LedgerService) Price() (oracle.Quote, bool) {
	if s.prices == nil {
		return oracle.Quote{}, false
	}
	return s.prices.Latest()
}

func (s *LedgerService) load(ctx context.Context) (*model.GlobalLedger, error) {
	gl, err := s.ledger.Load(ctx)
	if errors.Is(err, aggregator.ErrLedgerNotFound) {
		return nil, apperr.Wrap(err, apperr.KindTransientUnavailable, "global ledger not yet available")
	}
	return gl, err
}
