// Package portfolio aggregates read-only views over the exchange: valued
// balance snapshots and bounded order-history listings for the dashboard.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dawoonj/krwbot/core"
	"github.com/dawoonj/krwbot/market"

	"github.com/jpillora/backoff"
	"github.com/samber/lo"
)

const (
	readAttempts = 3
	maxPages     = 5
	pageLimit    = 100
)

// Asset is one valued position in the snapshot.
type Asset struct {
	Currency    string  `json:"currency"`
	Balance     float64 `json:"balance"`
	Locked      float64 `json:"locked"`
	AvgBuyPrice float64 `json:"avg_buy_price"`
	Price       float64 `json:"price"`
	Value       float64 `json:"value"`
	PnLPercent  float64 `json:"pnl_percent"`
}

// Summary is the aggregated portfolio. Ticker or market-list failures
// degrade to warnings; only the balance fetch itself is fatal.
type Summary struct {
	TotalValue float64  `json:"total_value"`
	TotalPnL   float64  `json:"total_pnl"`
	Assets     []Asset  `json:"assets"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Service reads through the broker. It applies its own retry and paging caps
// because the signed client deliberately performs no retries; everything
// retried here is an idempotent GET.
type Service struct {
	broker core.Broker
	log    core.Logger
}

func NewService(broker core.Broker, log core.Logger) *Service {
	return &Service{broker: broker, log: log}
}

// retryRead runs an idempotent fetch with capped exponential backoff.
func retryRead[T any](ctx context.Context, fetch func() (T, error)) (T, error) {
	delay := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Jitter: true}

	var (
		result T
		err    error
	)
	for attempt := 0; attempt < readAttempts; attempt++ {
		result, err = fetch()
		if err == nil {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay.Duration()):
		}
	}
	return result, err
}

// Snapshot values every held asset at the last traded price.
func (s *Service) Snapshot(ctx context.Context) (Summary, error) {
	balances, err := retryRead(ctx, func() ([]core.Balance, error) {
		return s.broker.Accounts(ctx)
	})
	if err != nil {
		return Summary{}, fmt.Errorf("fetch accounts: %w", err)
	}

	held := lo.Filter(balances, func(b core.Balance, _ int) bool {
		return b.Total() > 0
	})
	markets := lo.FilterMap(held, func(b core.Balance, _ int) (string, bool) {
		if b.Currency == market.DefaultQuote {
			return "", false
		}
		return market.DefaultQuote + "-" + b.Currency, true
	})

	summary := Summary{}

	markets, warning := s.validMarkets(ctx, markets)
	if warning != "" {
		summary.Warnings = append(summary.Warnings, warning)
	}

	prices := make(map[string]float64)
	if len(markets) > 0 {
		tickers, err := retryRead(ctx, func() ([]core.Ticker, error) {
			return s.broker.Ticker(ctx, markets)
		})
		if err != nil {
			s.log.WithError(err).Warn("ticker fetch failed")
			summary.Warnings = append(summary.Warnings, "ticker fetch failed: "+err.Error())
		}
		for _, t := range tickers {
			prices[t.Market] = t.TradePrice
		}
	}

	for _, b := range held {
		asset := Asset{
			Currency:    b.Currency,
			Balance:     b.Balance,
			Locked:      b.Locked,
			AvgBuyPrice: b.AvgBuyPrice,
		}
		if b.Currency == market.DefaultQuote {
			asset.Price = 1
			asset.Value = b.Total()
		} else {
			asset.Price = prices[market.DefaultQuote+"-"+b.Currency]
			asset.Value = asset.Price * b.Total()
			if asset.Price > 0 && b.AvgBuyPrice > 0 {
				asset.PnLPercent = (asset.Price/b.AvgBuyPrice - 1) * 100
				summary.TotalPnL += (asset.Price - b.AvgBuyPrice) * b.Total()
			}
		}
		summary.TotalValue += asset.Value
		summary.Assets = append(summary.Assets, asset)
	}

	sort.Slice(summary.Assets, func(i, j int) bool {
		return summary.Assets[i].Value > summary.Assets[j].Value
	})

	return summary, nil
}

// validMarkets drops symbols the exchange does not list, so a stray balance
// entry cannot poison the ticker call. Failure to list markets degrades to a
// warning and leaves the input unfiltered.
func (s *Service) validMarkets(ctx context.Context, markets []string) ([]string, string) {
	if len(markets) == 0 {
		return markets, ""
	}
	listed, err := retryRead(ctx, func() ([]core.MarketInfo, error) {
		return s.broker.Markets(ctx)
	})
	if err != nil {
		s.log.WithError(err).Warn("market list fetch failed")
		return markets, "market list fetch failed: " + err.Error()
	}

	known := lo.SliceToMap(listed, func(m core.MarketInfo) (string, bool) {
		return m.Market, true
	})
	return lo.Filter(markets, func(m string, _ int) bool {
		return known[m]
	}), ""
}

// History is a capped order listing.
type History struct {
	Orders []core.Order `json:"orders"`
	Capped bool         `json:"capped"`
}

// Orders pages through open or closed orders, bounded by a page cap so an
// account with deep history cannot stall the dashboard.
func (s *Service) Orders(ctx context.Context, open bool, states []string) (History, error) {
	var history History

	for page := 1; page <= maxPages; page++ {
		query := core.OrderQuery{States: states, Page: page, Limit: pageLimit, OrderBy: "desc"}

		batch, err := retryRead(ctx, func() ([]core.Order, error) {
			if open {
				return s.broker.OpenOrders(ctx, query)
			}
			return s.broker.ClosedOrders(ctx, query)
		})
		if err != nil {
			return history, fmt.Errorf("fetch orders page %d: %w", page, err)
		}

		history.Orders = append(history.Orders, batch...)
		if len(batch) < pageLimit {
			return history, nil
		}
	}

	history.Capped = true
	return history, nil
}
