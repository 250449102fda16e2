package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dawoonj/krwbot/core"

	"github.com/shopspring/decimal"
)

// Upbit implements core.Broker with typed wrappers over the signed client.
type Upbit struct {
	client *Client
}

func NewBroker(client *Client) *Upbit {
	return &Upbit{client: client}
}

// Client exposes the underlying signed client, for rate-limit diagnostics.
func (u *Upbit) Client() *Client {
	return u.client
}

type accountPayload struct {
	Currency     string `json:"currency"`
	Balance      string `json:"balance"`
	Locked       string `json:"locked"`
	AvgBuyPrice  string `json:"avg_buy_price"`
	UnitCurrency string `json:"unit_currency"`
}

func toFloat(value string) float64 {
	if value == "" {
		return 0
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// Accounts fetches the full balance snapshot.
func (u *Upbit) Accounts(ctx context.Context) ([]core.Balance, error) {
	raw, err := u.client.Do(ctx, http.MethodGet, "/v1/accounts", nil, nil, true)
	if err != nil {
		return nil, err
	}

	var payload []accountPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}

	balances := make([]core.Balance, 0, len(payload))
	for _, item := range payload {
		balances = append(balances, core.Balance{
			Currency:     strings.ToUpper(item.Currency),
			Balance:      toFloat(item.Balance),
			Locked:       toFloat(item.Locked),
			AvgBuyPrice:  toFloat(item.AvgBuyPrice),
			UnitCurrency: strings.ToUpper(item.UnitCurrency),
		})
	}
	return balances, nil
}

// Ticker returns last traded prices for the given markets.
func (u *Upbit) Ticker(ctx context.Context, markets []string) ([]core.Ticker, error) {
	if len(markets) == 0 {
		return nil, nil
	}
	raw, err := u.client.Do(ctx, http.MethodGet, "/v1/ticker", Params{
		"markets": strings.Join(markets, ","),
	}, nil, false)
	if err != nil {
		return nil, err
	}

	var tickers []core.Ticker
	if err := json.Unmarshal(raw, &tickers); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	return tickers, nil
}

// Markets lists every tradable market.
func (u *Upbit) Markets(ctx context.Context) ([]core.MarketInfo, error) {
	raw, err := u.client.Do(ctx, http.MethodGet, "/v1/market/all", Params{
		"isDetails": "false",
	}, nil, false)
	if err != nil {
		return nil, err
	}

	var markets []core.MarketInfo
	if err := json.Unmarshal(raw, &markets); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	return markets, nil
}

// Order fetches a single order by uuid.
func (u *Upbit) Order(ctx context.Context, orderUUID string) (core.Order, error) {
	raw, err := u.client.Do(ctx, http.MethodGet, "/v1/order", Params{
		"uuid": orderUUID,
	}, nil, true)
	if err != nil {
		return core.Order{}, err
	}
	return decodeOrder(raw)
}

func orderQueryParams(q core.OrderQuery) Params {
	return Params{
		"market":   q.Market,
		"states":   q.States,
		"page":     q.Page,
		"limit":    q.Limit,
		"order_by": q.OrderBy,
	}
}

// OpenOrders lists orders still on the book.
func (u *Upbit) OpenOrders(ctx context.Context, q core.OrderQuery) ([]core.Order, error) {
	raw, err := u.client.Do(ctx, http.MethodGet, "/v1/orders/open", orderQueryParams(q), nil, true)
	if err != nil {
		return nil, err
	}
	return decodeOrders(raw)
}

// ClosedOrders lists finished (done/cancel) orders.
func (u *Upbit) ClosedOrders(ctx context.Context, q core.OrderQuery) ([]core.Order, error) {
	raw, err := u.client.Do(ctx, http.MethodGet, "/v1/orders/closed", orderQueryParams(q), nil, true)
	if err != nil {
		return nil, err
	}
	return decodeOrders(raw)
}

// CreateOrder submits a new order.
func (u *Upbit) CreateOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	raw, err := u.client.Do(ctx, http.MethodPost, "/v1/orders", nil, Params{
		"market":     req.Market,
		"side":       string(req.Side),
		"ord_type":   string(req.OrdType),
		"volume":     req.Volume,
		"price":      req.Price,
		"identifier": req.Identifier,
	}, true)
	if err != nil {
		return core.Order{}, err
	}
	return decodeOrder(raw)
}

// CancelOrder requests cancellation of an open order.
func (u *Upbit) CancelOrder(ctx context.Context, orderUUID string) (core.Order, error) {
	raw, err := u.client.Do(ctx, http.MethodDelete, "/v1/order", Params{
		"uuid": orderUUID,
	}, nil, true)
	if err != nil {
		return core.Order{}, err
	}
	return decodeOrder(raw)
}

func decodeOrder(raw json.RawMessage) (core.Order, error) {
	var order core.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return core.Order{}, fmt.Errorf("decode order: %w", err)
	}
	return order, nil
}

func decodeOrders(raw json.RawMessage) ([]core.Order, error) {
	var orders []core.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}
