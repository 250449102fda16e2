// Package core holds the domain types and capability interfaces shared by
// every component of the bot.
package core

import "context"

// SideType is the order side.
type SideType string

// OrdType is the exchange order type.
type OrdType string

const (
	SideTypeBuy  SideType = "bid"
	SideTypeSell SideType = "ask"

	// OrdTypeLimit is a limit order with volume and price.
	OrdTypeLimit OrdType = "limit"
	// OrdTypePrice is a market buy denominated in the quote currency.
	OrdTypePrice OrdType = "price"
	// OrdTypeMarket is a market sell denominated in the base currency.
	OrdTypeMarket OrdType = "market"
)

// Ticker is the last traded price for a market.
type Ticker struct {
	Market     string  `json:"market"`
	TradePrice float64 `json:"trade_price"`
}

// MarketInfo describes a tradable market as listed by the exchange.
type MarketInfo struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`
}

// Order mirrors the exchange order resource. Numeric fields stay strings as
// delivered on the wire; the exchange emits arbitrary-precision decimals.
type Order struct {
	UUID           string `json:"uuid"`
	Market         string `json:"market"`
	Side           string `json:"side"`
	OrdType        string `json:"ord_type"`
	State          string `json:"state"`
	Price          string `json:"price"`
	Volume         string `json:"volume"`
	ExecutedVolume string `json:"executed_volume"`
	Funds          string `json:"funds"`
	PaidFee        string `json:"paid_fee"`
	CreatedAt      string `json:"created_at"`
}

// OrderRequest is a new order submission. Volume and Price are pre-formatted
// decimal strings; empty fields are omitted from the request body.
type OrderRequest struct {
	Market     string
	Side       SideType
	OrdType    OrdType
	Volume     string
	Price      string
	Identifier string
}

// OrderQuery filters open/closed order listings.
type OrderQuery struct {
	Market  string
	States  []string
	Page    int
	Limit   int
	OrderBy string
}

// Broker is the single exchange capability surface used by the chat
// workflow, the portfolio aggregator and the dashboard API. Exactly one
// implementation exists (exchange/upbit); the seam is kept so another
// exchange could be dropped in without a plugin system.
type Broker interface {
	Accounts(ctx context.Context) ([]Balance, error)
	Ticker(ctx context.Context, markets []string) ([]Ticker, error)
	Markets(ctx context.Context) ([]MarketInfo, error)
	Order(ctx context.Context, uuid string) (Order, error)
	OpenOrders(ctx context.Context, q OrderQuery) ([]Order, error)
	ClosedOrders(ctx context.Context, q OrderQuery) ([]Order, error)
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, uuid string) (Order, error)
}

// Notifier pushes unsolicited messages to the configured chat users.
type Notifier interface {
	Notify(text string)
	OnError(err error)
}

// NotifierWithStart is a notifier bound to a transport with its own loop.
type NotifierWithStart interface {
	Notifier
	Start()
	Stop()
}
