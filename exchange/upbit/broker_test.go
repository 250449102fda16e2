package upbit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dawoonj/krwbot/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsDecodesWireStrings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[
			{"currency":"krw","balance":"1000000.0","locked":"0.0","avg_buy_price":"0","unit_currency":"KRW"},
			{"currency":"BTC","balance":"0.1","locked":"0.05","avg_buy_price":"95000000","unit_currency":"KRW"}
		]`))
	}))
	defer server.Close()

	broker := NewBroker(newTestClient(server.URL))
	balances, err := broker.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)

	assert.Equal(t, "KRW", balances[0].Currency)
	assert.InDelta(t, 1_000_000, balances[0].Balance, 1e-9)
	assert.InDelta(t, 0.05, balances[1].Locked, 1e-9)
	assert.InDelta(t, 95_000_000, balances[1].AvgBuyPrice, 1e-3)
	assert.InDelta(t, 0.05, balances[1].Available(), 1e-9)
}

func TestTickerJoinsMarkets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "markets=KRW-BTC,KRW-ETH", r.URL.RawQuery)
		w.Write([]byte(`[{"market":"KRW-BTC","trade_price":95000000},{"market":"KRW-ETH","trade_price":3000000}]`))
	}))
	defer server.Close()

	broker := NewBroker(newTestClient(server.URL))
	tickers, err := broker.Ticker(context.Background(), []string{"KRW-BTC", "KRW-ETH"})
	require.NoError(t, err)
	require.Len(t, tickers, 2)
	assert.Equal(t, 3_000_000.0, tickers[1].TradePrice)
}

func TestTickerSkipsEmptyMarketList(t *testing.T) {
	broker := NewBroker(newTestClient("http://localhost"))
	tickers, err := broker.Ticker(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tickers)
}

func TestCreateOrderPostsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, map[string]any{
			"market":   "KRW-BTC",
			"side":     "bid",
			"ord_type": "price",
			"price":    "100000",
		}, body)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"uuid":"9ca023a5-851b-4fec-9f0a-48cd83c2eaae","market":"KRW-BTC","side":"bid","ord_type":"price","state":"wait"}`))
	}))
	defer server.Close()

	broker := NewBroker(newTestClient(server.URL))
	created, err := broker.CreateOrder(context.Background(), core.OrderRequest{
		Market:  "KRW-BTC",
		Side:    core.SideTypeBuy,
		OrdType: core.OrdTypePrice,
		Price:   "100000",
	})
	require.NoError(t, err)
	assert.Equal(t, "9ca023a5-851b-4fec-9f0a-48cd83c2eaae", created.UUID)
	assert.Equal(t, "wait", created.State)
}

func TestCancelOrderUsesDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/order", r.URL.Path)
		assert.Equal(t, "uuid=some-uuid", r.URL.RawQuery)
		w.Write([]byte(`{"uuid":"some-uuid","state":"cancel"}`))
	}))
	defer server.Close()

	broker := NewBroker(newTestClient(server.URL))
	canceled, err := broker.CancelOrder(context.Background(), "some-uuid")
	require.NoError(t, err)
	assert.Equal(t, "cancel", canceled.State)
}

func TestOpenOrdersQueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/open", r.URL.Path)
		assert.Equal(t, "limit=20&market=KRW-BTC&order_by=desc&page=1", r.URL.RawQuery)
		w.Write([]byte(`[{"uuid":"u1","market":"KRW-BTC","state":"wait","volume":"0.5","price":"3000000"}]`))
	}))
	defer server.Close()

	broker := NewBroker(newTestClient(server.URL))
	orders, err := broker.OpenOrders(context.Background(), core.OrderQuery{
		Market: "KRW-BTC", Page: 1, Limit: 20, OrderBy: "desc",
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "wait", orders[0].State)
}
