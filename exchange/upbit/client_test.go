package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dawoonj/krwbot/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zerologger "github.com/dawoonj/krwbot/logger/zerolog"
)

func testLogger() core.Logger {
	nop := zerolog.Nop()
	return zerologger.NewAdapter(&nop)
}

func newTestClient(baseURL string) *Client {
	return NewClient(core.UpbitSettings{
		AccessKey: "test-access",
		SecretKey: "test-secret",
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
	}, testLogger())
}

func TestCanonicalQuery(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name:   "sorted scalar params",
			params: Params{"market": "KRW-BTC", "limit": 10},
			want:   "limit=10&market=KRW-BTC",
		},
		{
			name:   "list values repeat with bracket suffix",
			params: Params{"states": []string{"wait", "watch"}, "market": "KRW-BTC"},
			want:   "market=KRW-BTC&states[]=wait&states[]=watch",
		},
		{
			name:   "nil and empty values dropped",
			params: Params{"market": "", "uuid": nil, "page": 0, "order_by": "desc"},
			want:   "order_by=desc",
		},
		{
			name:   "floats render without exponent",
			params: Params{"price": 100000.0},
			want:   "price=100000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canonicalQuery(normalize(tt.params)))
		})
	}
}

func TestDoSignsRequestAndMatchesWire(t *testing.T) {
	var gotQuery, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "/v1/orders/open", Params{
		"market": "KRW-BTC",
		"states": []string{"wait"},
	}, nil, true)
	require.NoError(t, err)

	// Brackets must reach the wire unescaped, byte-identical to the string
	// that was hashed.
	wantQuery := "market=KRW-BTC&states[]=wait"
	assert.Equal(t, wantQuery, gotQuery)

	require.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	token, err := jwt.Parse(strings.TrimPrefix(gotAuth, "Bearer "), func(tok *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "test-access", claims["access_key"])
	assert.NotEmpty(t, claims["nonce"])
	assert.Equal(t, "SHA512", claims["query_hash_alg"])

	hash := sha512.Sum512([]byte(wantQuery))
	assert.Equal(t, hex.EncodeToString(hash[:]), claims["query_hash"])
}

func TestDoBodyHashCoversBodyFields(t *testing.T) {
	var gotBody map[string]any
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Do(context.Background(), http.MethodPost, "/v1/orders", nil, Params{
		"market":   "KRW-BTC",
		"side":     "bid",
		"ord_type": "price",
		"price":    "100000",
		"volume":   "",
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{
		"market":   "KRW-BTC",
		"side":     "bid",
		"ord_type": "price",
		"price":    "100000",
	}, gotBody)

	token, err := jwt.Parse(strings.TrimPrefix(gotAuth, "Bearer "), func(tok *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)

	hash := sha512.Sum512([]byte("market=KRW-BTC&ord_type=price&price=100000&side=bid"))
	assert.Equal(t, hex.EncodeToString(hash[:]), claims["query_hash"])
}

func TestDoRejectsParamsAndBody(t *testing.T) {
	client := newTestClient("http://localhost")
	_, err := client.Do(context.Background(), http.MethodPost, "/v1/orders",
		Params{"a": "1"}, Params{"b": "2"}, true)
	assert.ErrorIs(t, err, core.ErrParamsAndBody)
}

func TestDoRequiresCredentials(t *testing.T) {
	client := NewClient(core.UpbitSettings{BaseURL: "http://localhost", Timeout: time.Second}, testLogger())
	_, err := client.Do(context.Background(), http.MethodGet, "/v1/accounts", nil, nil, true)
	assert.ErrorIs(t, err, core.ErrCredentialsMissing)
}

func TestDoDecodesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"name":"insufficient_funds_bid","message":"주문 금액이 부족합니다."}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "/v1/accounts", nil, nil, true)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "insufficient_funds_bid", apiErr.Name)
	assert.Equal(t, "주문 금액이 부족합니다.", apiErr.Message)
	assert.Contains(t, apiErr.Body, "insufficient_funds_bid")
}

func TestDoFallsBackToRawBodyOnErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "/v1/ticker", Params{"markets": "KRW-BTC"}, nil, false)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Name)
	assert.Equal(t, "upstream unavailable", apiErr.Body)
}

func TestRemainingReqTracking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Remaining-Req", "group=default; min=900; sec=29")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	require.Nil(t, client.LastRemaining())

	_, err := client.Do(context.Background(), http.MethodGet, "/v1/ticker", Params{"markets": "KRW-BTC"}, nil, false)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"group": "default", "min": "900", "sec": "29"}, client.LastRemaining())
}

func TestParseRemaining(t *testing.T) {
	assert.Equal(t,
		map[string]string{"group": "order", "min": "59", "sec": "4"},
		parseRemaining("group=order; min=59; sec=4"))
	assert.Empty(t, parseRemaining("garbage"))
}
