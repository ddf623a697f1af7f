package polymarket_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polytrader/internal/adapters/polymarket"
	"github.com/alejandrodnm/polytrader/internal/domain"
)

// Clave de test conocida, sin fondos.
const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testSecret = base64.URLEncoding.EncodeToString([]byte("super-secret"))

type venueStub struct {
	t        *testing.T
	derives  int32
	lastBody map[string]any
	orderRes string
	order    string // body de /data/order; "" → 404
}

func (v *venueStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/derive-api-key":
			atomic.AddInt32(&v.derives, 1)
			assert.NotEmpty(v.t, r.Header.Get("POLY_ADDRESS"))
			assert.NotEmpty(v.t, r.Header.Get("POLY_SIGNATURE"))
			json.NewEncoder(w).Encode(map[string]string{
				"apiKey": "key-1", "secret": testSecret, "passphrase": "pass",
			})
		case r.URL.Path == "/order" && r.Method == http.MethodPost:
			assert.Equal(v.t, "key-1", r.Header.Get("POLY_API_KEY"))
			assert.Equal(v.t, "pass", r.Header.Get("POLY_PASSPHRASE"))
			var body map[string]any
			assert.NoError(v.t, json.NewDecoder(r.Body).Decode(&body))
			v.lastBody = body
			w.Write([]byte(v.orderRes))
		case r.URL.Path == "/data/order/0xabc":
			ts := r.Header.Get("POLY_TIMESTAMP")
			mac := hmac.New(sha256.New, []byte("super-secret"))
			mac.Write([]byte(ts + "GET" + "/data/order/0xabc"))
			assert.Equal(v.t, base64.URLEncoding.EncodeToString(mac.Sum(nil)), r.Header.Get("POLY_SIGNATURE"))
			if v.order == "" {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			w.Write([]byte(v.order))
		default:
			http.NotFound(w, r)
		}
	}
}

func newSubmitter(t *testing.T, stub *venueStub) (*polymarket.Submitter, func()) {
	srv := httptest.NewServer(stub.handler())
	auth, err := polymarket.NewAuthClient(newTestClient(srv, nil), testKey)
	require.NoError(t, err)
	return polymarket.NewSubmitter(auth), srv.Close
}

func orderField(t *testing.T, body map[string]any, key string) any {
	order, ok := body["order"].(map[string]any)
	require.True(t, ok, "order object in body")
	return order[key]
}

// --- Submit ---

func TestSubmitOrder_Buy(t *testing.T) {
	stub := &venueStub{t: t, orderRes: `{"success":true,"orderID":"0xabc","status":"matched","transactionsHashes":["0x01"]}`}
	sub, closeFn := newSubmitter(t, stub)
	defer closeFn()

	res, err := sub.SubmitOrder(context.Background(), domain.SubmitRequest{
		LocalID: "l1", MarketID: "m1", TokenID: "123", Side: domain.SideBuy, Price: 0.45, Shares: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.VenueOrderID)
	assert.Equal(t, "MATCHED", res.Status)
	assert.Equal(t, []string{"0x01"}, res.TxHashes)

	assert.Equal(t, "GTC", stub.lastBody["orderType"])
	assert.Equal(t, "key-1", stub.lastBody["owner"])
	assert.Equal(t, "BUY", orderField(t, stub.lastBody, "side"))
	assert.Equal(t, "123", orderField(t, stub.lastBody, "tokenId"))
	// BUY: maker entrega USDC, taker recibe tokens
	assert.Equal(t, "4500000", orderField(t, stub.lastBody, "makerAmount"))
	assert.Equal(t, "10000000", orderField(t, stub.lastBody, "takerAmount"))
	assert.NotEmpty(t, orderField(t, stub.lastBody, "signature"))
}

func TestSubmitOrder_SellAmounts(t *testing.T) {
	stub := &venueStub{t: t, orderRes: `{"success":true,"orderID":"0xdef","status":"live"}`}
	sub, closeFn := newSubmitter(t, stub)
	defer closeFn()

	_, err := sub.SubmitOrder(context.Background(), domain.SubmitRequest{
		TokenID: "456", Side: domain.SideSell, Price: 0.555, Shares: 12.34, NegRisk: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELL", orderField(t, stub.lastBody, "side"))
	assert.Equal(t, "12340000", orderField(t, stub.lastBody, "makerAmount"))
	assert.Equal(t, "6848700", orderField(t, stub.lastBody, "takerAmount"))
}

func TestSubmitOrder_DerivesCredsOnce(t *testing.T) {
	stub := &venueStub{t: t, orderRes: `{"success":true,"orderID":"0x1","status":"live"}`}
	sub, closeFn := newSubmitter(t, stub)
	defer closeFn()

	req := domain.SubmitRequest{TokenID: "1", Side: domain.SideBuy, Price: 0.5, Shares: 2}
	for i := 0; i < 3; i++ {
		_, err := sub.SubmitOrder(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.derives))
}

func TestSubmitOrder_Rejected(t *testing.T) {
	stub := &venueStub{t: t, orderRes: `{"success":false,"errorMsg":"not enough balance"}`}
	sub, closeFn := newSubmitter(t, stub)
	defer closeFn()

	_, err := sub.SubmitOrder(context.Background(), domain.SubmitRequest{
		TokenID: "1", Side: domain.SideBuy, Price: 0.5, Shares: 2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance")
}

func TestSubmitOrder_ZeroShares(t *testing.T) {
	stub := &venueStub{t: t}
	sub, closeFn := newSubmitter(t, stub)
	defer closeFn()

	_, err := sub.SubmitOrder(context.Background(), domain.SubmitRequest{
		TokenID: "1", Side: domain.SideBuy, Price: 0.5, Shares: 0,
	})
	assert.Error(t, err)
	assert.Nil(t, stub.lastBody)
}

// --- Order status ---

func TestGetOrder_Found(t *testing.T) {
	stub := &venueStub{t: t, order: `{
		"id": "0xabc", "status": "MATCHED", "market": "m1", "asset_id": "123",
		"side": "buy", "original_size": "10", "size_matched": "7.5", "price": "0.45"
	}`}
	sub, closeFn := newSubmitter(t, stub)
	defer closeFn()

	vo, found, err := sub.GetOrder(context.Background(), "0xabc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.SideBuy, vo.Side)
	assert.InDelta(t, 10, vo.OriginalSize, 1e-9)
	assert.InDelta(t, 7.5, vo.SizeMatched, 1e-9)
	assert.InDelta(t, 0.45, vo.Price, 1e-9)
	assert.True(t, vo.Terminal())
}

func TestGetOrder_NotFound(t *testing.T) {
	stub := &venueStub{t: t}
	sub, closeFn := newSubmitter(t, stub)
	defer closeFn()

	_, found, err := sub.GetOrder(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetOrder_NullBody(t *testing.T) {
	stub := &venueStub{t: t, order: `null`}
	sub, closeFn := newSubmitter(t, stub)
	defer closeFn()

	_, found, err := sub.GetOrder(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewAuthClient_InvalidKey(t *testing.T) {
	_, err := polymarket.NewAuthClient(newTestClient(nil, nil), "not-hex")
	assert.Error(t, err)
}
