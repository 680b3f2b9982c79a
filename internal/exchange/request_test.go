package gateway

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newplayman/futures-tradebot/internal/config"
	"github.com/newplayman/futures-tradebot/internal/order"
)

var testCreds = config.Credentials{APIKey: "test-key", APISecret: "SUPERSECRET"}

const testTS int64 = 1700000000000

func mustIntent(t *testing.T, p order.Params) order.Intent {
	t.Helper()
	in, err := order.Validate(p)
	require.NoError(t, err)
	return in
}

func fixedBuilder() *Builder {
	b := NewBuilder(0)
	b.NewClientOrderID = func() string { return "tb-fixed" }
	return b
}

func TestBuildOrderParameterOrder(t *testing.T) {
	cases := []struct {
		name string
		p    order.Params
		keys []string
	}{
		{
			"market",
			order.Params{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: "0.001"},
			[]string{"symbol", "side", "type", "quantity", "newClientOrderId", "timestamp", "recvWindow", "signature"},
		},
		{
			"limit",
			order.Params{Symbol: "ETHUSDT", Side: "SELL", Type: "LIMIT", Quantity: "0.01", Price: "3200"},
			[]string{"symbol", "side", "type", "quantity", "price", "timeInForce", "newClientOrderId", "timestamp", "recvWindow", "signature"},
		},
		{
			"stop market reduce only",
			order.Params{Symbol: "BTCUSDT", Side: "SELL", Type: "STOP_MARKET", Quantity: "0.001", StopPrice: "42000", ReduceOnly: true},
			[]string{"symbol", "side", "type", "quantity", "stopPrice", "reduceOnly", "newClientOrderId", "timestamp", "recvWindow", "signature"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := fixedBuilder().BuildOrder(mustIntent(t, tc.p), testCreds, testTS)
			require.NoError(t, err)
			assert.Equal(t, tc.keys, req.Params.Keys())
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "/fapi/v1/order", req.Path)
			assert.Equal(t, "test-key", req.APIKey)

			ts, _ := req.Params.Get("timestamp")
			assert.Equal(t, "1700000000000", ts)
			rw, _ := req.Params.Get("recvWindow")
			assert.Equal(t, "5000", rw)
		})
	}
}

func TestBuildOrderLimitCarriesGTC(t *testing.T) {
	req, err := fixedBuilder().BuildOrder(mustIntent(t, order.Params{Symbol: "ETHUSDT", Side: "SELL", Type: "LIMIT", Quantity: "0.01", Price: "3200"}), testCreds, testTS)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.Query(), "symbol=ETHUSDT&side=SELL&type=LIMIT&quantity=0.01&price=3200&timeInForce=GTC&"))
}

func TestSignatureMatchesCanonicalQuery(t *testing.T) {
	req, err := fixedBuilder().BuildOrder(mustIntent(t, order.Params{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: "0.001"}), testCreds, testTS)
	require.NoError(t, err)

	unsigned := req.LogQuery()
	var p Params
	for _, k := range req.Params.Keys() {
		if k == "signature" {
			continue
		}
		v, _ := req.Params.Get(k)
		p.Set(k, v)
	}
	q, sig := SignParams(p, testCreds.APISecret)
	assert.Equal(t, unsigned, q)
	assert.Equal(t, sig, req.Signature())
	assert.Equal(t, unsigned+"&signature="+sig, req.Query())
}

func TestSigningDeterministicAndSensitive(t *testing.T) {
	in := mustIntent(t, order.Params{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: "0.001"})
	a, err := fixedBuilder().BuildOrder(in, testCreds, testTS)
	require.NoError(t, err)
	b, err := fixedBuilder().BuildOrder(in, testCreds, testTS)
	require.NoError(t, err)
	assert.Equal(t, a.Signature(), b.Signature())
	assert.Equal(t, a.Query(), b.Query())

	// 任一参数变化签名都要变
	otherTS, err := fixedBuilder().BuildOrder(in, testCreds, testTS+1)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature(), otherTS.Signature())

	otherQty, err := fixedBuilder().BuildOrder(mustIntent(t, order.Params{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: "0.002"}), testCreds, testTS)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature(), otherQty.Signature())

	otherSecret, err := fixedBuilder().BuildOrder(in, config.Credentials{APIKey: "test-key", APISecret: "other"}, testTS)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature(), otherSecret.Signature())

	rw := fixedBuilder()
	rw.RecvWindowMs = 7000
	otherWindow, err := rw.BuildOrder(in, testCreds, testTS)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature(), otherWindow.Signature())
}

func TestBuildRejectsEmptySecret(t *testing.T) {
	b := fixedBuilder()
	called := false
	b.NewClientOrderID = func() string { called = true; return "x" }

	in := mustIntent(t, order.Params{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: "0.001"})
	_, err := b.BuildOrder(in, config.Credentials{APIKey: "k", APISecret: "  "}, testTS)
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, KindSigning, opErr.Kind)
	assert.False(t, called, "parameters must not be assembled without a secret")

	_, err = b.BuildBalance(config.Credentials{APIKey: "k"}, testTS)
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, KindSigning, opErr.Kind)
	assert.Equal(t, 3, opErr.Kind.ExitCode())
}

func TestBuildSecretNeverInRequest(t *testing.T) {
	req, err := fixedBuilder().BuildOrder(mustIntent(t, order.Params{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: "0.001"}), testCreds, testTS)
	require.NoError(t, err)
	assert.NotContains(t, req.Query(), testCreds.APISecret)
	assert.NotContains(t, req.LogQuery(), "signature")
}

func TestBuildAccountRequests(t *testing.T) {
	b := fixedBuilder()

	bal, err := b.BuildBalance(testCreds, testTS)
	require.NoError(t, err)
	assert.Equal(t, "/fapi/v2/balance", bal.Path)
	assert.Equal(t, []string{"timestamp", "recvWindow", "signature"}, bal.Params.Keys())

	all, err := b.BuildOpenOrders("", testCreds, testTS)
	require.NoError(t, err)
	_, hasSymbol := all.Params.Get("symbol")
	assert.False(t, hasSymbol)

	one, err := b.BuildOpenOrders(" ethusdt", testCreds, testTS)
	require.NoError(t, err)
	sym, _ := one.Params.Get("symbol")
	assert.Equal(t, "ETHUSDT", sym)
	assert.Equal(t, "/fapi/v1/openOrders", one.Path)

	cancel, err := b.BuildCancel("btcusdt", 42, testCreds, testTS)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, cancel.Method)
	assert.Equal(t, []string{"symbol", "orderId", "timestamp", "recvWindow", "signature"}, cancel.Params.Keys())

	query, err := b.BuildQueryOrder("BTCUSDT", 0, "tb-abc", testCreds, testTS)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, query.Method)
	cid, _ := query.Params.Get("origClientOrderId")
	assert.Equal(t, "tb-abc", cid)
}

func TestBuildCancelNeedsReference(t *testing.T) {
	_, err := fixedBuilder().BuildCancel("BTCUSDT", 0, testCreds, testTS)
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, KindValidation, opErr.Kind)

	_, err = fixedBuilder().BuildCancel("", 1, testCreds, testTS)
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, KindValidation, opErr.Kind)
}

func TestNewClientOrderID(t *testing.T) {
	a, b := NewClientOrderID(), NewClientOrderID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "tb-"))
	assert.LessOrEqual(t, len(a), 36)
	assert.NotContains(t, a[3:], "-")
}
