package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newplayman/futures-tradebot/internal/order"
)

const placedMarketBody = `{"orderId":3951829,"symbol":"BTCUSDT","status":"NEW","clientOrderId":"tb-fixed","price":"0","avgPrice":"0.00000","origQty":"0.001","executedQty":"0","cumQuote":"0","timeInForce":"GTC","type":"MARKET","reduceOnly":false,"side":"BUY","stopPrice":"0","updateTime":1700000000123}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, 2*time.Second, zerolog.Nop())
}

func marketRequest(t *testing.T) SignedRequest {
	t.Helper()
	req, err := fixedBuilder().BuildOrder(mustIntent(t, order.Params{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: "0.001"}), testCreds, testTS)
	require.NoError(t, err)
	return req
}

func asOpErr(t *testing.T, err error) *OperationError {
	t.Helper()
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr), "expected *OperationError, got %v", err)
	return opErr
}

func TestPlaceOrderSendsSignedQuery(t *testing.T) {
	req := marketRequest(t)
	var gotQuery, gotKey, gotMethod, gotPath string
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-MBX-APIKEY")
		io.WriteString(w, placedMarketBody)
	})

	res, err := cli.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/fapi/v1/order", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, req.Query(), gotQuery, "query must be sent exactly as signed")

	assert.Equal(t, int64(3951829), res.OrderID)
	assert.Equal(t, futures.OrderStatusTypeNew, res.Status)
	assert.Equal(t, futures.OrderTypeMarket, res.Type)
	assert.Equal(t, "0.001", res.OrigQty.String())
	assert.Nil(t, res.AvgPrice, "unfilled order has no average price")
	assert.Nil(t, res.Price)
	assert.Nil(t, res.StopPrice)
	assert.Equal(t, int64(1700000000123), res.UpdateTime.UnixMilli())
}

func TestPlaceOrderFilledAveragePrice(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"orderId":7,"symbol":"BTCUSDT","status":"FILLED","clientOrderId":"c","price":"0","avgPrice":"43012.10","origQty":"0.001","executedQty":"0.001","type":"MARKET","side":"BUY","stopPrice":"0","updateTime":1}`)
	})
	res, err := cli.PlaceOrder(context.Background(), marketRequest(t))
	require.NoError(t, err)
	require.NotNil(t, res.AvgPrice)
	assert.Equal(t, "43012.1", res.AvgPrice.String())
	assert.Equal(t, futures.OrderStatusTypeFilled, res.Status)
}

func TestSendClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
		reason Reason
		code   *int64
		msg    string
	}{
		{"bad precision", 400, `{"code":-1111,"msg":"Precision is over the maximum defined for this asset."}`, KindRejection, ReasonBadParameters, int64Ptr(-1111), "Precision is over the maximum defined for this asset."},
		{"invalid key", 401, `{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`, KindRejection, ReasonAuth, int64Ptr(-2015), "Invalid API-key, IP, or permissions for action."},
		{"bad signature", 400, `{"code":-1022,"msg":"Signature for this request is not valid."}`, KindRejection, ReasonAuth, int64Ptr(-1022), "Signature for this request is not valid."},
		{"rate limited", 429, `{"code":-1003,"msg":"Too many requests."}`, KindRejection, ReasonRateLimited, int64Ptr(-1003), "Too many requests."},
		{"margin insufficient", 400, `{"code":-2019,"msg":"Margin is insufficient."}`, KindRejection, ReasonRejectedOrder, int64Ptr(-2019), "Margin is insufficient."},
		{"notional too small", 400, `{"code":-4164,"msg":"Order's notional must be no smaller than 100"}`, KindRejection, ReasonBadParameters, int64Ptr(-4164), "Order's notional must be no smaller than 100"},
		{"forbidden html", 403, `<html>blocked</html>`, KindRejection, ReasonAuth, nil, "<html>blocked</html>"},
		{"server", 503, `{"code":-1001,"msg":"Internal error; unable to process your request. Please try again."}`, KindServer, ReasonNone, int64Ptr(-1001), "Internal error; unable to process your request. Please try again."},
		{"server no body", 502, ``, KindServer, ReasonNone, nil, "Bad Gateway"},
		{"2xx with error code", 200, `{"code":-2010,"msg":"Order would immediately trigger."}`, KindRejection, ReasonRejectedOrder, int64Ptr(-2010), "Order would immediately trigger."},
		{"2xx unknown shape", 200, `{"hello":"world"}`, KindUnexpected, ReasonNone, nil, ""},
		{"2xx not json", 200, `ok`, KindUnexpected, ReasonNone, nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})
			res, err := cli.PlaceOrder(context.Background(), marketRequest(t))
			require.Error(t, err)
			assert.Nil(t, res)

			opErr := asOpErr(t, err)
			assert.Equal(t, tc.kind, opErr.Kind)
			assert.Equal(t, tc.reason, opErr.Reason)
			assert.Equal(t, OpPlaceOrder, opErr.Op)
			if tc.code != nil {
				require.NotNil(t, opErr.ExchangeCode)
				assert.Equal(t, *tc.code, *opErr.ExchangeCode)
			} else {
				assert.Nil(t, opErr.ExchangeCode)
			}
			if tc.msg != "" {
				assert.Equal(t, tc.msg, opErr.Message)
			}
			if tc.kind != KindUnexpected {
				require.NotNil(t, opErr.HTTPStatus)
				assert.Equal(t, tc.status, *opErr.HTTPStatus)
			}
		})
	}
}

func TestSendUnreachableHost(t *testing.T) {
	// 先占一个端口再释放，保证连接被拒绝
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	var logs bytes.Buffer
	cli := NewClient("http://"+addr, time.Second, zerolog.New(&logs).Level(zerolog.DebugLevel))
	res, err := cli.PlaceOrder(context.Background(), marketRequest(t))
	require.Error(t, err)
	assert.Nil(t, res)

	opErr := asOpErr(t, err)
	assert.Equal(t, KindTransport, opErr.Kind)
	assert.Nil(t, opErr.HTTPStatus)
	assert.Equal(t, 4, opErr.Kind.ExitCode())
	assert.Contains(t, opErr.Message, "POST /fapi/v1/order")

	// 错误文本和日志只带路径，不带签名查询串
	assert.NotContains(t, opErr.Error(), "signature=")
	assert.NotContains(t, opErr.Error(), "timestamp=")
	assert.Contains(t, logs.String(), "transport failure")
	assert.NotContains(t, logs.String(), "signature=")
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })
	cli.SetTimeout(50 * time.Millisecond)

	// 下单超时：结果不确定
	_, err := cli.PlaceOrder(context.Background(), marketRequest(t))
	opErr := asOpErr(t, err)
	assert.Equal(t, KindAmbiguous, opErr.Kind)
	assert.Equal(t, ReasonTimeout, opErr.Reason)
	assert.NotContains(t, opErr.Error(), "signature=")

	// 只读请求超时：普通传输错误
	bal, err := fixedBuilder().BuildBalance(testCreds, testTS)
	require.NoError(t, err)
	_, err = cli.Balance(context.Background(), bal)
	opErr = asOpErr(t, err)
	assert.Equal(t, KindTransport, opErr.Kind)
	assert.Equal(t, ReasonTimeout, opErr.Reason)
}

func TestBalanceDecoding(t *testing.T) {
	var gotQuery string
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/fapi/v2/balance" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `[
			{"accountAlias":"SgsR","asset":"USDT","balance":"15000.50","crossWalletBalance":"15000.50","crossUnPnl":"0.0","availableBalance":"14900.25","maxWithdrawAmount":"14900.25","marginAvailable":true,"updateTime":1700000000000},
			{"accountAlias":"SgsR","asset":"BNB","balance":"0.00000000","crossWalletBalance":"0","crossUnPnl":"0","availableBalance":"0","maxWithdrawAmount":"0","marginAvailable":true,"updateTime":0}
		]`)
	})
	b := fixedBuilder()
	b.RecvWindowMs = 7000
	req, err := b.BuildBalance(testCreds, testTS)
	require.NoError(t, err)

	res, err := cli.Balance(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "recvWindow=7000")
	require.Len(t, res.Balances, 2)
	assert.Equal(t, "15000.5", res.Balances[0].Balance.String())
	assert.Equal(t, "14900.25", res.Balances[0].Available.String())

	nz := res.NonZero()
	require.Len(t, nz, 1)
	assert.Equal(t, "USDT", nz[0].Asset)
}

func TestBalanceUnexpectedShape(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"asset":"USDT"}`)
	})
	req, err := fixedBuilder().BuildBalance(testCreds, testTS)
	require.NoError(t, err)
	_, err = cli.Balance(context.Background(), req)
	assert.Equal(t, KindUnexpected, asOpErr(t, err).Kind)
}

func TestOpenOrdersAndCancel(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/fapi/v1/openOrders":
			if r.URL.Query().Get("symbol") != "ETHUSDT" {
				t.Errorf("symbol filter missing: %s", r.URL.RawQuery)
			}
			io.WriteString(w, `[{"orderId":11,"symbol":"ETHUSDT","status":"NEW","clientOrderId":"a","price":"3200","avgPrice":"0","origQty":"0.01","executedQty":"0","timeInForce":"GTC","type":"LIMIT","side":"SELL","stopPrice":"0","updateTime":1}]`)
		case r.Method == http.MethodDelete && r.URL.Path == "/fapi/v1/order":
			if r.URL.Query().Get("orderId") != "11" {
				t.Errorf("orderId missing: %s", r.URL.RawQuery)
			}
			io.WriteString(w, `{"orderId":11,"symbol":"ETHUSDT","status":"CANCELED","clientOrderId":"a","price":"3200","origQty":"0.01","executedQty":"0","type":"LIMIT","side":"SELL","updateTime":2}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	b := fixedBuilder()

	oreq, err := b.BuildOpenOrders("ethusdt", testCreds, testTS)
	require.NoError(t, err)
	open, err := cli.OpenOrders(context.Background(), oreq)
	require.NoError(t, err)
	require.Len(t, open.Orders, 1)
	require.NotNil(t, open.Orders[0].Price)
	assert.Equal(t, "3200", open.Orders[0].Price.String())
	assert.Equal(t, futures.TimeInForceTypeGTC, open.Orders[0].TimeInForce)

	creq, err := b.BuildCancel("ETHUSDT", 11, testCreds, testTS)
	require.NoError(t, err)
	canceled, err := cli.CancelOrder(context.Background(), creq)
	require.NoError(t, err)
	assert.Equal(t, futures.OrderStatusTypeCanceled, canceled.Order.Status)
	assert.Equal(t, OpCancelOrder, canceled.Operation())
}

func TestQueryOrderUnknown(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		io.WriteString(w, `{"code":-2013,"msg":"Order does not exist."}`)
	})
	req, err := fixedBuilder().BuildQueryOrder("BTCUSDT", 0, "tb-missing", testCreds, testTS)
	require.NoError(t, err)
	_, err = cli.QueryOrder(context.Background(), req)
	opErr := asOpErr(t, err)
	assert.Equal(t, KindRejection, opErr.Kind)
	assert.Equal(t, ReasonRejectedOrder, opErr.Reason)
	assert.Equal(t, "Order does not exist.", opErr.Message)
}

func TestTypedHelperRejectsWrongRequest(t *testing.T) {
	cli := NewClient("http://127.0.0.1:1", time.Second, zerolog.Nop())
	bal, err := fixedBuilder().BuildBalance(testCreds, testTS)
	require.NoError(t, err)
	_, err = cli.PlaceOrder(context.Background(), bal)
	assert.Equal(t, KindValidation, asOpErr(t, err).Kind)
}

func TestOperationErrorString(t *testing.T) {
	e := &OperationError{Kind: KindRejection, Reason: ReasonBadParameters, HTTPStatus: intPtr(400), ExchangeCode: int64Ptr(-1111), Message: "Precision is over the maximum defined for this asset."}
	assert.Equal(t, "ExchangeRejection (bad_parameters) http=400 code=-1111: Precision is over the maximum defined for this asset.", e.Error())
	assert.Equal(t, 6, e.Kind.ExitCode())
}

func TestStripQuery(t *testing.T) {
	msg := `Post "http://127.0.0.1:9/fapi/v1/order?symbol=BTCUSDT&timestamp=1&signature=abc123": dial tcp 127.0.0.1:9: connect: connection refused`
	got := stripQuery(msg)
	assert.Equal(t, `Post "http://127.0.0.1:9/fapi/v1/order": dial tcp 127.0.0.1:9: connect: connection refused`, got)
	assert.Equal(t, "no query here", stripQuery("no query here"))
}

func TestTrimBodyKeepsRunes(t *testing.T) {
	body := []byte(strings.Repeat("中", 100))
	got := trimBody(body)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxBodyLen+len("..."))

	assert.Equal(t, "short", trimBody([]byte("  short \n")))
}

func TestAsOperationErrorWrapsValidation(t *testing.T) {
	_, verr := order.Validate(order.Params{Symbol: "BTCUSDT", Side: "BUY", Type: "LIMIT", Quantity: "1"})
	opErr := AsOperationError(verr)
	require.NotNil(t, opErr)
	assert.Equal(t, KindValidation, opErr.Kind)
	require.Len(t, opErr.Violations, 1)
	assert.Equal(t, order.MissingPrice, opErr.Violations[0].Kind)
	assert.Nil(t, AsOperationError(nil))
}
