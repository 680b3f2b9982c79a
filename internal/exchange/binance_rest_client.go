package gateway

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DefaultTimeout 单次请求的总超时
const DefaultTimeout = 10 * time.Second

// Client 单次签名 REST 调用：不重试、不限流，超时由 ctx 控制。
type Client struct {
	BaseURL string

	http    *resty.Client
	timeout atomic.Int64
	log     zerolog.Logger
}

// NewClient baseURL 为空时使用 testnet 地址。
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = BinanceFuturesTestnetEndpoint
	}
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		BaseURL: baseURL,
		log:     logger.With().Str("component", "rest").Logger(),
	}
	c.http = resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{c.log})
	c.SetTimeout(timeout)
	return c
}

// SetTimeout 可在运行中调整（配置热更新）。
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	c.timeout.Store(int64(d))
}

func (c *Client) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// Send 发出恰好一次 HTTP 请求，并把结果归类为 Response 或 *OperationError。
func (c *Client) Send(ctx context.Context, req SignedRequest) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	target := req.Path
	if q := req.Query(); q != "" {
		target += "?" + q
	}
	r := c.http.R().SetContext(ctx)
	if req.APIKey != "" {
		r.SetHeader("X-MBX-APIKEY", req.APIKey)
	}
	if req.Op == OpPlaceOrder || req.Op == OpCancelOrder {
		r.SetHeader("Content-Type", "application/x-www-form-urlencoded")
	}

	c.log.Debug().
		Str("op", string(req.Op)).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("query", req.LogQuery()).
		Msg("sending request")

	resp, err := r.Execute(req.Method, target)
	if err != nil {
		opErr := classifyTransport(req.Op, req.Method, req.Path, err)
		c.log.Debug().Str("op", string(req.Op)).Str("kind", string(opErr.Kind)).Err(opErr.Err).Msg("transport failure")
		return nil, opErr
	}

	body := resp.Body()
	c.log.Debug().
		Str("op", string(req.Op)).
		Int("status", resp.StatusCode()).
		Dur("latency", resp.Time()).
		Int("bytes", len(body)).
		Msg("response received")

	if opErr := classifyResponse(req.Op, resp.StatusCode(), body); opErr != nil {
		return nil, opErr
	}
	return decode(req.Op, body)
}

// PlaceOrder 调用 /fapi/v1/order 下单。
func (c *Client) PlaceOrder(ctx context.Context, req SignedRequest) (*OrderResult, error) {
	res, err := c.sendAs(ctx, req, OpPlaceOrder)
	if err != nil {
		return nil, err
	}
	return res.(*OrderResult), nil
}

// Balance calls /fapi/v2/balance.
func (c *Client) Balance(ctx context.Context, req SignedRequest) (*BalanceResult, error) {
	res, err := c.sendAs(ctx, req, OpBalance)
	if err != nil {
		return nil, err
	}
	return res.(*BalanceResult), nil
}

func (c *Client) OpenOrders(ctx context.Context, req SignedRequest) (*OpenOrdersResult, error) {
	res, err := c.sendAs(ctx, req, OpOpenOrders)
	if err != nil {
		return nil, err
	}
	return res.(*OpenOrdersResult), nil
}

func (c *Client) CancelOrder(ctx context.Context, req SignedRequest) (*CancelResult, error) {
	res, err := c.sendAs(ctx, req, OpCancelOrder)
	if err != nil {
		return nil, err
	}
	return res.(*CancelResult), nil
}

func (c *Client) QueryOrder(ctx context.Context, req SignedRequest) (*QueryResult, error) {
	res, err := c.sendAs(ctx, req, OpQueryOrder)
	if err != nil {
		return nil, err
	}
	return res.(*QueryResult), nil
}

// ServerTime 公共接口，不需要签名。
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	req := SignedRequest{Op: OpServerTime, Method: OpServerTime.method(), Path: OpServerTime.path()}
	res, err := c.sendAs(ctx, req, OpServerTime)
	if err != nil {
		return 0, err
	}
	return res.(*ServerTimeResult).ServerTime, nil
}

func (c *Client) sendAs(ctx context.Context, req SignedRequest, op Operation) (Response, error) {
	if req.Op != op {
		return nil, invalidf(op, "request built for %s, not %s", req.Op, op)
	}
	return c.Send(ctx, req)
}

// restyLogger 把 resty 内部日志接到 zerolog
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error().Msg(stripQuery(fmt.Sprintf(format, v...)))
}
func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn().Msg(stripQuery(fmt.Sprintf(format, v...)))
}
func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug().Msg(stripQuery(fmt.Sprintf(format, v...)))
}

// resty 的错误文本带完整 URL，查询串里有 signature
var queryPattern = regexp.MustCompile(`\?[^\s"]*`)

func stripQuery(s string) string {
	return queryPattern.ReplaceAllString(s, "")
}
