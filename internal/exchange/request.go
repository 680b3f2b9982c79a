package gateway

import (
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"github.com/newplayman/futures-tradebot/internal/config"
	"github.com/newplayman/futures-tradebot/internal/order"
)

// SignedRequest 一次性的已签名请求；不包含 secret，只含放在 header 里的 API key。
type SignedRequest struct {
	Op     Operation
	Method string
	Path   string
	Params Params
	APIKey string
}

// Query 实际发送的 query string（签名在最后）。
func (r SignedRequest) Query() string { return r.Params.Encode() }

// LogQuery 用于日志的 query，去掉 signature。
func (r SignedRequest) LogQuery() string { return r.Params.encode("signature") }

func (r SignedRequest) Signature() string {
	sig, _ := r.Params.Get("signature")
	return sig
}

// Builder 负责参数组装、timestamp/recvWindow 和签名。
type Builder struct {
	RecvWindowMs int64
	// NewClientOrderID 生成 newClientOrderId；测试可替换成固定值
	NewClientOrderID func() string
}

func NewBuilder(recvWindowMs int64) *Builder {
	if recvWindowMs <= 0 {
		recvWindowMs = DefaultRecvWindowMs
	}
	return &Builder{RecvWindowMs: recvWindowMs, NewClientOrderID: NewClientOrderID}
}

// NewClientOrderID 生成 "tb-" 前缀的客户端订单号（不超过 36 字符）。
func NewClientOrderID() string {
	return "tb-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// BuildOrder 组装 POST /fapi/v1/order。
func (b *Builder) BuildOrder(in order.Intent, creds config.Credentials, ts int64) (SignedRequest, error) {
	if err := checkSecret(OpPlaceOrder, creds); err != nil {
		return SignedRequest{}, err
	}
	if in.IsZero() {
		return SignedRequest{}, invalidf(OpPlaceOrder, "empty order intent")
	}

	var p Params
	p.Set("symbol", in.Symbol())
	p.Set("side", string(in.Side()))
	p.Set("type", string(in.Type()))
	p.Set("quantity", in.Quantity().String())
	if price, ok := in.Price(); ok {
		p.Set("price", price.String())
		p.Set("timeInForce", string(futures.TimeInForceTypeGTC))
	}
	if stop, ok := in.StopPrice(); ok {
		p.Set("stopPrice", stop.String())
	}
	if in.ReduceOnly() {
		p.Set("reduceOnly", "true")
	}
	if b.NewClientOrderID != nil {
		if id := b.NewClientOrderID(); id != "" {
			p.Set("newClientOrderId", id)
		}
	}
	return b.sign(OpPlaceOrder, p, creds, ts), nil
}

// BuildBalance 组装 GET /fapi/v2/balance。
func (b *Builder) BuildBalance(creds config.Credentials, ts int64) (SignedRequest, error) {
	if err := checkSecret(OpBalance, creds); err != nil {
		return SignedRequest{}, err
	}
	return b.sign(OpBalance, Params{}, creds, ts), nil
}

// BuildOpenOrders symbol 为空时查询全部交易对。
func (b *Builder) BuildOpenOrders(symbol string, creds config.Credentials, ts int64) (SignedRequest, error) {
	if err := checkSecret(OpOpenOrders, creds); err != nil {
		return SignedRequest{}, err
	}
	var p Params
	if s := strings.ToUpper(strings.TrimSpace(symbol)); s != "" {
		p.Set("symbol", s)
	}
	return b.sign(OpOpenOrders, p, creds, ts), nil
}

// BuildCancel 组装 DELETE /fapi/v1/order（按 orderId 撤单）。
func (b *Builder) BuildCancel(symbol string, orderID int64, creds config.Credentials, ts int64) (SignedRequest, error) {
	if err := checkSecret(OpCancelOrder, creds); err != nil {
		return SignedRequest{}, err
	}
	p, err := orderRef(OpCancelOrder, symbol, orderID, "")
	if err != nil {
		return SignedRequest{}, err
	}
	return b.sign(OpCancelOrder, p, creds, ts), nil
}

// BuildQueryOrder 组装 GET /fapi/v1/order；orderID 与 clientOrderID 二选一。
func (b *Builder) BuildQueryOrder(symbol string, orderID int64, clientOrderID string, creds config.Credentials, ts int64) (SignedRequest, error) {
	if err := checkSecret(OpQueryOrder, creds); err != nil {
		return SignedRequest{}, err
	}
	p, err := orderRef(OpQueryOrder, symbol, orderID, clientOrderID)
	if err != nil {
		return SignedRequest{}, err
	}
	return b.sign(OpQueryOrder, p, creds, ts), nil
}

func orderRef(op Operation, symbol string, orderID int64, clientOrderID string) (Params, error) {
	var p Params
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return p, invalidf(op, "symbol is required")
	}
	p.Set("symbol", s)
	clientOrderID = strings.TrimSpace(clientOrderID)
	switch {
	case orderID > 0:
		p.Set("orderId", strconv.FormatInt(orderID, 10))
	case clientOrderID != "":
		p.Set("origClientOrderId", clientOrderID)
	default:
		return p, invalidf(op, "a positive order id or a client order id is required")
	}
	return p, nil
}

// sign 追加 timestamp、recvWindow，最后追加 signature。
func (b *Builder) sign(op Operation, p Params, creds config.Credentials, ts int64) SignedRequest {
	p.Set("timestamp", strconv.FormatInt(ts, 10))
	b.applyRecvWindow(&p)
	_, sig := SignParams(p, creds.APISecret)
	p.Set("signature", sig)
	return SignedRequest{
		Op:     op,
		Method: op.method(),
		Path:   op.path(),
		Params: p,
		APIKey: creds.APIKey,
	}
}

func (b *Builder) applyRecvWindow(p *Params) {
	rw := b.RecvWindowMs
	if rw <= 0 {
		rw = DefaultRecvWindowMs
	}
	p.Set("recvWindow", strconv.FormatInt(rw, 10))
}

// checkSecret 在组装任何参数之前检查凭证
func checkSecret(op Operation, creds config.Credentials) *OperationError {
	if strings.TrimSpace(creds.APISecret) == "" {
		return &OperationError{Op: op, Kind: KindSigning, Message: "API secret is empty, cannot sign request"}
	}
	if strings.TrimSpace(creds.APIKey) == "" {
		return &OperationError{Op: op, Kind: KindSigning, Message: "API key is empty"}
	}
	return nil
}
