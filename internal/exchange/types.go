package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// Response 解码后的响应，按 Operation 区分具体类型。
type Response interface {
	Operation() Operation
}

// OrderResult 描述 /fapi/v1/order 返回的一条订单
type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          futures.SideType
	Type          futures.OrderType
	Status        futures.OrderStatusType
	TimeInForce   futures.TimeInForceType
	OrigQty       decimal.Decimal
	ExecutedQty   decimal.Decimal
	Price         *decimal.Decimal // 市价单为 nil
	StopPrice     *decimal.Decimal
	AvgPrice      *decimal.Decimal // 未成交时为 nil
	ReduceOnly    bool
	UpdateTime    time.Time
}

func (*OrderResult) Operation() Operation { return OpPlaceOrder }

// Balance represents a single asset balance returned by /fapi/v2/balance.
type Balance struct {
	Asset              string
	Balance            decimal.Decimal
	CrossWalletBalance decimal.Decimal
	CrossUnPnl         decimal.Decimal
	Available          decimal.Decimal
	MaxWithdraw        decimal.Decimal
	UpdateTime         time.Time
}

type BalanceResult struct {
	Balances []Balance
}

func (*BalanceResult) Operation() Operation { return OpBalance }

// NonZero 只保留余额大于 0 的资产
func (r *BalanceResult) NonZero() []Balance {
	out := make([]Balance, 0, len(r.Balances))
	for _, b := range r.Balances {
		if b.Balance.IsPositive() {
			out = append(out, b)
		}
	}
	return out
}

type OpenOrdersResult struct {
	Orders []OrderResult
}

func (*OpenOrdersResult) Operation() Operation { return OpOpenOrders }

type CancelResult struct {
	Order OrderResult
}

func (*CancelResult) Operation() Operation { return OpCancelOrder }

// QueryResult GET /fapi/v1/order 的单笔订单查询
type QueryResult struct {
	Order OrderResult
}

func (*QueryResult) Operation() Operation { return OpQueryOrder }

type ServerTimeResult struct {
	ServerTime int64
}

func (*ServerTimeResult) Operation() Operation { return OpServerTime }

type orderWire struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	TimeInForce   string `json:"timeInForce"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	AvgPrice      string `json:"avgPrice"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

type balanceWire struct {
	Asset              string `json:"asset"`
	Balance            string `json:"balance"`
	CrossWalletBalance string `json:"crossWalletBalance"`
	CrossUnPnl         string `json:"crossUnPnl"`
	AvailableBalance   string `json:"availableBalance"`
	MaxWithdrawAmount  string `json:"maxWithdrawAmount"`
	UpdateTime         int64  `json:"updateTime"`
}

// decode 按操作类型解码 2xx 响应；形状不符时返回 UnexpectedResponse。
func decode(op Operation, body []byte) (Response, error) {
	switch op {
	case OpPlaceOrder, OpCancelOrder, OpQueryOrder:
		var w orderWire
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, unexpected(op, "decode order: %v", err)
		}
		o, err := w.toResult()
		if err != nil {
			return nil, unexpected(op, "%v", err)
		}
		switch op {
		case OpCancelOrder:
			return &CancelResult{Order: o}, nil
		case OpQueryOrder:
			return &QueryResult{Order: o}, nil
		}
		return &o, nil
	case OpOpenOrders:
		var ws []orderWire
		if err := json.Unmarshal(body, &ws); err != nil {
			return nil, unexpected(op, "decode open orders: %v", err)
		}
		res := &OpenOrdersResult{Orders: make([]OrderResult, 0, len(ws))}
		for _, w := range ws {
			o, err := w.toResult()
			if err != nil {
				return nil, unexpected(op, "%v", err)
			}
			res.Orders = append(res.Orders, o)
		}
		return res, nil
	case OpBalance:
		var ws []balanceWire
		if err := json.Unmarshal(body, &ws); err != nil {
			return nil, unexpected(op, "decode balance: %v", err)
		}
		res := &BalanceResult{Balances: make([]Balance, 0, len(ws))}
		for _, w := range ws {
			b, err := w.toBalance()
			if err != nil {
				return nil, unexpected(op, "%v", err)
			}
			res.Balances = append(res.Balances, b)
		}
		return res, nil
	case OpServerTime:
		var w struct {
			ServerTime int64 `json:"serverTime"`
		}
		if err := json.Unmarshal(body, &w); err != nil || w.ServerTime <= 0 {
			return nil, unexpected(op, "decode server time: %s", trimBody(body))
		}
		return &ServerTimeResult{ServerTime: w.ServerTime}, nil
	}
	return nil, unexpected(op, "unknown operation %q", op)
}

func unexpected(op Operation, format string, args ...any) *OperationError {
	return &OperationError{Op: op, Kind: KindUnexpected, Message: fmt.Sprintf(format, args...)}
}

func (w orderWire) toResult() (OrderResult, error) {
	if w.OrderID == 0 || w.Symbol == "" {
		return OrderResult{}, fmt.Errorf("order payload missing orderId/symbol")
	}
	orig, err := parseDecimal("origQty", w.OrigQty)
	if err != nil {
		return OrderResult{}, err
	}
	executed, err := parseDecimal("executedQty", w.ExecutedQty)
	if err != nil {
		return OrderResult{}, err
	}
	price, err := optionalDecimal("price", w.Price)
	if err != nil {
		return OrderResult{}, err
	}
	stop, err := optionalDecimal("stopPrice", w.StopPrice)
	if err != nil {
		return OrderResult{}, err
	}
	avg, err := optionalDecimal("avgPrice", w.AvgPrice)
	if err != nil {
		return OrderResult{}, err
	}
	o := OrderResult{
		OrderID:       w.OrderID,
		ClientOrderID: w.ClientOrderID,
		Symbol:        w.Symbol,
		Side:          futures.SideType(w.Side),
		Type:          futures.OrderType(w.Type),
		Status:        futures.OrderStatusType(w.Status),
		TimeInForce:   futures.TimeInForceType(w.TimeInForce),
		OrigQty:       orig,
		ExecutedQty:   executed,
		Price:         price,
		StopPrice:     stop,
		AvgPrice:      avg,
		ReduceOnly:    w.ReduceOnly,
	}
	if w.UpdateTime > 0 {
		o.UpdateTime = time.UnixMilli(w.UpdateTime)
	}
	return o, nil
}

func (w balanceWire) toBalance() (Balance, error) {
	if w.Asset == "" {
		return Balance{}, fmt.Errorf("balance payload missing asset")
	}
	b := Balance{Asset: w.Asset}
	var err error
	if b.Balance, err = parseDecimal("balance", w.Balance); err != nil {
		return Balance{}, err
	}
	if b.Available, err = parseDecimal("availableBalance", w.AvailableBalance); err != nil {
		return Balance{}, err
	}
	// 以下字段 testnet 偶尔缺省，缺省按 0
	if b.CrossWalletBalance, err = parseDecimal("crossWalletBalance", w.CrossWalletBalance); err != nil {
		return Balance{}, err
	}
	if b.CrossUnPnl, err = parseDecimal("crossUnPnl", w.CrossUnPnl); err != nil {
		return Balance{}, err
	}
	if b.MaxWithdraw, err = parseDecimal("maxWithdrawAmount", w.MaxWithdrawAmount); err != nil {
		return Balance{}, err
	}
	if w.UpdateTime > 0 {
		b.UpdateTime = time.UnixMilli(w.UpdateTime)
	}
	return b, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

// optionalDecimal 空串或 "0" 视为字段缺失
func optionalDecimal(field, raw string) (*decimal.Decimal, error) {
	d, err := parseDecimal(field, raw)
	if err != nil || d.IsZero() {
		return nil, err
	}
	return &d, nil
}
