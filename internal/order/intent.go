package order

import (
	"fmt"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// 支持的订单类型（testnet 下单入口只开放这三种）
var supportedTypes = []futures.OrderType{
	futures.OrderTypeMarket,
	futures.OrderTypeLimit,
	futures.OrderTypeStopMarket,
}

// Params 用户原始输入（CLI flag 或交互菜单），尚未校验。
// Price/StopPrice 为空串表示未提供。
type Params struct {
	Symbol     string
	Side       string
	Type       string
	Quantity   string
	Price      string
	StopPrice  string
	ReduceOnly bool
}

// Intent 是通过校验的下单意图，只能由 Validate 构造。
type Intent struct {
	symbol     string
	side       futures.SideType
	typ        futures.OrderType
	quantity   decimal.Decimal
	price      *decimal.Decimal
	stopPrice  *decimal.Decimal
	reduceOnly bool
}

func (i Intent) Symbol() string { return i.symbol }
func (i Intent) Side() futures.SideType { return i.side }
func (i Intent) Type() futures.OrderType { return i.typ }
func (i Intent) Quantity() decimal.Decimal { return i.quantity }
func (i Intent) ReduceOnly() bool { return i.reduceOnly }
func (i Intent) IsZero() bool { return i.symbol == "" }
func (i Intent) HasPrice() bool { return i.price != nil }
func (i Intent) HasStopPrice() bool { return i.stopPrice != nil }

// Price 仅 LIMIT 单返回 ok=true。
func (i Intent) Price() (decimal.Decimal, bool) {
	if i.price == nil {
		return decimal.Zero, false
	}
	return *i.price, true
}

// StopPrice 仅 STOP_MARKET 单返回 ok=true。
func (i Intent) StopPrice() (decimal.Decimal, bool) {
	if i.stopPrice == nil {
		return decimal.Zero, false
	}
	return *i.stopPrice, true
}

// Summary 下单前展示/记录的一行摘要，例如 "BUY LIMIT 0.01 ETHUSDT @ 3200"。
func (i Intent) Summary() string {
	s := fmt.Sprintf("%s %s %s %s", i.side, i.typ, i.quantity.String(), i.symbol)
	if i.price != nil {
		s += " @ " + i.price.String()
	}
	if i.stopPrice != nil {
		s += " stop " + i.stopPrice.String()
	}
	if i.reduceOnly {
		s += " (reduce-only)"
	}
	return s
}

// MarshalZerologObject 让 Intent 可以直接作为 zerolog 对象字段输出。
func (i Intent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("symbol", i.symbol).
		Str("side", string(i.side)).
		Str("type", string(i.typ)).
		Str("quantity", i.quantity.String())
	if i.price != nil {
		e.Str("price", i.price.String())
	}
	if i.stopPrice != nil {
		e.Str("stop_price", i.stopPrice.String())
	}
	if i.reduceOnly {
		e.Bool("reduce_only", true)
	}
}
