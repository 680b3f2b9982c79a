package gateway

import "net/http"

// Binance endpoints (USDT-M futures testnet)
const (
	BinanceFuturesTestnetEndpoint = "https://testnet.binancefuture.com"

	pathOrder      = "/fapi/v1/order"
	pathOpenOrders = "/fapi/v1/openOrders"
	pathBalance    = "/fapi/v2/balance"
	pathServerTime = "/fapi/v1/time"
)

// DefaultRecvWindowMs 交易所允许的时间窗口
const DefaultRecvWindowMs int64 = 5000

// Operation 标识一次 REST 调用的种类，决定方法/路径和响应解码方式。
type Operation string

const (
	OpPlaceOrder  Operation = "place_order"
	OpCancelOrder Operation = "cancel_order"
	OpQueryOrder  Operation = "query_order"
	OpOpenOrders  Operation = "open_orders"
	OpBalance     Operation = "balance"
	OpServerTime  Operation = "server_time"
)

// Mutating 下单/撤单会改变账户状态，超时时结果不确定。
func (o Operation) Mutating() bool {
	return o == OpPlaceOrder || o == OpCancelOrder
}

func (o Operation) method() string {
	switch o {
	case OpPlaceOrder:
		return http.MethodPost
	case OpCancelOrder:
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

func (o Operation) path() string {
	switch o {
	case OpPlaceOrder, OpCancelOrder, OpQueryOrder:
		return pathOrder
	case OpOpenOrders:
		return pathOpenOrders
	case OpBalance:
		return pathBalance
	case OpServerTime:
		return pathServerTime
	}
	return ""
}
