// Package report 把下单结果或失败整理成统一记录，并渲染成终端摘要和单行 key=value 日志。
package report

import (
	"fmt"
	"strconv"
	"strings"

	gateway "github.com/newplayman/futures-tradebot/internal/exchange"
	"github.com/newplayman/futures-tradebot/internal/order"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Record 一次操作的规范化结果，两种渲染都从它派生。
type Record struct {
	Action  gateway.Operation
	Outcome Outcome

	Symbol     string
	Side       string
	Type       string
	Quantity   string
	Price      string
	StopPrice  string
	ReduceOnly bool

	OrderID       string
	ClientOrderID string
	Status        string
	ExecutedQty   string
	AvgPrice      string

	ErrorKind    string
	Reason       string
	HTTPStatus   string
	ExchangeCode string
	Message      string
	Violations   []string
}

// Request 用校验后的意图填充请求字段。
func Request(in order.Intent) Record {
	r := Record{
		Action:     gateway.OpPlaceOrder,
		Symbol:     in.Symbol(),
		Side:       string(in.Side()),
		Type:       string(in.Type()),
		Quantity:   in.Quantity().String(),
		ReduceOnly: in.ReduceOnly(),
	}
	if p, ok := in.Price(); ok {
		r.Price = p.String()
	}
	if s, ok := in.StopPrice(); ok {
		r.StopPrice = s.String()
	}
	return r
}

// RequestParams 校验失败时只能展示用户原始输入。
func RequestParams(p order.Params) Record {
	return Record{
		Action:     gateway.OpPlaceOrder,
		Symbol:     strings.ToUpper(strings.TrimSpace(p.Symbol)),
		Side:       strings.ToUpper(strings.TrimSpace(p.Side)),
		Type:       strings.ToUpper(strings.TrimSpace(p.Type)),
		Quantity:   strings.TrimSpace(p.Quantity),
		Price:      strings.TrimSpace(p.Price),
		StopPrice:  strings.TrimSpace(p.StopPrice),
		ReduceOnly: p.ReduceOnly,
	}
}

// FromOrder 下单成功
func FromOrder(in order.Intent, res *gateway.OrderResult) Record {
	return Request(in).WithResult(res)
}

// FromError 下单失败
func FromError(in order.Intent, err error) Record {
	return Request(in).WithError(err)
}

// FromCancel 撤单成功，请求字段取自交易所返回的订单。
func FromCancel(res *gateway.CancelResult) Record {
	r := Record{Action: gateway.OpCancelOrder}
	return r.withOrderFields(&res.Order).WithResult(&res.Order)
}

// FromQuery 单笔订单查询结果
func FromQuery(res *gateway.QueryResult) Record {
	r := Record{Action: gateway.OpQueryOrder}
	return r.withOrderFields(&res.Order).WithResult(&res.Order)
}

// Failure 非下单操作（余额、挂单、撤单）的失败记录
func Failure(op gateway.Operation, symbol string, err error) Record {
	r := Record{Action: op, Symbol: strings.ToUpper(strings.TrimSpace(symbol))}
	return r.WithError(err)
}

func (r Record) withOrderFields(o *gateway.OrderResult) Record {
	r.Symbol = o.Symbol
	r.Side = string(o.Side)
	r.Type = string(o.Type)
	r.Quantity = o.OrigQty.String()
	if o.Price != nil {
		r.Price = o.Price.String()
	}
	if o.StopPrice != nil {
		r.StopPrice = o.StopPrice.String()
	}
	r.ReduceOnly = o.ReduceOnly
	return r
}

func (r Record) WithResult(res *gateway.OrderResult) Record {
	r.Outcome = OutcomeSuccess
	if res == nil {
		return r
	}
	r.OrderID = strconv.FormatInt(res.OrderID, 10)
	r.ClientOrderID = res.ClientOrderID
	r.Status = string(res.Status)
	r.ExecutedQty = res.ExecutedQty.String()
	if res.AvgPrice != nil {
		r.AvgPrice = res.AvgPrice.String()
	}
	return r
}

func (r Record) WithError(err error) Record {
	r.Outcome = OutcomeFailure
	opErr := gateway.AsOperationError(err)
	if opErr == nil {
		return r
	}
	r.ErrorKind = string(opErr.Kind)
	r.Reason = string(opErr.Reason)
	if opErr.HTTPStatus != nil {
		r.HTTPStatus = strconv.Itoa(*opErr.HTTPStatus)
	}
	if opErr.ExchangeCode != nil {
		r.ExchangeCode = strconv.FormatInt(*opErr.ExchangeCode, 10)
	}
	r.Message = opErr.Message
	r.Violations = nil
	for _, v := range opErr.Violations {
		r.Violations = append(r.Violations, v.String())
	}
	return r
}

type field struct {
	key   string
	label string
	value string
}

// fields 两种渲染共用的字段顺序；空值跳过。
func (r Record) fields() []field {
	fs := []field{
		{"symbol", "Symbol", r.Symbol},
		{"side", "Side", r.Side},
		{"type", "Type", r.Type},
		{"quantity", "Quantity", r.Quantity},
		{"price", "Price", r.Price},
		{"stop_price", "Stop Price", r.StopPrice},
	}
	if r.ReduceOnly {
		fs = append(fs, field{"reduce_only", "Reduce Only", "true"})
	}
	fs = append(fs,
		field{"order_id", "Order ID", r.OrderID},
		field{"client_order_id", "Client Order ID", r.ClientOrderID},
		field{"status", "Status", r.Status},
		field{"executed_qty", "Executed Qty", r.ExecutedQty},
		field{"avg_price", "Avg Price", r.AvgPrice},
		field{"error_kind", "Error", r.ErrorKind},
		field{"reason", "Reason", r.Reason},
		field{"http_status", "HTTP Status", r.HTTPStatus},
		field{"exchange_code", "Exchange Code", r.ExchangeCode},
		field{"message", "Message", r.Message},
	)
	out := fs[:0]
	for _, f := range fs {
		if f.value != "" {
			out = append(out, f)
		}
	}
	return out
}

func (r Record) title() string {
	var what string
	switch r.Action {
	case gateway.OpPlaceOrder:
		what = "Order"
	case gateway.OpCancelOrder:
		what = "Cancel"
	case gateway.OpQueryOrder:
		what = "Order status"
	case gateway.OpBalance:
		what = "Balance"
	case gateway.OpOpenOrders:
		what = "Open orders"
	default:
		what = "Request"
	}
	if r.Outcome == OutcomeFailure {
		return what + " FAILED"
	}
	switch r.Action {
	case gateway.OpPlaceOrder:
		return "Order placed successfully"
	case gateway.OpCancelOrder:
		return "Order canceled"
	}
	return what
}

// Human 多行对齐的终端摘要
func (r Record) Human() string {
	return r.render(r.title())
}

// Preview 提交前的订单摘要
func (r Record) Preview() string {
	return r.render("Order summary")
}

func (r Record) render(title string) string {
	fs := r.fields()
	width := 0
	for _, f := range fs {
		if len(f.label) > width {
			width = len(f.label)
		}
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	for _, f := range fs {
		fmt.Fprintf(&b, "  %-*s : %s\n", width, f.label, f.value)
	}
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "  - %s\n", v)
	}
	return b.String()
}

// KV 单行 key=value，含空格或引号的值加引号。
func (r Record) KV() string {
	parts := []string{
		"outcome=" + string(r.Outcome),
		"action=" + string(r.Action),
	}
	for _, f := range r.fields() {
		parts = append(parts, f.key+"="+quote(f.value))
	}
	if len(r.Violations) > 0 {
		parts = append(parts, "violations="+quote(strings.Join(r.Violations, "; ")))
	}
	return strings.Join(parts, " ")
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		return strconv.Quote(v)
	}
	return v
}
