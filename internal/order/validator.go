package order

import (
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// ViolationKind 校验失败的类别
type ViolationKind string

const (
	InvalidSymbol       ViolationKind = "InvalidSymbol"
	InvalidSide         ViolationKind = "InvalidSide"
	InvalidType         ViolationKind = "InvalidType"
	InvalidQuantity     ViolationKind = "InvalidQuantity"
	MissingPrice        ViolationKind = "MissingPrice"
	InvalidPrice        ViolationKind = "InvalidPrice"
	PriceNotAllowed     ViolationKind = "PriceNotAllowed"
	MissingStopPrice    ViolationKind = "MissingStopPrice"
	InvalidStopPrice    ViolationKind = "InvalidStopPrice"
	StopPriceNotAllowed ViolationKind = "StopPriceNotAllowed"
)

// Violation 单条校验失败
type Violation struct {
	Field   string
	Kind    ViolationKind
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationError 聚合所有校验失败，一次性反馈给用户。
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "invalid order: " + strings.Join(parts, "; ")
}

// Has 是否包含某类 violation
func (e *ValidationError) Has(kind ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field string, kind ViolationKind, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{Field: field, Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Validate 校验原始参数并生成 Intent；纯函数，无 I/O。
// 所有问题一起返回（*ValidationError），而不是遇到第一个就停。
func Validate(p Params) (Intent, error) {
	verr := &ValidationError{}
	var in Intent

	in.symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if !isSymbol(in.symbol) {
		verr.add("symbol", InvalidSymbol, "must be a non-empty alphanumeric pair such as BTCUSDT, got %q", p.Symbol)
	}

	switch side := futures.SideType(strings.ToUpper(strings.TrimSpace(p.Side))); side {
	case futures.SideTypeBuy, futures.SideTypeSell:
		in.side = side
	default:
		verr.add("side", InvalidSide, "must be BUY or SELL, got %q", p.Side)
	}

	typ := futures.OrderType(strings.ToUpper(strings.TrimSpace(p.Type)))
	typeOK := false
	for _, t := range supportedTypes {
		if typ == t {
			typeOK = true
			break
		}
	}
	if typeOK {
		in.typ = typ
	} else {
		verr.add("type", InvalidType, "must be one of MARKET, LIMIT, STOP_MARKET, got %q", p.Type)
	}

	if q, ok := parsePositive(p.Quantity); ok {
		in.quantity = q
	} else {
		verr.add("quantity", InvalidQuantity, "must be a number greater than 0, got %q", p.Quantity)
	}

	price := strings.TrimSpace(p.Price)
	stop := strings.TrimSpace(p.StopPrice)

	// 类型非法时价格规则无从判断，跳过
	if typeOK {
		switch typ {
		case futures.OrderTypeLimit:
			if price == "" {
				verr.add("price", MissingPrice, "is required for LIMIT orders")
			} else if v, ok := parsePositive(price); ok {
				in.price = &v
			} else {
				verr.add("price", InvalidPrice, "must be a number greater than 0, got %q", p.Price)
			}
			if stop != "" {
				verr.add("stop_price", StopPriceNotAllowed, "is only accepted for STOP_MARKET orders")
			}
		case futures.OrderTypeStopMarket:
			if stop == "" {
				verr.add("stop_price", MissingStopPrice, "is required for STOP_MARKET orders")
			} else if v, ok := parsePositive(stop); ok {
				in.stopPrice = &v
			} else {
				verr.add("stop_price", InvalidStopPrice, "must be a number greater than 0, got %q", p.StopPrice)
			}
			if price != "" {
				verr.add("price", PriceNotAllowed, "is only accepted for LIMIT orders")
			}
		case futures.OrderTypeMarket:
			if price != "" {
				verr.add("price", PriceNotAllowed, "is only accepted for LIMIT orders")
			}
			if stop != "" {
				verr.add("stop_price", StopPriceNotAllowed, "is only accepted for STOP_MARKET orders")
			}
		}
	}

	in.reduceOnly = p.ReduceOnly

	if len(verr.Violations) > 0 {
		return Intent{}, verr
	}
	return in, nil
}

func isSymbol(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func parsePositive(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
