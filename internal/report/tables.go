package report

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	gateway "github.com/newplayman/futures-tradebot/internal/exchange"
)

// Balances 只列出余额大于 0 的资产。
func Balances(res *gateway.BalanceResult) string {
	rows := res.NonZero()
	if len(rows) == 0 {
		return "No assets with a positive balance.\n"
	}
	var b strings.Builder
	b.WriteString("Account balance\n")
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ASSET\tBALANCE\tAVAILABLE\tUNREALIZED PNL")
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", r.Asset, r.Balance.String(), r.Available.String(), r.CrossUnPnl.String())
	}
	tw.Flush()
	return b.String()
}

// OpenOrders 挂单列表
func OpenOrders(res *gateway.OpenOrdersResult) string {
	if len(res.Orders) == 0 {
		return "No open orders.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Open orders (%d)\n", len(res.Orders))
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ORDER ID\tSYMBOL\tSIDE\tTYPE\tPRICE\tSTOP\tQTY\tFILLED\tSTATUS")
	for _, o := range res.Orders {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.OrderID, o.Symbol, o.Side, o.Type,
			optional(o.Price), optional(o.StopPrice),
			o.OrigQty.String(), o.ExecutedQty.String(), o.Status)
	}
	tw.Flush()
	return b.String()
}

// BalancesKV / OpenOrdersKV 写日志用的单行摘要
func BalancesKV(res *gateway.BalanceResult) string {
	parts := []string{"outcome=success", "action=" + string(gateway.OpBalance)}
	for _, r := range res.NonZero() {
		parts = append(parts, strings.ToLower(r.Asset)+"="+r.Balance.String())
	}
	return strings.Join(parts, " ")
}

func OpenOrdersKV(symbol string, res *gateway.OpenOrdersResult) string {
	s := fmt.Sprintf("outcome=success action=%s count=%d", gateway.OpOpenOrders, len(res.Orders))
	if symbol != "" {
		s += " symbol=" + strings.ToUpper(symbol)
	}
	return s
}

func optional(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
