// Package menu 交互模式：菜单 → 动作 → 下单流程 → 展示 → 回到菜单。
package menu

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"

	gateway "github.com/newplayman/futures-tradebot/internal/exchange"
	"github.com/newplayman/futures-tradebot/internal/order"
	"github.com/newplayman/futures-tradebot/internal/report"
	"github.com/newplayman/futures-tradebot/internal/runner"
)

const (
	DefaultSymbol = "BTCUSDT"
	DefaultSide   = "BUY"
	DefaultType   = "MARKET"
)

// Actions 菜单依赖的操作，*runner.Session 实现了它。
type Actions interface {
	Preview(p order.Params) (report.Record, error)
	PlaceOrder(ctx context.Context, p order.Params) runner.Outcome
	Balance(ctx context.Context) (*gateway.BalanceResult, error)
	OpenOrders(ctx context.Context, symbol string) (*gateway.OpenOrdersResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*gateway.CancelResult, error)
}

type state int

const (
	stateMain state = iota
	statePlaceOrder
	stateBalance
	stateOpenOrders
	stateCancel
	stateQuit
)

var choices = map[string]state{
	"1": statePlaceOrder,
	"2": stateBalance,
	"3": stateOpenOrders,
	"4": stateCancel,
	"5": stateQuit,
	"q": stateQuit,
}

const mainMenu = `
==================== Menu ====================
  1. Place order
  2. View balance
  3. View open orders
  4. Cancel order
  5. Quit
==============================================
`

type Menu struct {
	actions Actions
	console *Console
	baseURL string
}

func New(actions Actions, console *Console, baseURL string) *Menu {
	return &Menu{actions: actions, console: console, baseURL: baseURL}
}

// Banner 启动横幅
func Banner(baseURL string) string {
	var b strings.Builder
	b.WriteString("==============================================\n")
	b.WriteString("   Binance USDT-M Futures Testnet Trade Bot\n")
	b.WriteString("   endpoint: " + baseURL + "\n")
	b.WriteString("==============================================\n")
	return b.String()
}

// Run 阻塞直到用户退出、输入结束或 ctx 取消。
func (m *Menu) Run(ctx context.Context) error {
	m.console.Print(Banner(m.baseURL))
	st := stateMain
	for st != stateQuit {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := m.step(ctx, st)
		if errors.Is(err, io.EOF) {
			m.console.Print("\n")
			break
		}
		if err != nil {
			return err
		}
		st = next
	}
	m.console.Print("Bye.\n")
	return nil
}

func (m *Menu) step(ctx context.Context, st state) (state, error) {
	switch st {
	case stateMain:
		return m.choose()
	case statePlaceOrder:
		return stateMain, m.placeOrder(ctx)
	case stateBalance:
		return stateMain, m.balance(ctx)
	case stateOpenOrders:
		return stateMain, m.openOrders(ctx)
	case stateCancel:
		return stateMain, m.cancel(ctx)
	}
	return stateQuit, nil
}

func (m *Menu) choose() (state, error) {
	m.console.Print(mainMenu)
	v, err := m.console.ReadLine("Select an option [1-5]: ")
	if err != nil {
		return stateQuit, err
	}
	if next, ok := choices[strings.ToLower(v)]; ok {
		return next, nil
	}
	m.console.Printf("Invalid choice %q\n", v)
	return stateMain, nil
}

func (m *Menu) placeOrder(ctx context.Context) error {
	var p order.Params
	var err error
	if p.Symbol, err = m.console.Prompt("Symbol", DefaultSymbol); err != nil {
		return err
	}
	if p.Side, err = m.console.Prompt("Side (BUY/SELL)", DefaultSide); err != nil {
		return err
	}
	if p.Type, err = m.console.Prompt("Order type (MARKET/LIMIT/STOP_MARKET)", DefaultType); err != nil {
		return err
	}
	if p.Quantity, err = m.console.Prompt("Quantity", ""); err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(p.Type)) {
	case string(futures.OrderTypeLimit):
		if p.Price, err = m.console.Prompt("Price", ""); err != nil {
			return err
		}
	case string(futures.OrderTypeStopMarket):
		if p.StopPrice, err = m.console.Prompt("Stop price", ""); err != nil {
			return err
		}
	}
	reduce, err := m.console.Prompt("Reduce only? [yes/no]", "no")
	if err != nil {
		return err
	}
	p.ReduceOnly = yes(reduce)

	rec, err := m.actions.Preview(p)
	if err != nil {
		m.console.Print(rec.Human())
		return nil
	}
	m.console.Print(rec.Preview())
	confirm, err := m.console.Prompt("Confirm order? [yes/no]", "yes")
	if err != nil {
		return err
	}
	if !yes(confirm) {
		m.console.Print("Order not submitted.\n")
		return nil
	}

	out := m.actions.PlaceOrder(ctx, p)
	m.console.Print(out.Record.Human())
	if out.Err != nil && out.Err.Kind == gateway.KindAmbiguous && out.Record.ClientOrderID != "" {
		m.console.Printf("The order may or may not have been placed. Check it with:\n  tradebot order-status --symbol %s --client-id %s\n",
			out.Record.Symbol, out.Record.ClientOrderID)
	}
	return nil
}

func (m *Menu) balance(ctx context.Context) error {
	res, err := m.actions.Balance(ctx)
	if err != nil {
		m.console.Print(report.Failure(gateway.OpBalance, "", err).Human())
		return nil
	}
	m.console.Print(report.Balances(res))
	return nil
}

func (m *Menu) openOrders(ctx context.Context) error {
	symbol, err := m.console.Prompt("Symbol (blank for all)", "")
	if err != nil {
		return err
	}
	res, err := m.actions.OpenOrders(ctx, symbol)
	if err != nil {
		m.console.Print(report.Failure(gateway.OpOpenOrders, symbol, err).Human())
		return nil
	}
	m.console.Print(report.OpenOrders(res))
	return nil
}

func (m *Menu) cancel(ctx context.Context) error {
	symbol, err := m.console.Prompt("Symbol", DefaultSymbol)
	if err != nil {
		return err
	}
	raw, err := m.console.Prompt("Order ID", "")
	if err != nil {
		return err
	}
	id, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil || id <= 0 {
		m.console.Printf("Order ID must be a positive integer, got %q\n", raw)
		return nil
	}
	res, err := m.actions.CancelOrder(ctx, symbol, id)
	if err != nil {
		m.console.Print(report.Failure(gateway.OpCancelOrder, symbol, err).Human())
		return nil
	}
	m.console.Print(report.FromCancel(res).Human())
	return nil
}

func yes(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes":
		return true
	}
	return false
}
