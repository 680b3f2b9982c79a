package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newplayman/futures-tradebot/internal/config"
	gateway "github.com/newplayman/futures-tradebot/internal/exchange"
	"github.com/newplayman/futures-tradebot/internal/metrics"
	"github.com/newplayman/futures-tradebot/internal/order"
	"github.com/newplayman/futures-tradebot/internal/report"
)

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tradebot",
		Short: "Place and inspect orders on Binance USDT-M Futures testnet",
		Long: `tradebot validates, signs and submits MARKET, LIMIT and STOP_MARKET orders
to the Binance USDT-M Futures testnet, and can show balances and open orders.

Credentials are taken from --api-key/--api-secret, then BINANCE_API_KEY and
BINANCE_API_SECRET (environment or .env), then the config file, then a prompt.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.apiKey, "api-key", "", "Binance API key")
	pf.StringVar(&a.apiSecret, "api-secret", "", "Binance API secret")
	pf.StringVar(&a.configPath, "config", "", "config file (default ./"+config.DefaultConfigFile+" if present)")
	pf.String("log-level", "debug", "file log level (trace, debug, info, warn, error)")
	pf.String("log-dir", "logs", "directory for daily log files")
	pf.String("base-url", config.DefaultBaseURL, "REST base URL")
	pf.Duration("timeout", 0, "per-request timeout, e.g. 10s")
	pf.Int64("recv-window", gateway.DefaultRecvWindowMs, "recvWindow in milliseconds")
	pf.Bool("time-sync", false, "sync with exchange server time before signing")

	root.AddCommand(
		a.orderCommand(),
		a.balanceCommand(),
		a.openOrdersCommand(),
		a.cancelCommand(),
		a.orderStatusCommand(),
		a.interactiveCommand(),
	)
	return root
}

func (a *app) preRun(interactive bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if err := a.prepare(cmd); err != nil {
			return err
		}
		return a.connect(cmd.Context(), interactive)
	}
}

func (a *app) orderCommand() *cobra.Command {
	var p order.Params
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place a MARKET, LIMIT or STOP_MARKET order",
		Example: `  tradebot order --symbol BTCUSDT --side BUY --type MARKET --qty 0.001
  tradebot order --symbol ETHUSDT --side SELL --type LIMIT --qty 0.01 --price 3200
  tradebot order --symbol BTCUSDT --side SELL --type STOP_MARKET --qty 0.001 --stop-price 42000`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 先校验，参数有误时不解析凭证
			if _, err := order.Validate(p); err != nil {
				rec := report.RequestParams(p).WithError(err)
				a.logger.Warn().Msg(rec.KV())
				metrics.RecordError(rec.ErrorKind, string(gateway.OpPlaceOrder))
				a.fail(gateway.AsOperationError(err), rec.Human())
				return nil
			}
			if err := a.connect(cmd.Context(), false); err != nil {
				return err
			}
			out := a.session.PlaceOrder(cmd.Context(), p)
			if out.Err != nil {
				a.fail(out.Err, out.Record.Human())
				if out.Err.Kind == gateway.KindAmbiguous && out.Record.ClientOrderID != "" {
					fmt.Fprintf(a.stderr, "The order may or may not have been placed. Check it with:\n  tradebot order-status --symbol %s --client-id %s\n",
						out.Record.Symbol, out.Record.ClientOrderID)
				}
				return nil
			}
			fmt.Fprint(a.stdout, out.Record.Human())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Symbol, "symbol", "", "trading pair, e.g. BTCUSDT")
	f.StringVar(&p.Side, "side", "", "BUY or SELL")
	f.StringVar(&p.Type, "type", "", "MARKET, LIMIT or STOP_MARKET")
	f.StringVar(&p.Quantity, "qty", "", "order quantity")
	f.StringVar(&p.Price, "price", "", "limit price (LIMIT only)")
	f.StringVar(&p.StopPrice, "stop-price", "", "trigger price (STOP_MARKET only)")
	f.BoolVar(&p.ReduceOnly, "reduce-only", false, "only reduce an existing position")
	return cmd
}

func (a *app) balanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "balance",
		Short:   "Show assets with a positive futures wallet balance",
		Args:    cobra.NoArgs,
		PreRunE: a.preRun(false),
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.session.Balance(cmd.Context())
			if err != nil {
				a.fail(gateway.AsOperationError(err), report.Failure(gateway.OpBalance, "", err).Human())
				return nil
			}
			fmt.Fprint(a.stdout, report.Balances(res))
			return nil
		},
	}
}

func (a *app) openOrdersCommand() *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:     "open-orders",
		Short:   "List open orders, optionally for one symbol",
		Args:    cobra.NoArgs,
		PreRunE: a.preRun(false),
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.session.OpenOrders(cmd.Context(), symbol)
			if err != nil {
				a.fail(gateway.AsOperationError(err), report.Failure(gateway.OpOpenOrders, symbol, err).Human())
				return nil
			}
			fmt.Fprint(a.stdout, report.OpenOrders(res))
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "only this trading pair")
	return cmd
}

func (a *app) cancelCommand() *cobra.Command {
	var (
		symbol  string
		orderID int64
	)
	cmd := &cobra.Command{
		Use:     "cancel",
		Short:   "Cancel an open order by order id",
		Args:    cobra.NoArgs,
		PreRunE: a.preRun(false),
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.session.CancelOrder(cmd.Context(), symbol, orderID)
			if err != nil {
				a.fail(gateway.AsOperationError(err), report.Failure(gateway.OpCancelOrder, symbol, err).Human())
				return nil
			}
			fmt.Fprint(a.stdout, report.FromCancel(res).Human())
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "trading pair")
	cmd.Flags().Int64Var(&orderID, "order-id", 0, "exchange order id")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("order-id")
	return cmd
}

func (a *app) orderStatusCommand() *cobra.Command {
	var (
		symbol   string
		orderID  int64
		clientID string
	)
	cmd := &cobra.Command{
		Use:     "order-status",
		Short:   "Look up one order by order id or client order id",
		Args:    cobra.NoArgs,
		PreRunE: a.preRun(false),
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.session.QueryOrder(cmd.Context(), symbol, orderID, clientID)
			if err != nil {
				a.fail(gateway.AsOperationError(err), report.Failure(gateway.OpQueryOrder, symbol, err).Human())
				return nil
			}
			fmt.Fprint(a.stdout, report.FromQuery(res).Human())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&symbol, "symbol", "", "trading pair")
	f.Int64Var(&orderID, "order-id", 0, "exchange order id")
	f.StringVar(&clientID, "client-id", "", "client order id (newClientOrderId)")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagsOneRequired("order-id", "client-id")
	cmd.MarkFlagsMutuallyExclusive("order-id", "client-id")
	return cmd
}

func (a *app) interactiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Short:   "Menu-driven session: place orders, view balance and open orders, cancel",
		Args:    cobra.NoArgs,
		PreRunE: a.preRun(true),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runInteractive(cmd.Context())
		},
	}
}
