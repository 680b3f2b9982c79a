package runner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/newplayman/futures-tradebot/internal/config"
	gateway "github.com/newplayman/futures-tradebot/internal/exchange"
	"github.com/newplayman/futures-tradebot/internal/metrics"
	"github.com/newplayman/futures-tradebot/internal/order"
	"github.com/newplayman/futures-tradebot/internal/report"
)

// Session 一次调用（或一次交互会话）的上下文：凭证、签名器、客户端和 logger。
// 每个操作都重新签名、单独发送，不在操作之间保留状态。
type Session struct {
	Creds   config.Credentials
	Builder *gateway.Builder
	Client  *gateway.Client
	Clock   gateway.Clock
	Log     zerolog.Logger

	timeSync *gateway.TimeSync
}

// NewSession 按配置组装 Session
func NewSession(cfg *config.Config, creds config.Credentials, logger zerolog.Logger) *Session {
	client := gateway.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.Timeout, logger)
	s := &Session{
		Creds:   creds,
		Builder: gateway.NewBuilder(cfg.Exchange.RecvWindowMs),
		Client:  client,
		Clock:   gateway.LocalClock{},
		Log:     logger,
	}
	if cfg.Exchange.TimeSync {
		s.timeSync = gateway.NewTimeSync(client)
	}
	logger.Debug().
		Object("credentials", creds).
		Str("base_url", client.BaseURL).
		Dur("timeout", cfg.Exchange.Timeout).
		Int64("recv_window_ms", s.Builder.RecvWindowMs).
		Msg("session ready")
	return s
}

// SyncTime 启用 time_sync 时校准一次服务器时间；失败只告警，继续使用本地时间。
func (s *Session) SyncTime(ctx context.Context) {
	if s.timeSync == nil {
		return
	}
	if err := s.timeSync.Sync(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("服务器时间同步失败，使用本地时间")
		return
	}
	s.Clock = s.timeSync
	metrics.SetClockOffset(s.timeSync.Offset())
	s.Log.Debug().Int64("offset_ms", s.timeSync.Offset()).Msg("服务器时间已同步")
}

// ApplyConfig 配置热更新：调整请求超时。日志级别由 logging.Output.SetLevel 负责。
func (s *Session) ApplyConfig(cfg *config.Config) {
	s.Client.SetTimeout(cfg.Exchange.Timeout)
}

// Outcome 下单流程的最终结果；Result 与 Err 恰有一个非空。
type Outcome struct {
	Record report.Record
	Result *gateway.OrderResult
	Err    *gateway.OperationError
}

// ExitCode 0 为成功，其余按错误类别
func (o Outcome) ExitCode() int {
	if o.Err == nil {
		return 0
	}
	return o.Err.Kind.ExitCode()
}

// Preview 只做校验，返回下单前展示的摘要。
func (s *Session) Preview(p order.Params) (report.Record, error) {
	in, err := order.Validate(p)
	if err != nil {
		return report.RequestParams(p).WithError(err), err
	}
	return report.Request(in), nil
}

// PlaceOrder Validate → Build → Send → Format，提交前后各记一行日志。
func (s *Session) PlaceOrder(ctx context.Context, p order.Params) Outcome {
	in, err := order.Validate(p)
	if err != nil {
		rec := report.RequestParams(p).WithError(err)
		s.Log.Warn().Msg(rec.KV())
		metrics.RecordError(rec.ErrorKind, string(gateway.OpPlaceOrder))
		return Outcome{Record: rec, Err: gateway.AsOperationError(err)}
	}

	req, err := s.Builder.BuildOrder(in, s.Creds, s.Clock.NowMillis())
	if err != nil {
		return s.orderFailed(in, "", err)
	}
	clientID, _ := req.Params.Get("newClientOrderId")

	s.Log.Info().Object("intent", in).Msg("submitting order: " + in.Summary())

	start := time.Now()
	res, err := s.Client.PlaceOrder(ctx, req)
	if err != nil {
		metrics.RecordRequest(string(gateway.OpPlaceOrder), string(report.OutcomeFailure), time.Since(start))
		return s.orderFailed(in, clientID, err)
	}
	metrics.RecordRequest(string(gateway.OpPlaceOrder), string(report.OutcomeSuccess), time.Since(start))
	metrics.RecordOrder(string(in.Type()), string(in.Side()), string(report.OutcomeSuccess))

	rec := report.FromOrder(in, res)
	s.Log.Info().Msg(rec.KV())
	return Outcome{Record: rec, Result: res}
}

// orderFailed clientID 非空时写入记录，结果不明时可据此查询订单状态
func (s *Session) orderFailed(in order.Intent, clientID string, err error) Outcome {
	opErr := gateway.AsOperationError(err)
	rec := report.FromError(in, opErr)
	rec.ClientOrderID = clientID
	s.Log.Error().Msg(rec.KV())
	metrics.RecordError(string(opErr.Kind), string(gateway.OpPlaceOrder))
	metrics.RecordOrder(string(in.Type()), string(in.Side()), string(report.OutcomeFailure))
	return Outcome{Record: rec, Err: opErr}
}

// Balance GET /fapi/v2/balance
func (s *Session) Balance(ctx context.Context) (*gateway.BalanceResult, error) {
	req, err := s.Builder.BuildBalance(s.Creds, s.Clock.NowMillis())
	if err != nil {
		return nil, s.failed(gateway.OpBalance, "", err)
	}
	start := time.Now()
	res, err := s.Client.Balance(ctx, req)
	s.observe(gateway.OpBalance, start, err)
	if err != nil {
		return nil, s.failed(gateway.OpBalance, "", err)
	}
	s.Log.Info().Msg(report.BalancesKV(res))
	return res, nil
}

// OpenOrders symbol 为空时查询全部
func (s *Session) OpenOrders(ctx context.Context, symbol string) (*gateway.OpenOrdersResult, error) {
	req, err := s.Builder.BuildOpenOrders(symbol, s.Creds, s.Clock.NowMillis())
	if err != nil {
		return nil, s.failed(gateway.OpOpenOrders, symbol, err)
	}
	start := time.Now()
	res, err := s.Client.OpenOrders(ctx, req)
	s.observe(gateway.OpOpenOrders, start, err)
	if err != nil {
		return nil, s.failed(gateway.OpOpenOrders, symbol, err)
	}
	s.Log.Info().Msg(report.OpenOrdersKV(symbol, res))
	return res, nil
}

// CancelOrder 按 orderId 撤单
func (s *Session) CancelOrder(ctx context.Context, symbol string, orderID int64) (*gateway.CancelResult, error) {
	req, err := s.Builder.BuildCancel(symbol, orderID, s.Creds, s.Clock.NowMillis())
	if err != nil {
		return nil, s.failed(gateway.OpCancelOrder, symbol, err)
	}
	s.Log.Info().Str("symbol", symbol).Int64("order_id", orderID).Msg("submitting cancel")
	start := time.Now()
	res, err := s.Client.CancelOrder(ctx, req)
	s.observe(gateway.OpCancelOrder, start, err)
	if err != nil {
		return nil, s.failed(gateway.OpCancelOrder, symbol, err)
	}
	s.Log.Info().Msg(report.FromCancel(res).KV())
	return res, nil
}

// QueryOrder 查询单笔订单；orderID 与 clientOrderID 二选一。
func (s *Session) QueryOrder(ctx context.Context, symbol string, orderID int64, clientOrderID string) (*gateway.QueryResult, error) {
	req, err := s.Builder.BuildQueryOrder(symbol, orderID, clientOrderID, s.Creds, s.Clock.NowMillis())
	if err != nil {
		return nil, s.failed(gateway.OpQueryOrder, symbol, err)
	}
	start := time.Now()
	res, err := s.Client.QueryOrder(ctx, req)
	s.observe(gateway.OpQueryOrder, start, err)
	if err != nil {
		return nil, s.failed(gateway.OpQueryOrder, symbol, err)
	}
	s.Log.Info().Msg(report.FromQuery(res).KV())
	return res, nil
}

func (s *Session) observe(op gateway.Operation, start time.Time, err error) {
	outcome := report.OutcomeSuccess
	if err != nil {
		outcome = report.OutcomeFailure
	}
	metrics.RecordRequest(string(op), string(outcome), time.Since(start))
}

// failed 统一转成 *OperationError 并记录日志
func (s *Session) failed(op gateway.Operation, symbol string, err error) *gateway.OperationError {
	opErr := gateway.AsOperationError(err)
	if opErr.Op == "" {
		opErr.Op = op
	}
	s.Log.Error().Msg(report.Failure(op, symbol, opErr).KV())
	metrics.RecordError(string(opErr.Kind), string(op))
	return opErr
}
