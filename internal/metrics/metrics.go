package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// REST 请求延迟
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradebot_request_latency_seconds",
			Help:    "REST 请求耗时",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "outcome"},
	)

	// 下单结果
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradebot_orders_total",
			Help: "下单次数（按类型/方向/结果）",
		},
		[]string{"type", "side", "outcome"},
	)

	// 错误统计
	ErrorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradebot_errors_total",
			Help: "失败次数（按错误类别）",
		},
		[]string{"kind", "operation"},
	)

	// 服务器时间偏移
	ClockOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradebot_clock_offset_ms",
			Help: "本地时间与交易所服务器时间的偏移（毫秒）",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestLatency)
	prometheus.MustRegister(OrdersTotal)
	prometheus.MustRegister(ErrorCount)
	prometheus.MustRegister(ClockOffset)
}

// StartMetricsServer 启动 /metrics；port=0 时随机端口，返回实际端口。
func StartMetricsServer(port int) (int, error) {
	if port < 0 {
		port = 0
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listen on %s failed: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	log.Info().Int("port", actualPort).Msg("启动Prometheus监控服务器")

	go func() {
		if err := http.Serve(listener, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Prometheus服务器异常退出")
		}
	}()

	return actualPort, nil
}

// RecordRequest 记录一次 REST 调用
func RecordRequest(operation, outcome string, d time.Duration) {
	RequestLatency.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// RecordOrder 记录一次下单结果
func RecordOrder(orderType, side, outcome string) {
	OrdersTotal.WithLabelValues(orderType, side, outcome).Inc()
}

// RecordError 记录错误
func RecordError(kind, operation string) {
	ErrorCount.WithLabelValues(kind, operation).Inc()
}

func SetClockOffset(ms int64) {
	ClockOffset.Set(float64(ms))
}
