package observability

import (
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总 RAG 服务的 Prometheus 指标。
//
// 覆盖范围:
//   - 每个字段检索策略的耗时与结果
//   - 流水线各步骤的执行/跳过/失败次数与耗时
//   - 输出 token 流的事件数与丢弃数
//   - 熔断器状态
//   - HTTP 请求
type Metrics struct {
	// StrategyDuration labels: strategy (titles|contents|paths|keywords)
	StrategyDuration *prometheus.HistogramVec
	// StrategyRequests labels: strategy, status (success|error)
	StrategyRequests *prometheus.CounterVec
	// StrategyResults labels: strategy
	StrategyResults *prometheus.HistogramVec

	// StepCounter labels: step, outcome (executed|skipped|failed)
	StepCounter *prometheus.CounterVec
	// StepDuration labels: step
	StepDuration *prometheus.HistogramVec

	// StreamEvents labels: kind (token|done|error)
	StreamEvents *prometheus.CounterVec
	// StreamDropped counts tokens discarded under drop_oldest.
	StreamDropped prometheus.Counter

	// BreakerState labels: name. 0 closed, 1 open, 2 half-open.
	BreakerState *prometheus.GaugeVec

	// HTTPRequestDuration labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics 在 reg 上注册全部指标。测试中传入独立的 prometheus.NewRegistry()。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StrategyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_strategy_duration_seconds",
				Help:    "Duration of field search strategies in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"strategy"},
		),
		StrategyRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_strategy_requests_total",
				Help: "Total number of field search strategy calls by status",
			},
			[]string{"strategy", "status"},
		),
		StrategyResults: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_strategy_results",
				Help:    "Number of results returned by a field search strategy",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"strategy"},
		),
		StepCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_pipeline_steps_total",
				Help: "Total number of pipeline steps by outcome",
			},
			[]string{"step", "outcome"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_pipeline_step_duration_seconds",
				Help:    "Duration of executed pipeline steps in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"step"},
		),
		StreamEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_stream_events_total",
				Help: "Total number of events sent on answer streams by kind",
			},
			[]string{"kind"},
		),
		StreamDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_stream_dropped_tokens_total",
				Help: "Total number of tokens dropped by the drop_oldest policy",
			},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rag_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"name"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// ObserveStrategy 记录一次检索策略调用。
func (m *Metrics) ObserveStrategy(kind string, elapsed time.Duration, results int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StrategyRequests.WithLabelValues(kind, status).Inc()
	m.StrategyDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err == nil {
		m.StrategyResults.WithLabelValues(kind).Observe(float64(results))
	}
}

// ObserveStep 记录一个流水线步骤的结果，跳过的步骤不记录耗时。
func (m *Metrics) ObserveStep(step, outcome string, elapsed time.Duration) {
	m.StepCounter.WithLabelValues(step, outcome).Inc()
	if outcome != "skipped" {
		m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	}
}

// StreamEvent 计数一个输出事件。
func (m *Metrics) StreamEvent(kind string) {
	m.StreamEvents.WithLabelValues(kind).Inc()
}

// TokensDropped 累加被丢弃的 token 数。
func (m *Metrics) TokensDropped(n uint64) {
	if n > 0 {
		m.StreamDropped.Add(float64(n))
	}
}

// BreakerStateChanged 可直接作为 circuitbreaker.Settings.OnStateChange 使用。
func (m *Metrics) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

// ObserveHTTP 记录一次 HTTP 请求。
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
