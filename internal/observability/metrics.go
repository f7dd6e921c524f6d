package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// Metrics 遍历指标
// nil接收者上的方法都是空操作, 未启用指标时直接传nil
type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server

	NodesVisited    *prometheus.CounterVec
	NodesFailed     *prometheus.CounterVec
	PagesVisited    *prometheus.CounterVec
	RecordsEmitted  *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec
	SinkFailures    *prometheus.CounterVec
	DegradedEvents  *prometheus.CounterVec
	NodeDuration    *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		NodesVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogcrawl_nodes_visited_total",
			Help: "已访问的列表节点数",
		}, []string{"site"}),
		NodesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogcrawl_nodes_failed_total",
			Help: "重试耗尽后放弃的节点数",
		}, []string{"site"}),
		PagesVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogcrawl_pages_visited_total",
			Help: "翻过的页数",
		}, []string{"site"}),
		RecordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogcrawl_records_emitted_total",
			Help: "写入成功的商品记录数",
		}, []string{"site"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogcrawl_records_rejected_total",
			Help: "归一化被拒绝的记录数",
		}, []string{"site", "reason"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogcrawl_sink_failures_total",
			Help: "写入失败次数",
		}, []string{"site"}),
		DegradedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogcrawl_degraded_total",
			Help: "计数超过阈值但没能展开的节点数",
		}, []string{"site"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalogcrawl_node_duration_seconds",
			Help:    "单个节点的处理耗时",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"site", "action"}),
	}

	m.registry.MustRegister(
		m.NodesVisited, m.NodesFailed, m.PagesVisited,
		m.RecordsEmitted, m.RecordsRejected, m.SinkFailures,
		m.DegradedEvents, m.NodeDuration,
	)
	return m
}

// Handler /metrics处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Start 在addr上暴露/metrics
func (m *Metrics) Start(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Error().Err(err).Str("addr", addr).Msg("指标服务异常退出")
		}
	}()
	utils.Infof("📈 指标服务已启动: http://%s/metrics", addr)
}

// Shutdown 停止指标服务
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// NodeVisited 记录访问的节点
func (m *Metrics) NodeVisited(site string) {
	if m == nil {
		return
	}
	m.NodesVisited.WithLabelValues(site).Inc()
}

// NodeFailed 记录失败的节点
func (m *Metrics) NodeFailed(site string) {
	if m == nil {
		return
	}
	m.NodesFailed.WithLabelValues(site).Inc()
}

// PagesDone 累加翻页数
func (m *Metrics) PagesDone(site string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PagesVisited.WithLabelValues(site).Add(float64(n))
}

// RecordEmitted 记录写入成功
func (m *Metrics) RecordEmitted(site string) {
	if m == nil {
		return
	}
	m.RecordsEmitted.WithLabelValues(site).Inc()
}

// RecordRejected 记录被拒绝
func (m *Metrics) RecordRejected(site, reason string) {
	if m == nil {
		return
	}
	m.RecordsRejected.WithLabelValues(site, reason).Inc()
}

// SinkFailed 记录写入失败
func (m *Metrics) SinkFailed(site string) {
	if m == nil {
		return
	}
	m.SinkFailures.WithLabelValues(site).Inc()
}

// Degraded 记录退化遍历
func (m *Metrics) Degraded(site string) {
	if m == nil {
		return
	}
	m.DegradedEvents.WithLabelValues(site).Inc()
}

// ObserveNode 记录节点耗时
func (m *Metrics) ObserveNode(site, action string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodeDuration.WithLabelValues(site, action).Observe(d.Seconds())
}
